package logic

import "math"

// Reading is the instantaneous power draw of one device class, in watts.
type Reading struct {
	Usage float64
	Limit float64
}

// PowerSample is one successful poll of the local power endpoint.
// A nil device means the endpoint did not report it.
type PowerSample struct {
	CPU *Reading
	GPU *Reading
}

// TotalWatts sums the reported usage of all devices.
func (s PowerSample) TotalWatts() float64 {
	var w float64
	if s.CPU != nil {
		w += s.CPU.Usage
	}
	if s.GPU != nil {
		w += s.GPU.Usage
	}
	return w
}

// MetricValue is one entry of the rolling history. A nil share means the
// share was undefined for that tick (device absent or limit unknown).
type MetricValue struct {
	CPUPowerShare *float64
	GPUPowerShare *float64
}

// PowerShare returns usage/limit clamped to [0,1], or nil when the reading is
// absent or its limit is not positive.
func PowerShare(r *Reading) *float64 {
	if r == nil || !(r.Limit > 0) {
		return nil
	}
	share := math.Min(r.Usage/r.Limit, 1)
	if share < 0 || math.IsNaN(share) {
		share = 0
	}
	return &share
}

// ValueFor computes the history entry for a sample.
func ValueFor(s PowerSample) MetricValue {
	return MetricValue{
		CPUPowerShare: PowerShare(s.CPU),
		GPUPowerShare: PowerShare(s.GPU),
	}
}
