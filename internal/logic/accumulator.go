package logic

import "time"

// Increment returns the emissions in mg produced by drawing watts for elapsed
// at the given factor (mg/Ws). Negative inputs contribute nothing.
func Increment(factorMgPerWs, watts float64, elapsed time.Duration) float64 {
	if factorMgPerWs <= 0 || watts <= 0 || elapsed <= 0 {
		return 0
	}
	return factorMgPerWs * watts * elapsed.Seconds()
}

// Accumulator integrates emissions over successive power samples.
// The total never decreases.
type Accumulator struct {
	totalMg    float64
	lastSample time.Time
}

// NewAccumulator starts an accumulator whose first interval begins at start.
func NewAccumulator(start time.Time) *Accumulator {
	return &Accumulator{lastSample: start}
}

// Accumulate bills the interval since the previous accumulated sample at the
// given factor and power draw, then moves the sample mark to now. It returns
// the increment in mg.
func (a *Accumulator) Accumulate(factorMgPerWs, watts float64, now time.Time) float64 {
	inc := Increment(factorMgPerWs, watts, now.Sub(a.lastSample))
	a.totalMg += inc
	if now.After(a.lastSample) {
		a.lastSample = now
	}
	return inc
}

// TotalMg returns the accumulated emissions in milligrams.
func (a *Accumulator) TotalMg() float64 {
	return a.totalMg
}

// LastSample returns the time of the last accumulated sample.
func (a *Accumulator) LastSample() time.Time {
	return a.lastSample
}
