package logic

import "fmt"

// FormatPower renders a power reading as "12.34 / 95 W", or "12.34 W" when
// there is no limit.
func FormatPower(usage, limit float64) string {
	if limit > 0 {
		return fmt.Sprintf("%.2f / %.0f W", usage, limit)
	}
	return fmt.Sprintf("%.2f W", usage)
}

// FormatEmissions renders an emissions total already in unit. Grams and
// kilograms are shown without decimals.
func FormatEmissions(value float64, unit EmissionsUnit) string {
	if unit == UnitGram || unit == UnitKilogram {
		return fmt.Sprintf("%.0f %s", value, unit)
	}
	return fmt.Sprintf("%.2f %s", value, unit)
}

// Indicator colors.
const (
	ColorBase   = "base"
	ColorOrange = "orange"
	ColorRed    = "red"
)

// ShareColor picks the indicator color for a power share.
func ShareColor(share float64) string {
	switch {
	case share > 0.8:
		return ColorRed
	case share > 0.5:
		return ColorOrange
	}
	return ColorBase
}

// LatestShare returns the most recent non-nil share selected by pick, or 0.
func LatestShare(values []MetricValue, pick func(MetricValue) *float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if s := pick(values[len(values)-1]); s != nil {
		return *s
	}
	return 0
}

// CPUShare and GPUShare select a device share from a MetricValue.
func CPUShare(v MetricValue) *float64 { return v.CPUPowerShare }
func GPUShare(v MetricValue) *float64 { return v.GPUPowerShare }
