package logic

import "testing"

func TestFormatPower(t *testing.T) {
	tests := []struct {
		usage, limit float64
		want         string
	}{
		{50, 100, "50.00 / 100 W"},
		{12.345, 95.4, "12.35 / 95 W"},
		{7, 0, "7.00 W"},
	}
	for _, tt := range tests {
		if got := FormatPower(tt.usage, tt.limit); got != tt.want {
			t.Errorf("FormatPower(%v, %v): got %q, want %q", tt.usage, tt.limit, got, tt.want)
		}
	}
}

func TestFormatEmissions(t *testing.T) {
	tests := []struct {
		value float64
		unit  EmissionsUnit
		want  string
	}{
		{12.345, UnitMilligram, "12.35 mg"},
		{1.6, UnitGram, "2 g"},
		{3.2, UnitKilogram, "3 kg"},
	}
	for _, tt := range tests {
		if got := FormatEmissions(tt.value, tt.unit); got != tt.want {
			t.Errorf("FormatEmissions(%v, %v): got %q, want %q", tt.value, tt.unit, got, tt.want)
		}
	}
}

func TestShareColor(t *testing.T) {
	tests := []struct {
		share float64
		want  string
	}{
		{0, ColorBase},
		{0.5, ColorBase},
		{0.51, ColorOrange},
		{0.8, ColorOrange},
		{0.81, ColorRed},
		{1, ColorRed},
	}
	for _, tt := range tests {
		if got := ShareColor(tt.share); got != tt.want {
			t.Errorf("ShareColor(%v): got %q, want %q", tt.share, got, tt.want)
		}
	}
}

func TestLatestShare(t *testing.T) {
	vals := NewHistory(3).Values()
	if got := LatestShare(vals, CPUShare); got != 0 {
		t.Errorf("prefilled: got %v, want 0", got)
	}
	vals = append(vals, MetricValue{CPUPowerShare: ptr(0.7)})
	if got := LatestShare(vals, CPUShare); got != 0.7 {
		t.Errorf("cpu: got %v, want 0.7", got)
	}
	if got := LatestShare(vals, GPUShare); got != 0 {
		t.Errorf("nil gpu: got %v, want 0", got)
	}
	if got := LatestShare(nil, CPUShare); got != 0 {
		t.Errorf("empty: got %v, want 0", got)
	}
}
