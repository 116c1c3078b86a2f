package logic

import "testing"

func TestValueForCPUOnly(t *testing.T) {
	v := ValueFor(PowerSample{CPU: &Reading{Usage: 50, Limit: 100}})

	if v.CPUPowerShare == nil || *v.CPUPowerShare != 0.5 {
		t.Errorf("CPU share: got %v, want 0.5", v.CPUPowerShare)
	}
	if v.GPUPowerShare != nil {
		t.Errorf("GPU share: got %v, want nil", *v.GPUPowerShare)
	}
}

func TestPowerShare(t *testing.T) {
	tests := []struct {
		name    string
		reading *Reading
		want    *float64
	}{
		{"absent", nil, nil},
		{"zero limit", &Reading{Usage: 10, Limit: 0}, nil},
		{"negative limit", &Reading{Usage: 10, Limit: -5}, nil},
		{"half", &Reading{Usage: 25, Limit: 50}, ptr(0.5)},
		{"clamped to one", &Reading{Usage: 300, Limit: 250}, ptr(1)},
		{"idle", &Reading{Usage: 0, Limit: 250}, ptr(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PowerShare(tt.reading)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("got %v, want nil", *got)
			case tt.want != nil && got == nil:
				t.Errorf("got nil, want %v", *tt.want)
			case tt.want != nil && *got != *tt.want:
				t.Errorf("got %v, want %v", *got, *tt.want)
			}
		})
	}
}

func TestTotalWatts(t *testing.T) {
	s := PowerSample{CPU: &Reading{Usage: 12.5}, GPU: &Reading{Usage: 80}}
	if got := s.TotalWatts(); got != 92.5 {
		t.Errorf("got %v, want 92.5", got)
	}
	if got := (PowerSample{}).TotalWatts(); got != 0 {
		t.Errorf("empty sample: got %v, want 0", got)
	}
}

func ptr(f float64) *float64 { return &f }
