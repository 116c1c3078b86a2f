package logic

import (
	"math"
	"testing"
	"time"
)

func TestIncrement(t *testing.T) {
	tests := []struct {
		name    string
		factor  float64
		watts   float64
		elapsed time.Duration
		want    float64
	}{
		{"one second at 10W", 1, 10, time.Second, 10},
		{"five seconds", 1, 10, 5 * time.Second, 50},
		{"default factor", GramsPerKWhToMgPerWs(475), 100, time.Hour, 47500},
		{"zero power", 1, 0, time.Second, 0},
		{"negative elapsed", 1, 10, -time.Second, 0},
		{"negative factor", -1, 10, time.Second, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Increment(tt.factor, tt.watts, tt.elapsed)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccumulatorBillsSinceLastSample(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	acc := NewAccumulator(start)

	// Sample at t=0 bills nothing.
	if inc := acc.Accumulate(1, 10, start); inc != 0 {
		t.Errorf("first sample: got %v, want 0", inc)
	}

	// Outage from 1s to 5s: no samples. Resume at 5s.
	inc := acc.Accumulate(1, 10, start.Add(5*time.Second))
	if inc != 50 {
		t.Errorf("resumed sample: got %v, want 50", inc)
	}
	if acc.TotalMg() != 50 {
		t.Errorf("total: got %v, want 50", acc.TotalMg())
	}
	if !acc.LastSample().Equal(start.Add(5 * time.Second)) {
		t.Errorf("last sample not advanced: %v", acc.LastSample())
	}
}

func TestAccumulatorMonotonic(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	acc := NewAccumulator(start)

	watts := []float64{0, 5, 120, 0.5, 0, 300, 42}
	now := start
	prev := acc.TotalMg()
	for i, w := range watts {
		now = now.Add(time.Duration(i+1) * 700 * time.Millisecond)
		acc.Accumulate(0.13, w, now)
		if acc.TotalMg() < prev {
			t.Fatalf("step %d: total decreased from %v to %v", i, prev, acc.TotalMg())
		}
		prev = acc.TotalMg()
	}
}

func TestAccumulatorIgnoresClockGoingBackwards(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 10, 0, time.UTC)
	acc := NewAccumulator(start)

	acc.Accumulate(1, 10, start.Add(-5*time.Second))
	if acc.TotalMg() != 0 {
		t.Errorf("expected no emissions for a backwards step, got %v", acc.TotalMg())
	}
	if !acc.LastSample().Equal(start) {
		t.Errorf("last sample moved backwards to %v", acc.LastSample())
	}
}
