package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sweeney/power-usage/internal/logic"
	"github.com/sweeney/power-usage/internal/monitor"
	"github.com/sweeney/power-usage/internal/poll"
	"github.com/sweeney/power-usage/internal/status"
)

func ptr(f float64) *float64 { return &f }

func snapshot(tick time.Time) status.Snapshot {
	return status.Snapshot{
		Enabled: true,
		Power: monitor.PowerSnapshot{
			CPUAvailable:       true,
			EmissionsAvailable: true,
			CPU:                &logic.Reading{Usage: 40, Limit: 80},
			TotalEmissionsMg:   1234,
			Values:             []logic.MetricValue{{CPUPowerShare: ptr(0.5)}},
			Phase:              poll.PhaseResolved,
			LastTick:           tick,
		},
		Factor: monitor.FactorSnapshot{
			Available: true,
			Factor:    ptr(0.0131),
			Phase:     poll.PhaseResolved,
			LastTick:  tick,
		},
	}
}

func TestObserve(t *testing.T) {
	c := New()
	c.Observe(snapshot(time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC)))

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"enabled", testutil.ToFloat64(c.enabled), 1},
		{"cpu watts", testutil.ToFloat64(c.watts.WithLabelValues("cpu")), 40},
		{"cpu limit", testutil.ToFloat64(c.limitWatts.WithLabelValues("cpu")), 80},
		{"cpu share", testutil.ToFloat64(c.share.WithLabelValues("cpu")), 0.5},
		{"gpu watts", testutil.ToFloat64(c.watts.WithLabelValues("gpu")), 0},
		{"cpu available", testutil.ToFloat64(c.available.WithLabelValues("cpu")), 1},
		{"gpu available", testutil.ToFloat64(c.available.WithLabelValues("gpu")), 0},
		{"emissions available", testutil.ToFloat64(c.available.WithLabelValues("emissions")), 1},
		{"emissions", testutil.ToFloat64(c.emissionsMg), 1234},
		{"factor", testutil.ToFloat64(c.factor), 0.0131},
		{"power resolved", testutil.ToFloat64(c.phase.WithLabelValues("power", "resolved")), 1},
		{"power pending", testutil.ToFloat64(c.phase.WithLabelValues("power", "pending")), 0},
		{"power ticks", testutil.ToFloat64(c.ticks.WithLabelValues("power", "resolved")), 1},
	}
	for _, tt := range checks {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestTicksCountedOnce(t *testing.T) {
	c := New()
	t0 := time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC)

	c.Observe(snapshot(t0))
	c.Observe(snapshot(t0)) // same tick, observed again

	rejected := snapshot(t0.Add(5 * time.Second))
	rejected.Power.Phase = poll.PhaseRejected
	c.Observe(rejected)

	if got := testutil.ToFloat64(c.ticks.WithLabelValues("power", "resolved")); got != 1 {
		t.Errorf("resolved ticks: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.ticks.WithLabelValues("power", "rejected")); got != 1 {
		t.Errorf("rejected ticks: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.phase.WithLabelValues("power", "rejected")); got != 1 {
		t.Errorf("rejected phase: got %v, want 1", got)
	}
}

func TestFactorFallsBackToLastKnownGood(t *testing.T) {
	c := New()
	snap := snapshot(time.Time{})
	snap.Factor = monitor.FactorSnapshot{LastKnownGood: ptr(0.2)}
	c.Observe(snap)

	if got := testutil.ToFloat64(c.factor); got != 0.2 {
		t.Errorf("factor: got %v, want 0.2", got)
	}
	if got := testutil.ToFloat64(c.phase.WithLabelValues("emission_factor", "idle")); got != 1 {
		t.Errorf("idle phase: got %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	c := New()
	c.Observe(snapshot(time.Now()))

	ts := httptest.NewServer(c.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, name := range []string{"power_usage_watts", "power_usage_emissions_milligrams", "go_goroutines"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("expected %s in exposition", name)
		}
	}
}
