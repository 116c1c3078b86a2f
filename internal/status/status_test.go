package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/power-usage/internal/logic"
	"github.com/sweeney/power-usage/internal/monitor"
	"github.com/sweeney/power-usage/internal/poll"
)

func f64(v float64) *float64 { return &v }

func samplePower() monitor.PowerSnapshot {
	values := logic.NewHistory(logic.HistorySize).Values()
	values = append(values[1:], logic.MetricValue{CPUPowerShare: f64(0.9)})
	return monitor.PowerSnapshot{
		CPUAvailable:       true,
		EmissionsAvailable: true,
		CPU:                &logic.Reading{Usage: 90, Limit: 100},
		CurrentEmissions:   f64(1.5),
		EmissionsUnit:      logic.UnitGram,
		TotalEmissionsMg:   1500,
		Values:             values,
		Phase:              poll.PhaseResolved,
		LastTick:           time.Date(2026, 1, 1, 0, 14, 55, 0, time.UTC),
		NextPoll:           5 * time.Second,
	}
}

func sampleFactor() monitor.FactorSnapshot {
	return monitor.FactorSnapshot{
		Available:     true,
		Factor:        f64(0.1),
		LastKnownGood: f64(0.1),
		Phase:         poll.PhaseResolved,
		NextPoll:      30 * time.Minute,
	}
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{PowerRefreshMs: 5000, Broker: "tcp://localhost:1883", HTTPAddr: ":8080"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.PowerRefreshMs != 5000 {
		t.Errorf("Config.PowerRefreshMs: got %d, want 5000", snap.Config.PowerRefreshMs)
	}
	if !snap.Enabled {
		t.Error("expected Enabled=true initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
	if snap.Power.CPUAvailable {
		t.Error("expected no CPU before first update")
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Update(samplePower(), sampleFactor())

	snap := tr.Snapshot()
	if !snap.Power.CPUAvailable {
		t.Error("expected CPUAvailable=true")
	}
	if snap.Power.CPU.Usage != 90 {
		t.Errorf("CPU usage: got %v, want 90", snap.Power.CPU.Usage)
	}
	if !snap.Factor.Available {
		t.Error("expected Factor.Available=true")
	}
}

func TestSetEnabled(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.SetEnabled(false)
	if tr.Snapshot().Enabled {
		t.Error("expected Enabled=false")
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Update(samplePower(), sampleFactor())

	snap1 := tr.Snapshot()
	tr.Update(monitor.PowerSnapshot{}, monitor.FactorSnapshot{})

	if !snap1.Power.CPUAvailable {
		t.Error("snapshot should be a copy; Power was modified")
	}
	if !snap1.Factor.Available {
		t.Error("snapshot should be a copy; Factor was modified")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Power:         samplePower(),
		Factor:        sampleFactor(),
		Enabled:       true,
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config: Config{
			PowerRefreshMs: 5000,
			EmissionSource: "national-grid",
			CountryCode:    "fr",
			Broker:         "tcp://localhost:1883",
			CPULabel:       "CPU Power: ",
			GPULabel:       "GPU Power: ",
		},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := parsed.Status

	if !s.CPU.Available {
		t.Error("expected cpu.available=true")
	}
	if s.CPU.Text != "90.00 / 100 W" {
		t.Errorf("cpu.text: got %q, want %q", s.CPU.Text, "90.00 / 100 W")
	}
	if s.CPU.Share != 0.9 {
		t.Errorf("cpu.share: got %v, want 0.9", s.CPU.Share)
	}
	if s.CPU.Color != logic.ColorRed {
		t.Errorf("cpu.color: got %q, want red", s.CPU.Color)
	}
	if s.CPU.Label != "CPU Power: " {
		t.Errorf("cpu.label: got %q", s.CPU.Label)
	}
	if s.GPU.Available || s.GPU.UsageW != nil {
		t.Errorf("gpu: got %+v, want unavailable", s.GPU)
	}
	if s.Emissions.Text != "2 g" {
		t.Errorf("emissions.text: got %q, want %q", s.Emissions.Text, "2 g")
	}
	if s.Emissions.TotalMg != 1500 {
		t.Errorf("emissions.total_mg: got %v, want 1500", s.Emissions.TotalMg)
	}
	if s.Emissions.Source != "national-grid" {
		t.Errorf("emissions.source: got %q", s.Emissions.Source)
	}
	if len(s.History) != logic.HistorySize {
		t.Errorf("history length: got %d, want %d", len(s.History), logic.HistorySize)
	}
	if s.Pollers.Power.Phase != "resolved" {
		t.Errorf("pollers.power.phase: got %q", s.Pollers.Power.Phase)
	}
	if s.Pollers.Power.NextPollMs != 5000 {
		t.Errorf("pollers.power.next_poll_ms: got %d", s.Pollers.Power.NextPollMs)
	}
	if s.Pollers.EmissionFactor.LastTick != "" {
		t.Errorf("pollers.emission_factor.last_tick: got %q, want empty", s.Pollers.EmissionFactor.LastTick)
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if !s.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if s.Event != "" || s.Reason != "" {
		t.Errorf("expected empty event/reason for web format, got %q/%q", s.Event, s.Reason)
	}
}

func TestFormatJSONBeforeFirstTick(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var raw map[string]any
	if err := json.Unmarshal(FormatJSON(snap), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	status := raw["status"].(map[string]any)
	pollers := status["pollers"].(map[string]any)
	if got := pollers["power"].(map[string]any)["phase"]; got != "idle" {
		t.Errorf("power phase: got %v, want idle", got)
	}
	em := status["emissions"].(map[string]any)
	if em["unit"] != "mg" {
		t.Errorf("emissions.unit: got %v, want mg", em["unit"])
	}
	if em["current"] != nil {
		t.Errorf("emissions.current: got %v, want null", em["current"])
	}
}

func TestHistoryKeepsNullShares(t *testing.T) {
	pw := samplePower()
	pw.Values[0] = logic.MetricValue{}
	data := FormatJSON(Snapshot{Power: pw})

	var raw map[string]any
	json.Unmarshal(data, &raw)
	hist := raw["status"].(map[string]any)["history"].([]any)
	first := hist[0].(map[string]any)
	if v, ok := first["cpu"]; !ok || v != nil {
		t.Errorf("history[0].cpu: got %v (present=%v), want null", v, ok)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Power:     samplePower(),
		Factor:    sampleFactor(),
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "HEARTBEAT", "")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("Event: got %q, want HEARTBEAT", parsed.Status.Event)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{StartTime: start, Now: start.Add(30 * time.Minute)}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatStatusEvent(snap, "STARTUP", "")

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Update(samplePower(), sampleFactor())
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetEnabled(i%3 != 0)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
