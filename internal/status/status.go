// Package status provides a thread-safe status tracker for the power usage
// daemon. It holds the latest snapshot of both polling models and is read by
// the HTTP handlers, the MQTT publisher and the indicator LED.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/power-usage/internal/monitor"
)

// Config contains daemon configuration for display.
type Config struct {
	PowerRefreshMs     int64
	EmissionsRefreshMs int64
	HeartbeatMs        int64
	EmissionSource     string
	CountryCode        string
	Scope              string
	Broker             string
	HTTPAddr           string
	ShowBar            bool
	CPULabel           string
	GPULabel           string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type: safe to use after the lock is released.
type Snapshot struct {
	Power  monitor.PowerSnapshot
	Factor monitor.FactorSnapshot
	// Enabled is false once both models have been disposed because no power
	// metric was available at startup.
	Enabled       bool
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Enabled:   true,
			Config:    cfg,
		},
	}
}

// Update stores the latest model snapshots.
// Called on every change notification from either model.
func (t *Tracker) Update(power monitor.PowerSnapshot, factor monitor.FactorSnapshot) {
	t.mu.Lock()
	t.snap.Power = power
	t.snap.Factor = factor
	t.mu.Unlock()
}

// SetEnabled records whether the models are running.
func (t *Tracker) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.snap.Enabled = enabled
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
