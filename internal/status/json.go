package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/power-usage/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Enabled       bool          `json:"enabled"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	CPU           DeviceJSON    `json:"cpu"`
	GPU           DeviceJSON    `json:"gpu"`
	Emissions     EmissionsJSON `json:"emissions"`
	History       []ShareJSON   `json:"history"`
	Pollers       PollersJSON   `json:"pollers"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Config        ConfigJSON    `json:"config"`
}

// DeviceJSON is one power indicator.
type DeviceJSON struct {
	Available bool     `json:"available"`
	Label     string   `json:"label"`
	UsageW    *float64 `json:"usage_w"`
	LimitW    *float64 `json:"limit_w"`
	Share     float64  `json:"share"`
	Color     string   `json:"color"`
	Text      string   `json:"text"`
}

// EmissionsJSON is the emissions indicator plus the factor it is based on.
type EmissionsJSON struct {
	Available       bool     `json:"available"`
	Current         *float64 `json:"current"`
	Unit            string   `json:"unit"`
	TotalMg         float64  `json:"total_mg"`
	Text            string   `json:"text"`
	FactorAvailable bool     `json:"factor_available"`
	FactorMgPerWs   *float64 `json:"factor_mg_per_ws"`
	LastKnownFactor *float64 `json:"last_known_factor_mg_per_ws"`
	Source          string   `json:"source"`
	CountryCode     string   `json:"country_code"`
}

// ShareJSON is one history entry. Null shares mark unavailable ticks.
type ShareJSON struct {
	CPU *float64 `json:"cpu"`
	GPU *float64 `json:"gpu"`
}

// PollersJSON reports the tick state of both pollers.
type PollersJSON struct {
	Power          PollerJSON `json:"power"`
	EmissionFactor PollerJSON `json:"emission_factor"`
}

// PollerJSON is one poller's tick state.
type PollerJSON struct {
	Phase      string `json:"phase"`
	LastTick   string `json:"last_tick,omitempty"`
	NextPollMs int64  `json:"next_poll_ms"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PowerRefreshMs     int64  `json:"power_refresh_ms"`
	EmissionsRefreshMs int64  `json:"emissions_refresh_ms"`
	HeartbeatMs        int64  `json:"heartbeat_ms"`
	Scope              string `json:"scope"`
	Broker             string `json:"broker"`
	HTTPAddr           string `json:"http_addr"`
	ShowBar            bool   `json:"show_bar"`
}

func buildDevice(available bool, label string, r *logic.Reading, share float64) DeviceJSON {
	d := DeviceJSON{
		Available: available,
		Label:     label,
		Share:     share,
		Color:     logic.ShareColor(share),
	}
	if r != nil {
		d.UsageW = &r.Usage
		d.LimitW = &r.Limit
		d.Text = logic.FormatPower(r.Usage, r.Limit)
	}
	return d
}

func buildPoller(phase string, tick time.Time, next time.Duration) PollerJSON {
	p := PollerJSON{Phase: phase, NextPollMs: next.Milliseconds()}
	if phase == "" {
		p.Phase = "idle"
	}
	if !tick.IsZero() {
		p.LastTick = tick.UTC().Format(time.RFC3339)
	}
	return p
}

func buildInner(snap Snapshot) StatusInner {
	pw := snap.Power
	cfg := snap.Config

	inner := StatusInner{
		Enabled:       snap.Enabled,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		CPU:           buildDevice(pw.CPUAvailable, cfg.CPULabel, pw.CPU, logic.LatestShare(pw.Values, logic.CPUShare)),
		GPU:           buildDevice(pw.GPUAvailable, cfg.GPULabel, pw.GPU, logic.LatestShare(pw.Values, logic.GPUShare)),
		Emissions: EmissionsJSON{
			Available:       pw.EmissionsAvailable,
			Current:         pw.CurrentEmissions,
			Unit:            string(unitOrDefault(pw.EmissionsUnit)),
			TotalMg:         pw.TotalEmissionsMg,
			FactorAvailable: snap.Factor.Available,
			FactorMgPerWs:   snap.Factor.Factor,
			LastKnownFactor: snap.Factor.LastKnownGood,
			Source:          cfg.EmissionSource,
			CountryCode:     cfg.CountryCode,
		},
		History: make([]ShareJSON, len(pw.Values)),
		Pollers: PollersJSON{
			Power:          buildPoller(string(pw.Phase), pw.LastTick, pw.NextPoll),
			EmissionFactor: buildPoller(string(snap.Factor.Phase), snap.Factor.LastTick, snap.Factor.NextPoll),
		},
		MQTT: MQTTStatus{Connected: snap.MQTTConnected, Broker: cfg.Broker},
		Config: ConfigJSON{
			PowerRefreshMs:     cfg.PowerRefreshMs,
			EmissionsRefreshMs: cfg.EmissionsRefreshMs,
			HeartbeatMs:        cfg.HeartbeatMs,
			Scope:              cfg.Scope,
			Broker:             cfg.Broker,
			HTTPAddr:           cfg.HTTPAddr,
			ShowBar:            cfg.ShowBar,
		},
	}
	if pw.CurrentEmissions != nil {
		inner.Emissions.Text = logic.FormatEmissions(*pw.CurrentEmissions, pw.EmissionsUnit)
	}
	for i, v := range pw.Values {
		inner.History[i] = ShareJSON{CPU: v.CPUPowerShare, GPU: v.GPUPowerShare}
	}
	return inner
}

func unitOrDefault(u logic.EmissionsUnit) logic.EmissionsUnit {
	if u == "" {
		return logic.UnitMilligram
	}
	return u
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// View returns the status details for rendering.
func View(snap Snapshot) StatusInner {
	return buildInner(snap)
}
