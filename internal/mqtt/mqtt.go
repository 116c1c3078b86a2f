// Package mqtt publishes power readings and daemon lifecycle events to an
// MQTT broker, with a fake publisher for tests.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/power-usage/internal/logic"
	"github.com/sweeney/power-usage/internal/monitor"
)

// Topic is the MQTT topic for power readings.
const Topic = "energy/power-usage/readings"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "energy/power-usage/system"

// Publisher publishes readings and lifecycle events to MQTT.
type Publisher interface {
	// Publish sends a power reading to the broker.
	// A failure is returned to the caller and must not stop the daemon.
	Publish(r Reading) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Reading is one power tick as published to Topic.
type Reading struct {
	Timestamp time.Time
	CPU       *logic.Reading
	GPU       *logic.Reading
	CPUShare  *float64
	GPUShare  *float64
	// Emissions is the running total in Unit; nil when emissions are
	// unavailable.
	Emissions *float64
	Unit      logic.EmissionsUnit
	TotalMg   float64
	Factor    *float64
}

// NewReading builds a Reading from the models' latest snapshots.
func NewReading(ts time.Time, p monitor.PowerSnapshot, f monitor.FactorSnapshot) Reading {
	r := Reading{
		Timestamp: ts,
		CPU:       p.CPU,
		GPU:       p.GPU,
		Emissions: p.CurrentEmissions,
		Unit:      p.EmissionsUnit,
		TotalMg:   p.TotalEmissionsMg,
		Factor:    f.Factor,
	}
	if n := len(p.Values); n > 0 {
		r.CPUShare = p.Values[n-1].CPUPowerShare
		r.GPUShare = p.Values[n-1].GPUPowerShare
	}
	return r
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Power PowerPayload `json:"power"`
}

// PowerPayload contains the reading details.
type PowerPayload struct {
	Timestamp string            `json:"timestamp"`
	CPU       *DevicePayload    `json:"cpu,omitempty"`
	GPU       *DevicePayload    `json:"gpu,omitempty"`
	Emissions *EmissionsPayload `json:"emissions,omitempty"`
	// FactorMgPerWs is null while the emission factor is unavailable.
	FactorMgPerWs *float64 `json:"factor_mg_per_ws"`
}

// DevicePayload is one device's draw in watts.
type DevicePayload struct {
	Usage float64  `json:"usage"`
	Limit float64  `json:"limit"`
	Share *float64 `json:"share"`
}

// EmissionsPayload is the emissions total.
type EmissionsPayload struct {
	Value   float64 `json:"value"`
	Unit    string  `json:"unit"`
	TotalMg float64 `json:"total_mg"`
}

func devicePayload(r *logic.Reading, share *float64) *DevicePayload {
	if r == nil {
		return nil
	}
	return &DevicePayload{Usage: r.Usage, Limit: r.Limit, Share: share}
}

// FormatPayload creates the JSON payload for a reading.
func FormatPayload(r Reading) ([]byte, error) {
	payload := Payload{
		Power: PowerPayload{
			Timestamp:     r.Timestamp.UTC().Format(time.RFC3339),
			CPU:           devicePayload(r.CPU, r.CPUShare),
			GPU:           devicePayload(r.GPU, r.GPUShare),
			FactorMgPerWs: r.Factor,
		},
	}
	if r.Emissions != nil {
		payload.Power.Emissions = &EmissionsPayload{
			Value:   *r.Emissions,
			Unit:    string(r.Unit),
			TotalMg: r.TotalMg,
		}
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// WillPayload is the last-will message the broker publishes on TopicSystem
// when the connection drops without a clean disconnect.
func WillPayload(now time.Time) []byte {
	data, _ := FormatSystemPayload(SystemEvent{Timestamp: now, Event: "SHUTDOWN", Reason: "MQTT_DISCONNECT"})
	return data
}
