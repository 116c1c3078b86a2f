// Package monitor holds the two polling models: the emission factor model,
// which tracks the grid carbon intensity, and the power usage model, which
// samples CPU and GPU power and integrates emissions over time using the
// latest known factor.
//
// Each model owns one poll.Poller. Its tick handler runs on the poller's
// goroutine, so state updates are sequential per model; getters may be
// called from any goroutine.
package monitor

import (
	"time"

	"github.com/sweeney/power-usage/internal/poll"
)

const (
	// DefaultEmissionFactor is used when the emission source has no value,
	// in g/kWh.
	DefaultEmissionFactor = 475.0

	// MinPowerRefresh and MinEmissionsRefresh are the shortest allowed
	// polling intervals.
	MinPowerRefresh     = 5 * time.Second
	MinEmissionsRefresh = 30 * time.Minute

	// DefaultPowerMaxBackoff caps the power poller's failure backoff.
	DefaultPowerMaxBackoff = 30 * time.Second
	// DefaultEmissionsMaxBackoff caps the emission factor poller's failure
	// backoff.
	DefaultEmissionsMaxBackoff = 2 * time.Hour

	// DefaultEmissionsTimeout bounds one emission factor lookup.
	DefaultEmissionsTimeout = 30 * time.Second
)

// PowerPolicy returns the backoff policy for the power poller.
func PowerPolicy(refresh, maxBackoff time.Duration) poll.Policy {
	if maxBackoff <= 0 {
		maxBackoff = DefaultPowerMaxBackoff
	}
	return poll.Policy{Base: refresh, Multiplier: poll.DefaultMultiplier, Max: maxBackoff}
}

// EmissionsPolicy returns the backoff policy for the emission factor poller.
func EmissionsPolicy(refresh, maxBackoff time.Duration) poll.Policy {
	if maxBackoff <= 0 {
		maxBackoff = DefaultEmissionsMaxBackoff
	}
	return poll.Policy{Base: refresh, Multiplier: poll.DefaultMultiplier, Max: maxBackoff}
}

func floatPtr(v float64) *float64 { return &v }
