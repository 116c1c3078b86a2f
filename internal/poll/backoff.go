package poll

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

// DefaultMultiplier is the interval growth factor while failing.
const DefaultMultiplier = 2

// Policy controls how often a poller ticks.
// Base is used after every success. Each consecutive failure multiplies the
// interval by Multiplier, up to Max.
type Policy struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
	// Jitter randomizes failure intervals by ±Jitter (0 disables).
	Jitter float64
}

func (p Policy) normalized() Policy {
	if p.Base <= 0 {
		p.Base = time.Second
	}
	if p.Multiplier <= 1 {
		p.Multiplier = DefaultMultiplier
	}
	if p.Max < p.Base {
		p.Max = p.Base
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// Backoff yields the delay before the next tick given the outcome of the
// previous one. It resets to Base on the first success after a failing streak.
type Backoff struct {
	policy Policy
	exp    *backoff.ExponentialBackOff
}

// NewBackoff creates a Backoff for the policy. A nil clock uses the real clock.
func NewBackoff(policy Policy, clock clockwork.Clock) *Backoff {
	policy = policy.normalized()
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	first := time.Duration(float64(policy.Base) * policy.Multiplier)
	if first > policy.Max {
		first = policy.Max
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = first
	exp.Multiplier = policy.Multiplier
	exp.MaxInterval = policy.Max
	exp.RandomizationFactor = policy.Jitter
	exp.MaxElapsedTime = 0 // never give up
	exp.Clock = clock
	exp.Reset()

	return &Backoff{policy: policy, exp: exp}
}

// Next returns the delay to wait after a tick that succeeded (ok) or failed.
func (b *Backoff) Next(ok bool) time.Duration {
	if ok {
		b.exp.Reset()
		return b.policy.Base
	}
	d := b.exp.NextBackOff()
	if d == backoff.Stop || d > b.policy.Max {
		return b.policy.Max
	}
	return d
}

// Policy returns the normalized policy in use.
func (b *Backoff) Policy() Policy {
	return b.policy
}
