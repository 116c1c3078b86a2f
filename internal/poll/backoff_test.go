package poll

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestBackoffSequence(t *testing.T) {
	b := NewBackoff(Policy{Base: 5 * time.Second, Multiplier: 2, Max: 30 * time.Second}, clockwork.NewFakeClock())

	steps := []struct {
		ok   bool
		want time.Duration
	}{
		{true, 5 * time.Second},
		{false, 10 * time.Second},
		{false, 20 * time.Second},
		{false, 30 * time.Second},
		{false, 30 * time.Second},
		{true, 5 * time.Second},
		{false, 10 * time.Second},
	}

	for i, s := range steps {
		if got := b.Next(s.ok); got != s.want {
			t.Errorf("step %d (ok=%v): got %v, want %v", i, s.ok, got, s.want)
		}
	}
}

func TestBackoffMaxBelowBase(t *testing.T) {
	b := NewBackoff(Policy{Base: 30 * time.Minute, Multiplier: 3, Max: time.Minute}, clockwork.NewFakeClock())

	for i := 0; i < 4; i++ {
		if got := b.Next(false); got != 30*time.Minute {
			t.Errorf("failure %d: got %v, want base as ceiling", i, got)
		}
	}
}

func TestPolicyNormalized(t *testing.T) {
	p := Policy{}.normalized()
	if p.Base != time.Second {
		t.Errorf("Base: got %v, want 1s", p.Base)
	}
	if p.Multiplier != DefaultMultiplier {
		t.Errorf("Multiplier: got %v, want %v", p.Multiplier, DefaultMultiplier)
	}
	if p.Max != p.Base {
		t.Errorf("Max: got %v, want %v", p.Max, p.Base)
	}
}

func TestBackoffJitterStaysInRange(t *testing.T) {
	b := NewBackoff(Policy{Base: 10 * time.Second, Multiplier: 2, Max: time.Hour, Jitter: 0.5}, clockwork.NewFakeClock())

	got := b.Next(false)
	if got < 10*time.Second || got > 30*time.Second {
		t.Errorf("first failure with jitter: got %v, want within [10s, 30s]", got)
	}
}
