package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sweeney/power-usage/internal/logic"
	"github.com/sweeney/power-usage/internal/poll"
)

// FactorSource looks up a grid carbon intensity in g/kWh. ok is false when
// no value could be obtained.
type FactorSource interface {
	Fetch(ctx context.Context, source, zone, accessToken string) (value float64, ok bool)
}

// EmissionFactorOptions configures an EmissionFactor model.
type EmissionFactorOptions struct {
	Source      FactorSource
	SourceID    string
	CountryCode string
	AccessToken string
	// DefaultFactor in g/kWh applies when the source has no value.
	// Zero uses DefaultEmissionFactor.
	DefaultFactor float64
	Policy        poll.Policy
	// Timeout bounds one lookup. Zero uses DefaultEmissionsTimeout.
	Timeout time.Duration
	Clock   clockwork.Clock
	Logger  *slog.Logger
}

// FactorSnapshot is a point-in-time copy of the emission factor model.
// Factors are in mg/Ws.
type FactorSnapshot struct {
	Available     bool
	Factor        *float64
	LastKnownGood *float64
	Phase         poll.Phase
	LastTick      time.Time
	NextPoll      time.Duration
}

// EmissionFactor polls the emission source and exposes the current factor
// in mg/Ws.
type EmissionFactor struct {
	poller        *poll.Poller[float64]
	source        FactorSource
	sourceID      string
	zone          string
	token         string
	defaultFactor float64
	log           *slog.Logger

	mu            sync.RWMutex
	available     bool
	current       float64
	lastKnownGood *float64
	// sourced is the last factor obtained from the source itself.
	sourced       *float64
	disposed      bool

	subs observers
}

// NewEmissionFactor creates the model. It does not poll until Start or
// Refresh is called.
func NewEmissionFactor(opts EmissionFactorOptions) *EmissionFactor {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	def := opts.DefaultFactor
	if def <= 0 {
		def = DefaultEmissionFactor
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultEmissionsTimeout
	}
	e := &EmissionFactor{
		source:        opts.Source,
		sourceID:      opts.SourceID,
		zone:          opts.CountryCode,
		token:         opts.AccessToken,
		defaultFactor: def,
		log:           log.With("model", "emission_factor"),
	}
	e.poller = poll.New(poll.Options[float64]{
		Name:    "emission_factor",
		Fetch:   e.fetch,
		Policy:  opts.Policy,
		Timeout: timeout,
		Clock:   opts.Clock,
		Logger:  log,
	})
	e.poller.OnTick(e.handle)
	return e
}

// fetch resolves to the factor in mg/Ws. A lookup without data resolves to
// the last factor the source produced, or to the default factor until the
// source has produced one. Only an interrupted lookup rejects.
func (e *EmissionFactor) fetch(ctx context.Context) (float64, error) {
	g, ok := e.source.Fetch(ctx, e.sourceID, e.zone, e.token)
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if ok && g > 0 {
		f := logic.GramsPerKWhToMgPerWs(g)
		e.sourced = floatPtr(f)
		return f, nil
	}
	if e.sourced != nil {
		e.log.Debug("no fresh emission factor, keeping last sourced value", "factor", *e.sourced)
		return *e.sourced, nil
	}
	return logic.GramsPerKWhToMgPerWs(e.defaultFactor), nil
}

func (e *EmissionFactor) handle(st poll.State[float64]) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	was := e.available
	notify := true
	switch st.Phase {
	case poll.PhaseResolved:
		e.available = true
		e.current = st.Payload
		e.lastKnownGood = floatPtr(st.Payload)
	case poll.PhaseRejected:
		e.available = false
		e.current = 0
		notify = was
	}
	now := e.available
	e.mu.Unlock()

	if was != now {
		e.log.Info("emission factor availability changed", "available", now)
	}
	if notify {
		e.subs.emit()
	}
}

// Start launches background polling. Cancelling ctx disposes the model.
func (e *EmissionFactor) Start(ctx context.Context) {
	e.poller.Start(ctx)
	context.AfterFunc(ctx, e.Dispose)
}

// Refresh polls immediately and returns once the result has been applied.
func (e *EmissionFactor) Refresh(ctx context.Context) error {
	return e.poller.Refresh(ctx)
}

// Available reports whether the latest lookup produced a factor.
func (e *EmissionFactor) Available() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.available
}

// CurrentFactor returns the factor in mg/Ws from the latest lookup. ok is
// false while the factor is unavailable.
func (e *EmissionFactor) CurrentFactor() (factor float64, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current, e.available
}

// Snapshot returns a copy of the model state.
func (e *EmissionFactor) Snapshot() FactorSnapshot {
	st := e.poller.State()
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := FactorSnapshot{
		Available: e.available,
		Phase:     st.Phase,
		LastTick:  st.Tick,
		NextPoll:  e.poller.NextDelay(),
	}
	if e.available {
		s.Factor = floatPtr(e.current)
	}
	if e.lastKnownGood != nil {
		s.LastKnownGood = floatPtr(*e.lastKnownGood)
	}
	return s
}

// Subscribe registers fn to be called after each change. fn runs on the
// polling goroutine.
func (e *EmissionFactor) Subscribe(fn func()) (unsubscribe func()) {
	return e.subs.subscribe(fn)
}

// Dispose stops polling. No notification is delivered once Dispose returns.
// Dispose is idempotent.
func (e *EmissionFactor) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	e.mu.Unlock()

	e.poller.Dispose()
	e.subs.close()
}

// Disposed reports whether Dispose has been called.
func (e *EmissionFactor) Disposed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.disposed
}
