// Package poll runs a fetch on a recurring schedule and exposes the outcome
// of the latest tick. Ticks are strictly sequential: at most one fetch is in
// flight per poller, and results arriving after Dispose are dropped.
package poll

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrDisposed is returned by Refresh once the poller has been disposed.
var ErrDisposed = errors.New("poll: disposed")

// Phase is the position of a poller in its tick cycle.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhasePending  Phase = "pending"
	PhaseResolved Phase = "resolved"
	PhaseRejected Phase = "rejected"
	PhaseDisposed Phase = "disposed"
)

// State is the outcome of the latest tick.
// Payload is only meaningful when Phase is PhaseResolved; a rejected tick
// discards it.
type State[T any] struct {
	Phase   Phase
	Payload T
	Err     error
	Tick    time.Time
}

// FetchFunc performs one fetch.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Options configures a Poller.
type Options[T any] struct {
	Name   string
	Fetch  FetchFunc[T]
	Policy Policy
	// Timeout bounds one fetch. Zero uses the policy base interval.
	Timeout time.Duration
	Clock   clockwork.Clock
	Logger  *slog.Logger
}

// Poller ticks Fetch on a timer with failure backoff.
type Poller[T any] struct {
	name    string
	fetch   FetchFunc[T]
	timeout time.Duration
	clock   clockwork.Clock
	log     *slog.Logger

	// tickMu serializes ticks from the loop and from Refresh.
	tickMu sync.Mutex

	mu       sync.Mutex
	state    State[T]
	backoff  *Backoff
	delay    time.Duration
	onTick   func(State[T])
	disposed bool

	life      context.Context
	cancel    context.CancelFunc
	kick      chan struct{}
	startOnce sync.Once
	done      chan struct{}
}

// New creates a poller. It does not tick until Start or Refresh is called.
func New[T any](opts Options[T]) *Poller[T] {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	b := NewBackoff(opts.Policy, clock)
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = b.Policy().Base
	}

	life, cancel := context.WithCancel(context.Background())
	return &Poller[T]{
		name:    opts.Name,
		fetch:   opts.Fetch,
		timeout: timeout,
		clock:   clock,
		log:     log.With("poller", opts.Name),
		state:   State[T]{Phase: PhaseIdle},
		backoff: b,
		delay:   b.Policy().Base,
		life:    life,
		cancel:  cancel,
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// OnTick sets the handler called after every resolved or rejected tick.
// The handler runs on the ticking goroutine and must not block for long.
func (p *Poller[T]) OnTick(fn func(State[T])) {
	p.mu.Lock()
	p.onTick = fn
	p.mu.Unlock()
}

// Start launches the polling loop. The first scheduled tick happens after the
// base interval; use Refresh for an immediate one. Cancelling ctx disposes the
// poller. Calling Start more than once has no effect.
func (p *Poller[T]) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		go p.run(ctx)
	})
}

func (p *Poller[T]) run(ctx context.Context) {
	defer close(p.done)
	for {
		timer := p.clock.NewTimer(p.nextDelay())
		select {
		case <-p.life.Done():
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			p.Dispose()
			return
		case <-p.kick:
			timer.Stop()
		case <-timer.Chan():
			p.tick(ctx)
		}
	}
}

// Refresh ticks immediately and returns once the tick has been handled.
// The regular schedule restarts from this tick.
func (p *Poller[T]) Refresh(ctx context.Context) error {
	if p.Disposed() {
		return ErrDisposed
	}
	p.tick(ctx)
	select {
	case p.kick <- struct{}{}:
	default:
	}
	if p.Disposed() {
		return ErrDisposed
	}
	return nil
}

func (p *Poller[T]) tick(ctx context.Context) {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.state.Phase = PhasePending
	p.mu.Unlock()

	fctx, cancel := context.WithTimeout(p.life, p.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	payload, err := p.fetch(fctx)

	p.mu.Lock()
	if p.disposed {
		// Late result after Dispose: drop it.
		p.mu.Unlock()
		p.log.Debug("poll result dropped after dispose")
		return
	}
	next := State[T]{Phase: PhaseResolved, Payload: payload, Tick: p.clock.Now()}
	if err != nil {
		var zero T
		next = State[T]{Phase: PhaseRejected, Payload: zero, Err: err, Tick: next.Tick}
	}
	p.state = next
	p.delay = p.backoff.Next(err == nil)
	delay := p.delay
	handler := p.onTick
	p.mu.Unlock()

	if err != nil {
		p.log.Debug("poll rejected", "error", err, "next", delay)
	}
	if handler != nil {
		handler(next)
	}
}

func (p *Poller[T]) nextDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delay
}

// State returns the latest tick state.
func (p *Poller[T]) State() State[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// NextDelay returns the delay the loop will wait before the next tick.
func (p *Poller[T]) NextDelay() time.Duration {
	return p.nextDelay()
}

// Dispose stops the loop and cancels any in-flight fetch. A handler that is
// already running is not waited for. Dispose is idempotent.
func (p *Poller[T]) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	p.state = State[T]{Phase: PhaseDisposed, Tick: p.state.Tick}
	p.mu.Unlock()

	p.cancel()
	p.log.Debug("poller disposed")
}

// Disposed reports whether Dispose has been called.
func (p *Poller[T]) Disposed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disposed
}

// Done is closed when a started loop has exited.
func (p *Poller[T]) Done() <-chan struct{} {
	return p.done
}
