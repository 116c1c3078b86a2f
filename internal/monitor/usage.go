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

// PowerSource fetches one power sample.
type PowerSource interface {
	Fetch(ctx context.Context) (logic.PowerSample, error)
}

// FactorReader exposes the current emission factor in mg/Ws.
type FactorReader interface {
	CurrentFactor() (factor float64, ok bool)
}

// PowerUsageOptions configures a PowerUsage model.
type PowerUsageOptions struct {
	Source PowerSource
	Factor FactorReader
	Policy poll.Policy
	// Timeout bounds one fetch. Zero uses the policy base interval.
	Timeout time.Duration
	// HistorySize defaults to logic.HistorySize.
	HistorySize int
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

// PowerSnapshot is a point-in-time copy of the power usage model.
type PowerSnapshot struct {
	CPUAvailable       bool
	GPUAvailable       bool
	EmissionsAvailable bool
	CPU                *logic.Reading
	GPU                *logic.Reading
	// CurrentEmissions is the running total in EmissionsUnit.
	CurrentEmissions *float64
	EmissionsUnit    logic.EmissionsUnit
	TotalEmissionsMg float64
	Values           []logic.MetricValue
	Phase            poll.Phase
	LastTick         time.Time
	NextPoll         time.Duration
}

// PowerUsage polls power samples, keeps the share history and integrates
// emissions.
type PowerUsage struct {
	poller *poll.Poller[logic.PowerSample]
	factor FactorReader
	log    *slog.Logger

	mu                 sync.RWMutex
	cpuAvailable       bool
	gpuAvailable       bool
	emissionsAvailable bool
	cpu                *logic.Reading
	gpu                *logic.Reading
	currentEmissions   *float64
	unit               logic.EmissionsUnit
	// lastFactor is the most recent factor ever observed, kept across
	// emission source outages.
	lastFactor *float64
	acc        *logic.Accumulator
	history    *logic.History
	disposed   bool

	subs observers
}

// NewPowerUsage creates the model with a zero-filled history. The emissions
// integral starts at the current clock time. It does not poll until Start
// or Refresh is called.
func NewPowerUsage(opts PowerUsageOptions) *PowerUsage {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	size := opts.HistorySize
	if size <= 0 {
		size = logic.HistorySize
	}
	u := &PowerUsage{
		factor:  opts.Factor,
		log:     log.With("model", "power_usage"),
		unit:    logic.UnitMilligram,
		acc:     logic.NewAccumulator(clock.Now()),
		history: logic.NewHistory(size),
	}
	u.poller = poll.New(poll.Options[logic.PowerSample]{
		Name:    "power_usage",
		Fetch:   opts.Source.Fetch,
		Policy:  opts.Policy,
		Timeout: opts.Timeout,
		Clock:   clock,
		Logger:  log,
	})
	u.poller.OnTick(u.handle)
	return u
}

func (u *PowerUsage) handle(st poll.State[logic.PowerSample]) {
	u.mu.Lock()
	if u.disposed {
		u.mu.Unlock()
		return
	}
	was := u.cpuAvailable || u.gpuAvailable
	notify := true
	switch st.Phase {
	case poll.PhaseResolved:
		u.resolve(st.Payload, st.Tick)
	case poll.PhaseRejected:
		u.reject()
		notify = was
	}
	now := u.cpuAvailable || u.gpuAvailable
	u.mu.Unlock()

	if was != now {
		u.log.Info("power availability changed", "available", now)
	}
	if notify {
		u.subs.emit()
	}
}

// resolve applies a sample. Must hold u.mu.
func (u *PowerUsage) resolve(s logic.PowerSample, now time.Time) {
	u.cpuAvailable = s.CPU != nil
	u.gpuAvailable = s.GPU != nil
	u.cpu = copyReading(s.CPU)
	u.gpu = copyReading(s.GPU)

	if u.factor != nil {
		if f, ok := u.factor.CurrentFactor(); ok {
			u.lastFactor = floatPtr(f)
		}
	}
	u.emissionsAvailable = u.lastFactor != nil && (u.cpuAvailable || u.gpuAvailable)

	if u.emissionsAvailable {
		u.acc.Accumulate(*u.lastFactor, s.TotalWatts(), now)
		v, unit := logic.ConvertToLargestUnit(u.acc.TotalMg())
		u.currentEmissions = floatPtr(v)
		u.unit = unit
	} else {
		u.currentEmissions = nil
	}

	u.history.Push(logic.ValueFor(s))
}

// reject clears the display fields. The accumulator is left alone so the
// outage is not billed. Must hold u.mu.
func (u *PowerUsage) reject() {
	u.cpuAvailable = false
	u.gpuAvailable = false
	u.emissionsAvailable = false
	u.cpu = nil
	u.gpu = nil
	u.currentEmissions = nil
	u.history.Push(logic.MetricValue{})
}

func copyReading(r *logic.Reading) *logic.Reading {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Start launches background polling. Cancelling ctx disposes the model.
func (u *PowerUsage) Start(ctx context.Context) {
	u.poller.Start(ctx)
	context.AfterFunc(ctx, u.Dispose)
}

// Refresh polls immediately and returns once the sample has been applied.
func (u *PowerUsage) Refresh(ctx context.Context) error {
	return u.poller.Refresh(ctx)
}

// CPUPowerAvailable reports whether the latest sample had a CPU reading.
func (u *PowerUsage) CPUPowerAvailable() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.cpuAvailable
}

// GPUPowerAvailable reports whether the latest sample had a GPU reading.
func (u *PowerUsage) GPUPowerAvailable() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.gpuAvailable
}

// EmissionsAvailable reports whether a factor has ever been seen and at
// least one device is being measured.
func (u *PowerUsage) EmissionsAvailable() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.emissionsAvailable && (u.cpuAvailable || u.gpuAvailable)
}

// CurrentCPUPower returns the CPU draw in watts.
func (u *PowerUsage) CurrentCPUPower() (float64, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.cpu == nil {
		return 0, false
	}
	return u.cpu.Usage, true
}

// CurrentCPUPowerLimit returns the host CPU power limit in watts.
func (u *PowerUsage) CurrentCPUPowerLimit() (float64, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.cpu == nil {
		return 0, false
	}
	return u.cpu.Limit, true
}

// CurrentGPUPower returns the GPU draw in watts.
func (u *PowerUsage) CurrentGPUPower() (float64, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.gpu == nil {
		return 0, false
	}
	return u.gpu.Usage, true
}

// CurrentGPULimit returns the GPU power limit in watts.
func (u *PowerUsage) CurrentGPULimit() (float64, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.gpu == nil {
		return 0, false
	}
	return u.gpu.Limit, true
}

// CurrentEmissions returns the running total in EmissionsUnit.
func (u *PowerUsage) CurrentEmissions() (float64, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.currentEmissions == nil {
		return 0, false
	}
	return *u.currentEmissions, true
}

// EmissionsUnit is the unit of CurrentEmissions.
func (u *PowerUsage) EmissionsUnit() logic.EmissionsUnit {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.unit
}

// TotalEmissions returns the accumulated emissions in mg. It never
// decreases.
func (u *PowerUsage) TotalEmissions() float64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.acc.TotalMg()
}

// Values returns the share history, oldest first.
func (u *PowerUsage) Values() []logic.MetricValue {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.history.Values()
}

// Snapshot returns a copy of the model state.
func (u *PowerUsage) Snapshot() PowerSnapshot {
	st := u.poller.State()
	next := u.poller.NextDelay()
	u.mu.RLock()
	defer u.mu.RUnlock()
	s := PowerSnapshot{
		CPUAvailable:       u.cpuAvailable,
		GPUAvailable:       u.gpuAvailable,
		EmissionsAvailable: u.emissionsAvailable && (u.cpuAvailable || u.gpuAvailable),
		CPU:                copyReading(u.cpu),
		GPU:                copyReading(u.gpu),
		EmissionsUnit:      u.unit,
		TotalEmissionsMg:   u.acc.TotalMg(),
		Values:             u.history.Values(),
		Phase:              st.Phase,
		LastTick:           st.Tick,
		NextPoll:           next,
	}
	if u.currentEmissions != nil {
		s.CurrentEmissions = floatPtr(*u.currentEmissions)
	}
	return s
}

// Subscribe registers fn to be called after each change. fn runs on the
// polling goroutine.
func (u *PowerUsage) Subscribe(fn func()) (unsubscribe func()) {
	return u.subs.subscribe(fn)
}

// Dispose stops polling. No notification is delivered once Dispose returns.
// Dispose is idempotent.
func (u *PowerUsage) Dispose() {
	u.mu.Lock()
	if u.disposed {
		u.mu.Unlock()
		return
	}
	u.disposed = true
	u.mu.Unlock()

	u.poller.Dispose()
	u.subs.close()
}

// Disposed reports whether Dispose has been called.
func (u *PowerUsage) Disposed() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.disposed
}
