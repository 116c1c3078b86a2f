// Package metrics mirrors the daemon's poller state as Prometheus metrics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/power-usage/internal/logic"
	"github.com/sweeney/power-usage/internal/poll"
	"github.com/sweeney/power-usage/internal/status"
)

const namespace = "power_usage"

var phases = []poll.Phase{
	poll.PhaseIdle,
	poll.PhasePending,
	poll.PhaseResolved,
	poll.PhaseRejected,
	poll.PhaseDisposed,
}

// Collector holds the daemon's metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	enabled     prometheus.Gauge
	watts       *prometheus.GaugeVec
	limitWatts  *prometheus.GaugeVec
	share       *prometheus.GaugeVec
	available   *prometheus.GaugeVec
	emissionsMg prometheus.Gauge
	factor      prometheus.Gauge
	phase       *prometheus.GaugeVec
	ticks       *prometheus.CounterVec

	mu       sync.Mutex
	lastTick map[string]time.Time
}

// New creates a Collector and registers its metrics, plus the Go runtime and
// process collectors, on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		enabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "enabled",
			Help:      "1 while the pollers run, 0 once disabled because no power metric was available",
		}),
		watts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watts",
			Help:      "Current power draw by device",
		}, []string{"device"}),
		limitWatts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "limit_watts",
			Help:      "Power limit by device (0 when unknown)",
		}, []string{"device"}),
		share: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "share",
			Help:      "Latest usage/limit share by device, in [0,1]",
		}, []string{"device"}),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "available",
			Help:      "Availability of each metric (1=available)",
		}, []string{"metric"}),
		emissionsMg: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "emissions_milligrams",
			Help:      "Cumulative CO2-equivalent emissions estimate since start",
		}),
		factor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "emission_factor_mg_per_ws",
			Help:      "Emission factor in use (latest, or last known good)",
		}),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poller_phase",
			Help:      "Current phase of each poller (1 for the active phase)",
		}, []string{"poller", "phase"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poller_ticks_total",
			Help:      "Completed poller ticks by outcome",
		}, []string{"poller", "outcome"}),
		lastTick: make(map[string]time.Time),
	}

	c.registry.MustRegister(
		c.enabled, c.watts, c.limitWatts, c.share, c.available,
		c.emissionsMg, c.factor, c.phase, c.ticks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry the metrics live on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (c *Collector) setDevice(device string, r *logic.Reading, share float64) {
	if r == nil {
		c.watts.WithLabelValues(device).Set(0)
		c.limitWatts.WithLabelValues(device).Set(0)
	} else {
		c.watts.WithLabelValues(device).Set(r.Usage)
		c.limitWatts.WithLabelValues(device).Set(r.Limit)
	}
	c.share.WithLabelValues(device).Set(share)
}

func (c *Collector) setPhase(poller string, current poll.Phase, tick time.Time) {
	if current == "" {
		current = poll.PhaseIdle
	}
	for _, p := range phases {
		c.phase.WithLabelValues(poller, string(p)).Set(boolGauge(p == current))
	}

	// A tick is counted once, when its timestamp is first seen.
	if tick.IsZero() || !tick.After(c.lastTick[poller]) {
		return
	}
	c.lastTick[poller] = tick
	switch current {
	case poll.PhaseResolved, poll.PhaseRejected:
		c.ticks.WithLabelValues(poller, string(current)).Inc()
	}
}

// Observe updates every metric from a status snapshot.
func (c *Collector) Observe(snap status.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := snap.Power
	f := snap.Factor

	c.enabled.Set(boolGauge(snap.Enabled))
	c.setDevice("cpu", p.CPU, logic.LatestShare(p.Values, logic.CPUShare))
	c.setDevice("gpu", p.GPU, logic.LatestShare(p.Values, logic.GPUShare))

	c.available.WithLabelValues("cpu").Set(boolGauge(p.CPUAvailable))
	c.available.WithLabelValues("gpu").Set(boolGauge(p.GPUAvailable))
	c.available.WithLabelValues("emissions").Set(boolGauge(p.EmissionsAvailable))
	c.available.WithLabelValues("emission_factor").Set(boolGauge(f.Available))

	c.emissionsMg.Set(p.TotalEmissionsMg)
	switch {
	case f.Factor != nil:
		c.factor.Set(*f.Factor)
	case f.LastKnownGood != nil:
		c.factor.Set(*f.LastKnownGood)
	default:
		c.factor.Set(0)
	}

	c.setPhase("power", p.Phase, p.LastTick)
	c.setPhase("emission_factor", f.Phase, f.LastTick)
}
