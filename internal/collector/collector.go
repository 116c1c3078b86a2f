// Package collector measures local CPU and GPU power for the power usage
// endpoint. CPU power comes from RAPL powercap counters and GPU power from
// DRM hwmon sensors. Devices that cannot be read at startup are left out.
package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/sweeney/power-usage/internal/logic"
	"github.com/sweeney/power-usage/internal/power"
)

// Options configures a Collector.
type Options struct {
	RAPLDir string
	DRMDir  string
	Scope   Scope
	// Shares overrides the scope-derived share function.
	Shares ShareFunc
	// Memory overrides the used-memory lookup for DRAM estimates.
	Memory MemoryFunc
	Now    func() time.Time
	Logger *slog.Logger
}

// Collector serves the local power payload.
type Collector struct {
	cpu *CPU
	gpu *GPU
	log *slog.Logger
}

// New discovers both devices. It never fails: an unavailable device is logged
// and omitted from every payload.
func New(opts Options) *Collector {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	shares := opts.Shares
	if shares == nil {
		shares = ScopeShares(opts.Scope)
	}
	memory := opts.Memory
	if memory == nil {
		memory = UsedMemoryGiB
	}

	c := &Collector{log: log.With("component", "collector")}

	cpu, err := NewCPU(opts.RAPLDir, shares, memory, opts.Now)
	if err != nil {
		c.log.Warn("CPU power will not be reported", "error", err)
	} else {
		c.cpu = cpu
		c.log.Info("CPU power available", "limit_w", cpu.Limit(), "scope", opts.Scope)
	}

	gpu, err := NewGPU(opts.DRMDir)
	if err != nil {
		c.log.Warn("GPU power will not be reported", "error", err)
	} else {
		c.gpu = gpu
		c.log.Info("GPU power available", "limit_w", gpu.Limit())
	}
	return c
}

// CPUAvailable reports whether CPU power is measured.
func (c *Collector) CPUAvailable() bool { return c.cpu != nil }

// GPUAvailable reports whether GPU power is measured.
func (c *Collector) GPUAvailable() bool { return c.gpu != nil }

// Collect reads every available device. A device whose read fails is
// omitted from this payload only.
func (c *Collector) Collect(ctx context.Context) power.Payload {
	var p power.Payload
	if c.cpu != nil {
		if w, err := c.cpu.Read(ctx); err != nil {
			c.log.Debug("CPU power read failed", "error", err)
		} else {
			p.CPU = &power.Device{Usage: w, Limit: c.cpu.Limit()}
		}
	}
	if c.gpu != nil {
		if w, err := c.gpu.Read(); err != nil {
			c.log.Debug("GPU power read failed", "error", err)
		} else {
			p.GPU = &power.Device{Usage: w, Limit: c.gpu.Limit()}
		}
	}
	return p
}

// Fetch collects in process, for running the power model without the HTTP
// round trip.
func (c *Collector) Fetch(ctx context.Context) (logic.PowerSample, error) {
	if err := ctx.Err(); err != nil {
		return logic.PowerSample{}, err
	}
	return c.Collect(ctx).Sample(), nil
}
