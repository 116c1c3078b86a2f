package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/sweeney/power-usage/internal/collector"
	"github.com/sweeney/power-usage/internal/config"
	"github.com/sweeney/power-usage/internal/monitor"
	"github.com/sweeney/power-usage/internal/power"
	"github.com/sweeney/power-usage/internal/source"
	"github.com/sweeney/power-usage/internal/status"
)

// app holds the wired polling engine.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	collector *collector.Collector // nil when disabled
	factor    *monitor.EmissionFactor
	power     *monitor.PowerUsage
	tracker   *status.Tracker
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		PowerRefreshMs:     cfg.Power.RefreshRate.Milliseconds(),
		EmissionsRefreshMs: cfg.Emissions.RefreshRate.Milliseconds(),
		HeartbeatMs:        cfg.MQTT.Heartbeat.Milliseconds(),
		EmissionSource:     cfg.Emissions.Source,
		CountryCode:        cfg.Emissions.CountryCode,
		Scope:              cfg.Collector.Scope,
		Broker:             cfg.MQTT.Broker,
		HTTPAddr:           cfg.HTTP.Addr,
		ShowBar:            cfg.UI.ShowBar,
		CPULabel:           cfg.UI.CPULabel,
		GPULabel:           cfg.UI.GPULabel,
	}
}

func newCollector(cfg *config.Config, logger *slog.Logger) (*collector.Collector, error) {
	scope, err := collector.ParseScope(cfg.Collector.Scope)
	if err != nil {
		return nil, err
	}
	return collector.New(collector.Options{
		RAPLDir: cfg.Collector.RAPLDir,
		DRMDir:  cfg.Collector.DRMDir,
		Scope:   scope,
		Logger:  logger,
	}), nil
}

// build wires both models. The power model reads the remote endpoint when
// power.base_url is set, else the in-process collector.
func build(cfg *config.Config, logger *slog.Logger, clock clockwork.Clock) (*app, error) {
	a := &app{cfg: cfg, log: logger}

	if cfg.Collector.Enabled {
		col, err := newCollector(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("collector: %w", err)
		}
		a.collector = col
	}

	var src monitor.PowerSource
	switch {
	case cfg.Power.BaseURL != "":
		src = power.NewClient(cfg.Power.BaseURL, nil)
	case a.collector != nil:
		src = a.collector
	default:
		return nil, fmt.Errorf("no power source: set power.base_url or enable the collector")
	}

	srcOpts := source.Options{
		NationalGridURL:   cfg.Emissions.NationalGridURL,
		GlobalProviderURL: cfg.Emissions.GlobalProviderURL,
		Logger:            logger,
	}
	if cfg.Emissions.Proxy {
		srcOpts.ProxyURL = cfg.Emissions.ProxyURL
	}

	a.factor = monitor.NewEmissionFactor(monitor.EmissionFactorOptions{
		Source:        source.NewClient(srcOpts),
		SourceID:      cfg.Emissions.Source,
		CountryCode:   cfg.Emissions.CountryCode,
		AccessToken:   cfg.Emissions.AccessToken,
		DefaultFactor: cfg.Emissions.Factor,
		Policy:        monitor.EmissionsPolicy(cfg.Emissions.RefreshRate, cfg.Emissions.MaxBackoff),
		Clock:         clock,
		Logger:        logger,
	})
	a.power = monitor.NewPowerUsage(monitor.PowerUsageOptions{
		Source:  src,
		Factor:  a.factor,
		Policy:  monitor.PowerPolicy(cfg.Power.RefreshRate, cfg.Power.MaxBackoff),
		Timeout: cfg.Power.Timeout,
		Clock:   clock,
		Logger:  logger,
	})
	a.tracker = status.NewTracker(clock.Now(), statusConfig(cfg))
	return a, nil
}

// startup refreshes the factor, then power. When neither CPU nor GPU power
// is available both models are disposed and the tracker is disabled.
func (a *app) startup(ctx context.Context) bool {
	return startup(ctx, a.factor, a.power, a.tracker, a.log)
}

func startup(ctx context.Context, factor *monitor.EmissionFactor, pw *monitor.PowerUsage, tracker *status.Tracker, logger *slog.Logger) bool {
	if err := factor.Refresh(ctx); err != nil {
		logger.Debug("initial emission factor refresh", "error", err)
	}
	if err := pw.Refresh(ctx); err != nil {
		logger.Debug("initial power refresh", "error", err)
	}

	enabled := pw.CPUPowerAvailable() || pw.GPUPowerAvailable()
	tracker.Update(pw.Snapshot(), factor.Snapshot())
	if !enabled {
		logger.Warn("no CPU or GPU power metrics available, pollers stopped")
		pw.Dispose()
		factor.Dispose()
		tracker.SetEnabled(false)
		return false
	}
	logger.Info("power metrics available",
		"cpu", pw.CPUPowerAvailable(),
		"gpu", pw.GPUPowerAvailable(),
		"emissions", pw.EmissionsAvailable())
	return true
}

func (a *app) dispose() {
	a.power.Dispose()
	a.factor.Dispose()
}
