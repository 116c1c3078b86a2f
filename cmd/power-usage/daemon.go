package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/power-usage/internal/config"
	"github.com/sweeney/power-usage/internal/gpio"
	"github.com/sweeney/power-usage/internal/metrics"
	"github.com/sweeney/power-usage/internal/monitor"
	"github.com/sweeney/power-usage/internal/mqtt"
	"github.com/sweeney/power-usage/internal/status"
	"github.com/sweeney/power-usage/internal/web"
)

func run(cfg *config.Config, logger *slog.Logger) error {
	a, err := build(cfg, logger, clockwork.NewRealClock())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := &daemon{
		tracker: a.tracker,
		power:   a.power,
		factor:  a.factor,
		metrics: metrics.New(),
		log:     logger,
		now:     time.Now,
	}

	if cfg.MQTT.Broker != "" {
		p := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Logger:   logger,
		})
		defer p.Close()
		d.publisher, d.mqttStatus = p, p
	}

	if cfg.GPIO.Pin > 0 {
		led, err := gpio.NewRealIndicator(cfg.GPIO.Chip, cfg.GPIO.Pin)
		if err != nil {
			logger.Warn("indicator LED unavailable", "pin", cfg.GPIO.Pin, "error", err)
		} else {
			defer led.Close()
			d.led = gpio.NewDriver(led, gpio.Mode(cfg.GPIO.Mode))
		}
	}

	d.hub = web.NewHub(logger, func() []byte {
		return status.FormatStatusEvent(a.tracker.Snapshot(), "CHANGE", "")
	})

	changes := make(chan struct{}, 1)
	if a.startup(ctx) {
		notify := func() {
			select {
			case changes <- struct{}{}:
			default:
			}
		}
		defer a.power.Subscribe(notify)()
		defer a.factor.Subscribe(notify)()
		a.factor.Start(ctx)
		a.power.Start(ctx)
	}
	defer a.dispose()

	var heartbeat <-chan time.Time
	if cfg.MQTT.Heartbeat > 0 {
		t := time.NewTicker(cfg.MQTT.Heartbeat)
		defer t.Stop()
		heartbeat = t.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.hub.Run(gctx)
		return nil
	})

	if cfg.HTTP.Addr != "" {
		opts := []web.Option{
			web.WithEmissionsProxy(cfg.Emissions.GlobalProviderURL, cfg.Emissions.AccessToken, nil),
			web.WithMetrics(d.metrics.Handler()),
			web.WithHub(d.hub),
			web.WithLogger(logger),
		}
		if a.collector != nil {
			opts = append(opts, web.WithPowerSource(a.collector))
		}
		srv := web.New(cfg.HTTP.Addr, a.tracker, opts...)
		g.Go(func() error {
			logger.Info("http status server listening", "addr", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info("started",
		"power_refresh", cfg.Power.RefreshRate,
		"emissions_refresh", cfg.Emissions.RefreshRate,
		"source", cfg.Emissions.Source,
		"broker", cfg.MQTT.Broker,
		"heartbeat", cfg.MQTT.Heartbeat)

	g.Go(func() error {
		defer cancel()
		return d.loop(gctx, changes, heartbeat, sigCh)
	})
	return g.Wait()
}

type powerModel interface {
	Snapshot() monitor.PowerSnapshot
}

type factorModel interface {
	Snapshot() monitor.FactorSnapshot
}

// daemon fans model changes out to the presentation adapters. Every field
// except tracker, power and factor may be nil.
type daemon struct {
	tracker *status.Tracker
	power   powerModel
	factor  factorModel

	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	led        *gpio.Driver
	metrics    *metrics.Collector
	hub        *web.Hub

	log *slog.Logger
	now func() time.Time
}

// refresh copies the models' state into the tracker and returns it.
func (d *daemon) refresh() status.Snapshot {
	d.tracker.Update(d.power.Snapshot(), d.factor.Snapshot())
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	snap := d.tracker.Snapshot()
	if d.metrics != nil {
		d.metrics.Observe(snap)
	}
	return snap
}

func (d *daemon) publishSystem(snap status.Snapshot, event, reason string, retained bool) {
	if d.publisher == nil {
		return
	}
	err := d.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  d.now(),
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		d.log.Warn("failed to publish system event", "event", event, "error", err)
		return
	}
	d.log.Info("published system event", "event", event)
}

func (d *daemon) onChange() {
	snap := d.refresh()

	if d.publisher != nil && snap.Enabled {
		r := mqtt.NewReading(d.now(), snap.Power, snap.Factor)
		if err := d.publisher.Publish(r); err != nil {
			d.log.Warn("publish error", "error", err)
		}
	}
	if d.led != nil {
		_, err := d.led.Apply(gpio.State{
			Enabled:            snap.Enabled,
			CPUAvailable:       snap.Power.CPUAvailable,
			GPUAvailable:       snap.Power.GPUAvailable,
			EmissionsAvailable: snap.Power.EmissionsAvailable,
		})
		if err != nil {
			d.log.Warn("indicator LED write failed", "error", err)
		}
	}
	if d.hub != nil {
		d.hub.Broadcast(status.FormatStatusEvent(snap, "CHANGE", ""))
	}
}

// loop publishes STARTUP, then handles change notifications, heartbeats and
// shutdown signals until a signal arrives or ctx is done.
func (d *daemon) loop(ctx context.Context, changes <-chan struct{}, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	d.onChange()
	d.publishSystem(d.tracker.Snapshot(), "STARTUP", "", true)

	for {
		select {
		case <-ctx.Done():
			return nil

		case s := <-sig:
			d.log.Info("shutting down", "signal", s)
			reason := signalName(s)
			d.publishSystem(d.refresh(), "SHUTDOWN", reason, true)
			return nil

		case <-changes:
			d.onChange()

		case <-heartbeat:
			snap := d.refresh()
			d.log.Info("heartbeat",
				"uptime", snap.Uptime().Truncate(time.Second),
				"total_emissions_mg", snap.Power.TotalEmissionsMg)
			d.publishSystem(snap, "HEARTBEAT", "", false)
		}
	}
}
