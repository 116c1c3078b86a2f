// Command power-usage estimates the CO2 emissions of this machine's CPU and
// GPU power draw and publishes them over HTTP, MQTT and an indicator LED.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/sweeney/power-usage/internal/config"
	"github.com/sweeney/power-usage/internal/logging"
	"github.com/sweeney/power-usage/internal/status"
	"github.com/sweeney/power-usage/internal/web"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

type rootFlags struct {
	configFile string
	envFile    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:           "power-usage",
		Short:         "CPU/GPU power draw and emissions estimator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file (default: search ./config.yaml, ./configs, /etc/power-usage)")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "env file loaded before the environment is read")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the daemon",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := loadConfig(flags)
				if err != nil {
					return err
				}
				return run(cfg, logger)
			},
		},
		&cobra.Command{
			Use:   "snapshot",
			Short: "Refresh both pollers once, print the status JSON and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := loadConfig(flags)
				if err != nil {
					return err
				}
				return printSnapshot(cmd.Context(), cfg, logger, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "serve-metrics",
			Short: "Serve only the local power usage endpoint",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := loadConfig(flags)
				if err != nil {
					return err
				}
				return serveMetrics(cfg, logger)
			},
		},
	)
	return root
}

// loadConfig reads configuration and builds the logger it asks for.
func loadConfig(flags rootFlags) (*config.Config, *slog.Logger, error) {
	boot := logging.New(logging.Config{Level: flags.logLevel})
	cfg, err := config.Load(config.Options{
		File:    flags.configFile,
		EnvFile: flags.envFile,
		Logger:  boot,
	})
	if err != nil {
		return nil, nil, err
	}
	if flags.logLevel != "" {
		if _, err := logging.ParseLevel(flags.logLevel); err != nil {
			return nil, nil, err
		}
		cfg.Log.Level = flags.logLevel
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func printSnapshot(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	a, err := build(cfg, logger, clockwork.NewRealClock())
	if err != nil {
		return err
	}
	defer a.dispose()

	a.startup(ctx)
	fmt.Fprintln(out, string(status.FormatJSON(a.tracker.Snapshot())))
	return nil
}

func serveMetrics(cfg *config.Config, logger *slog.Logger) error {
	if cfg.HTTP.Addr == "" {
		return fmt.Errorf("serve-metrics: http.addr is empty")
	}
	col, err := newCollector(cfg, logger)
	if err != nil {
		return err
	}

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	tracker.SetEnabled(false)
	srv := web.New(cfg.HTTP.Addr, tracker, web.WithPowerSource(col), web.WithLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving power usage endpoint", "addr", cfg.HTTP.Addr, "path", web.APIPrefix+"/power_usage")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// signalName maps a shutdown signal to its event reason.
func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
