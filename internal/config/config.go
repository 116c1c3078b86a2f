// Package config loads daemon configuration from defaults, an optional YAML
// file, a .env file and POWER_USAGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sweeney/power-usage/internal/source"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// POWER_USAGE_EMISSIONS_ACCESS_TOKEN.
const EnvPrefix = "POWER_USAGE"

// Refresh floors.
const (
	MinPowerRefresh     = 5 * time.Second
	MinEmissionsRefresh = 30 * time.Minute
)

// Config holds the complete daemon configuration.
type Config struct {
	Power     PowerConfig     `mapstructure:"power"`
	Emissions EmissionsConfig `mapstructure:"emissions"`
	Collector CollectorConfig `mapstructure:"collector"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	GPIO      GPIOConfig      `mapstructure:"gpio"`
	Log       LogConfig       `mapstructure:"log"`
	UI        UIConfig        `mapstructure:"ui"`
}

// PowerConfig configures the power usage poller.
type PowerConfig struct {
	// BaseURL is the metrics API root the poller GETs /power_usage from.
	// Empty reads the in-process collector instead.
	BaseURL     string        `mapstructure:"base_url" validate:"omitempty,url"`
	RefreshRate time.Duration `mapstructure:"refresh_rate" validate:"gt=0"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff" validate:"gtefield=RefreshRate"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// EmissionsConfig configures the emission factor poller.
type EmissionsConfig struct {
	// Source names the emission factor provider. Empty or "none" disables
	// lookups; an unrecognized name is kept and resolves to the default.
	Source      string        `mapstructure:"source"`
	CountryCode string        `mapstructure:"country_code"`
	RefreshRate time.Duration `mapstructure:"refresh_rate" validate:"gt=0"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff" validate:"gtefield=RefreshRate"`
	// Factor is the fallback emission factor in g/kWh.
	Factor            float64 `mapstructure:"factor" validate:"gt=0"`
	AccessToken       string  `mapstructure:"access_token"`
	Proxy             bool    `mapstructure:"proxy"`
	ProxyURL          string  `mapstructure:"proxy_url" validate:"required_if=Proxy true"`
	NationalGridURL   string  `mapstructure:"national_grid_url" validate:"omitempty,url"`
	GlobalProviderURL string  `mapstructure:"global_provider_url" validate:"omitempty,url"`
}

// CollectorConfig configures the local power measurement.
type CollectorConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Scope   string `mapstructure:"scope" validate:"omitempty,oneof=process user system"`
	RAPLDir string `mapstructure:"rapl_dir"`
	DRMDir  string `mapstructure:"drm_dir"`
}

// HTTPConfig configures the status server. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// MQTTConfig configures publishing. An empty Broker disables it.
type MQTTConfig struct {
	Broker    string        `mapstructure:"broker"`
	ClientID  string        `mapstructure:"client_id"`
	Heartbeat time.Duration `mapstructure:"heartbeat" validate:"gte=0"`
}

// GPIOConfig configures the indicator LED. Pin 0 disables it.
type GPIOConfig struct {
	Pin  int    `mapstructure:"pin" validate:"gte=0"`
	Chip string `mapstructure:"chip"`
	Mode string `mapstructure:"mode" validate:"omitempty,oneof=emissions power"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// UIConfig holds presentation settings.
type UIConfig struct {
	ShowBar  bool   `mapstructure:"show_bar"`
	CPULabel string `mapstructure:"cpu_label"`
	GPULabel string `mapstructure:"gpu_label"`
}

// Options controls where configuration is read from.
type Options struct {
	// File is an explicit config file. Empty searches the default paths.
	File string
	// EnvFile is loaded into the environment first. Empty means ".env";
	// a missing file is ignored.
	EnvFile string
	Logger  *slog.Logger
}

// Load reads, floors and validates the configuration.
func Load(opts Options) (*Config, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err == nil {
		log.Debug("loaded env file", "path", envFile)
	}

	v := viper.New()
	setDefaults(v)
	configureViper(v, opts.File)

	if err := readConfig(v, opts.File != ""); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	normalizeSource(&cfg, log)
	Floor(&cfg, log)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func configureViper(v *viper.Viper, file string) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/power-usage/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func readConfig(v *viper.Viper, explicit bool) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !explicit && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("power.base_url", "")
	v.SetDefault("power.refresh_rate", MinPowerRefresh)
	v.SetDefault("power.max_backoff", 30*time.Second)
	v.SetDefault("power.timeout", 0)

	v.SetDefault("emissions.source", "national-grid")
	v.SetDefault("emissions.country_code", "fr")
	v.SetDefault("emissions.refresh_rate", MinEmissionsRefresh)
	v.SetDefault("emissions.max_backoff", 2*time.Hour)
	v.SetDefault("emissions.factor", 475.0)
	v.SetDefault("emissions.access_token", "")
	v.SetDefault("emissions.proxy", false)
	v.SetDefault("emissions.proxy_url", "")
	v.SetDefault("emissions.national_grid_url", "")
	v.SetDefault("emissions.global_provider_url", "")

	v.SetDefault("collector.enabled", true)
	v.SetDefault("collector.scope", "process")
	v.SetDefault("collector.rapl_dir", "")
	v.SetDefault("collector.drm_dir", "")

	v.SetDefault("http.addr", ":8080")

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.heartbeat", 15*time.Minute)

	v.SetDefault("gpio.pin", 0)
	v.SetDefault("gpio.chip", "")
	v.SetDefault("gpio.mode", "emissions")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("ui.show_bar", true)
	v.SetDefault("ui.cpu_label", "CPU Power: ")
	v.SetDefault("ui.gpu_label", "GPU Power: ")
}

// Floor raises refresh rates below their minimum and logs each change.
func Floor(cfg *Config, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Power.RefreshRate < MinPowerRefresh {
		log.Info("power refresh rate floored", "requested", cfg.Power.RefreshRate, "min", MinPowerRefresh)
		cfg.Power.RefreshRate = MinPowerRefresh
	}
	if cfg.Emissions.RefreshRate < MinEmissionsRefresh {
		log.Info("emissions refresh rate floored", "requested", cfg.Emissions.RefreshRate, "min", MinEmissionsRefresh)
		cfg.Emissions.RefreshRate = MinEmissionsRefresh
	}
	if cfg.Power.MaxBackoff < cfg.Power.RefreshRate {
		cfg.Power.MaxBackoff = cfg.Power.RefreshRate
	}
	if cfg.Emissions.MaxBackoff < cfg.Emissions.RefreshRate {
		cfg.Emissions.MaxBackoff = cfg.Emissions.RefreshRate
	}
}

// normalizeSource resolves aliases to their canonical ID and clears "none".
// Unknown IDs are not fatal: the emission factor falls back to its default.
func normalizeSource(cfg *Config, log *slog.Logger) {
	raw := strings.ToLower(strings.TrimSpace(cfg.Emissions.Source))
	if raw == "" || raw == "none" {
		cfg.Emissions.Source = ""
		return
	}
	id, err := source.ParseID(raw)
	if err != nil {
		log.Warn("unknown emission factor source, using default factor",
			"source", cfg.Emissions.Source, "factor", cfg.Emissions.Factor)
		return
	}
	cfg.Emissions.Source = string(id)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and reports every failing field.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, messageFor(e))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func messageFor(e validator.FieldError) string {
	field := strings.TrimPrefix(e.Namespace(), "Config.")
	switch e.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, e.Param(), e.Value())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "required_if":
		return fmt.Sprintf("%s is required", field)
	case "gtefield":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed %s=%s", field, e.Tag(), e.Param())
	}
}
