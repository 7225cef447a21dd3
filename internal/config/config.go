package config

import (
	"os"
	"strings"

	"codeberg.org/mutker/ventctl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel = "info"

	defaultInterval       = 300
	defaultMaxConcurrent  = 4
	defaultRetentionDays  = 30
	defaultMinimumPercent = 5
	defaultMinFlowPercent = 30
	defaultRoundTo        = 5
	defaultMaxRunMinutes  = 90
	defaultAPITimeout     = 10
	defaultMaxRetries     = 3
	defaultBackoff        = 2
	defaultFailureLimit   = 3
	defaultCooldown       = 60
	defaultDatabase       = "/var/lib/ventctl/history.db"
)

type Config struct {
	Interval         int            `mapstructure:"interval"`
	MaxConcurrent    int            `mapstructure:"max_concurrent"`
	RetentionDays    int            `mapstructure:"retention_days"`
	CloseInactive    bool           `mapstructure:"close_inactive"`
	StandardVents    int            `mapstructure:"standard_vents"`
	MinimumPercent   int            `mapstructure:"minimum_percent"`
	MinFlowPercent   int            `mapstructure:"min_flow_percent"`
	RoundTo          int            `mapstructure:"round_to"`
	MaxRunMinutes    int            `mapstructure:"max_run_minutes"`
	Timezone         string         `mapstructure:"timezone"`
	Database         string         `mapstructure:"database"`
	APIEndpoint      string         `mapstructure:"api_endpoint"`
	APITimeout       int            `mapstructure:"api_timeout"`
	MaxRetries       int            `mapstructure:"max_retries"`
	BackoffSeconds   int            `mapstructure:"backoff_seconds"`
	FailureThreshold int            `mapstructure:"failure_threshold"`
	CooldownSeconds  int            `mapstructure:"cooldown_seconds"`
	CoolingSetpoint  float64        `mapstructure:"cooling_setpoint"`
	HeatingSetpoint  float64        `mapstructure:"heating_setpoint"`
	Overrides        map[string]int `mapstructure:"overrides"`
	MetricsListen    string         `mapstructure:"metrics_listen"`
	LogLevel         string         `mapstructure:"log_level"`
	Debug            bool           `mapstructure:"debug"`
	Verbose          bool           `mapstructure:"verbose"`
}

func Load() (*Config, error) {
	errFactory := errors.New()
	v := viper.New()

	setDefaults(v)

	flags := pflag.NewFlagSet("ventctl", pflag.ContinueOnError)
	flags.ParseErrorsWhitelist.UnknownFlags = true
	flags.Int("interval", defaultInterval, "Seconds between control cycles")
	flags.Int("max-concurrent", defaultMaxConcurrent, "Maximum concurrent device requests")
	flags.Bool("debug", false, "Enable debugging mode")
	flags.Bool("verbose", false, "Enable verbose logging")
	flags.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	flags.String("config", "", "Path to configuration file")
	flags.String("database", defaultDatabase, "Path to the rate history database")

	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	bindings := map[string]string{
		"interval":       "interval",
		"max-concurrent": "max_concurrent",
		"debug":          "debug",
		"verbose":        "verbose",
		"log-level":      "log_level",
		"database":       "database",
	}
	for flagName, key := range bindings {
		if f := flags.Lookup(flagName); f != nil && f.Changed {
			v.Set(key, f.Value.String())
		}
	}

	configPath := os.Getenv("VENTCTL_CONFIG")
	if f := flags.Lookup("config"); f != nil && f.Changed {
		configPath = f.Value.String()
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("ventctl")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// An explicitly named file must parse; a missing default is fine
			if configPath != "" || !os.IsNotExist(err) {
				return nil, errFactory.WithMessage(errors.ErrReadConfig,
					"Failed to read config file: "+err.Error())
			}
		}
	}

	v.SetEnvPrefix("VENTCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", defaultInterval)
	v.SetDefault("max_concurrent", defaultMaxConcurrent)
	v.SetDefault("retention_days", defaultRetentionDays)
	v.SetDefault("close_inactive", false)
	v.SetDefault("standard_vents", 0)
	v.SetDefault("minimum_percent", defaultMinimumPercent)
	v.SetDefault("min_flow_percent", defaultMinFlowPercent)
	v.SetDefault("round_to", defaultRoundTo)
	v.SetDefault("max_run_minutes", defaultMaxRunMinutes)
	v.SetDefault("timezone", "Local")
	v.SetDefault("database", defaultDatabase)
	v.SetDefault("api_endpoint", "http://localhost:8420")
	v.SetDefault("api_timeout", defaultAPITimeout)
	v.SetDefault("max_retries", defaultMaxRetries)
	v.SetDefault("backoff_seconds", defaultBackoff)
	v.SetDefault("failure_threshold", defaultFailureLimit)
	v.SetDefault("cooldown_seconds", defaultCooldown)
	v.SetDefault("cooling_setpoint", 0.0)
	v.SetDefault("heating_setpoint", 0.0)
	v.SetDefault("metrics_listen", "")
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("debug", false)
	v.SetDefault("verbose", false)
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.New(errors.ErrInvalidInterval)
	}
	if c.MaxConcurrent <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "max_concurrent must be positive")
	}
	if c.RetentionDays < 1 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "retention_days must be at least 1")
	}
	if c.RoundTo <= 0 || c.RoundTo > 100 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "round_to must be within (0, 100]")
	}
	if c.MinimumPercent < 0 || c.MinimumPercent > 100 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "minimum_percent must be within [0, 100]")
	}
	if c.MaxRunMinutes <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "max_run_minutes must be positive")
	}
	for room, percent := range c.Overrides {
		if percent < 0 || percent > 100 {
			return errFactory.WithMessage(errors.ErrInvalidConfig,
				"override for "+room+" must be within [0, 100]")
		}
	}
	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.New(errors.ErrInvalidLogLevel)
	}

	return nil
}
