package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/ventctl/internal/clock"
	"codeberg.org/mutker/ventctl/internal/config"
	"codeberg.org/mutker/ventctl/internal/controller"
	"codeberg.org/mutker/ventctl/internal/device"
	"codeberg.org/mutker/ventctl/internal/engine"
	"codeberg.org/mutker/ventctl/internal/history"
	"codeberg.org/mutker/ventctl/internal/hvac"
	"codeberg.org/mutker/ventctl/internal/interlock"
	"codeberg.org/mutker/ventctl/internal/logger"
	"codeberg.org/mutker/ventctl/internal/pid"
	"codeberg.org/mutker/ventctl/internal/telemetry"
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	if err := pid.Write(); err != nil {
		logger.Fatal().Err(err).Msg("failed to acquire PID file")
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx); err != nil {
		logger.Error().Err(err).Msg("error in control loop")
	}
}

func run(ctx context.Context) error {
	clk := clock.New()
	log := logger.Default()

	store, err := history.NewStore(history.Config{
		DBPath:        cfg.Database,
		RetentionDays: cfg.RetentionDays,
		Timezone:      cfg.Timezone,
	}, clk, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close rate history")
		}
	}()

	gateCfg := interlock.DefaultConfig()
	gateCfg.MaxConcurrent = cfg.MaxConcurrent
	gateCfg.FailureThreshold = cfg.FailureThreshold
	gateCfg.Cooldown = time.Duration(cfg.CooldownSeconds) * time.Second
	gate, err := interlock.New(gateCfg, clk, log)
	if err != nil {
		return err
	}

	client, err := device.NewClient(cfg.APIEndpoint, time.Duration(cfg.APITimeout)*time.Second, log)
	if err != nil {
		return err
	}

	setpoints := device.NewThermostatCache()
	eng := engine.New(&setpointSource{cache: setpoints}, engine.Settings{
		CloseInactive:  cfg.CloseInactive,
		MaxRunMinutes:  float64(cfg.MaxRunMinutes),
		StandardVents:  cfg.StandardVents,
		MinimumPercent: cfg.MinimumPercent,
		MinFlowPercent: cfg.MinFlowPercent,
		RoundTo:        cfg.RoundTo,
		Overrides:      cfg.Overrides,
	})

	ctrl, err := controller.New(controller.Config{
		Interval:        time.Duration(cfg.Interval) * time.Second,
		MaxRetries:      cfg.MaxRetries,
		Backoff:         time.Duration(cfg.BackoffSeconds) * time.Second,
		DispatchTimeout: time.Duration(cfg.APITimeout) * time.Second,
	}, controller.Deps{
		Engine:     eng,
		History:    store,
		Gate:       gate,
		Devices:    client,
		Thermostat: client,
		Commander:  client,
		Setpoints:  setpoints,
		Clock:      clk,
		Activity:   activityLogger{store: store},
		Logger:     log,
	})
	if err != nil {
		return err
	}

	if cfg.MetricsListen != "" {
		go serveMetrics(cfg.MetricsListen)
	}

	return ctrl.Run(ctx)
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler())
	logger.Info().Str("addr", addr).Msg("Serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("metrics server stopped")
	}
}

// setpointSource resolves setpoints from the live thermostat reading,
// falling back to statically configured setpoints when the thermostat
// does not report one for the active mode.
type setpointSource struct {
	cache *device.ThermostatCache
}

func (s *setpointSource) Setpoint(mode hvac.Mode) (float64, bool) {
	if sp, ok := s.cache.Setpoint(mode); ok {
		return sp, true
	}

	switch mode {
	case hvac.ModeCooling:
		if cfg.CoolingSetpoint > 0 {
			return cfg.CoolingSetpoint, true
		}
	case hvac.ModeHeating:
		if cfg.HeatingSetpoint > 0 {
			return cfg.HeatingSetpoint, true
		}
	}

	return 0, false
}

// activityLogger bridges the history store's activity log to the
// controller. Write failures are logged and dropped so a struggling
// disk cannot stall the control loop.
type activityLogger struct {
	store history.Store
}

func (a activityLogger) Append(msg string) {
	if err := a.store.AppendActivity(msg); err != nil {
		logger.Warn().Err(err).Msg("failed to append activity entry")
	}
}
