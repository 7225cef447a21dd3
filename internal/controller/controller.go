package controller

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"codeberg.org/mutker/ventctl/internal/clock"
	"codeberg.org/mutker/ventctl/internal/device"
	"codeberg.org/mutker/ventctl/internal/engine"
	"codeberg.org/mutker/ventctl/internal/errors"
	"codeberg.org/mutker/ventctl/internal/hvac"
	"codeberg.org/mutker/ventctl/internal/interlock"
	"codeberg.org/mutker/ventctl/internal/logger"
	"codeberg.org/mutker/ventctl/internal/telemetry"
)

const maxLearnableRate = 10.0

// Deps collects the controller's collaborators. All fields except
// Logger and Activity are required.
type Deps struct {
	Engine     TargetCalculator
	History    RateHistory
	Gate       interlock.Gate
	Devices    device.SnapshotProvider
	Thermostat device.ThermostatProvider
	Commander  device.Commander
	Setpoints  *device.ThermostatCache
	Clock      clock.Clock
	Activity   ActivitySink
	Logger     logger.Logger
}

type observation struct {
	temperature float64
	at          time.Time
}

// Controller runs the periodic balancing cycle: collect device state,
// learn rates, compute targets, and dispatch vent commands.
type Controller struct {
	cfg        Config
	engine     TargetCalculator
	history    RateHistory
	gate       interlock.Gate
	devices    device.SnapshotProvider
	thermostat device.ThermostatProvider
	commander  device.Commander
	setpoints  *device.ThermostatCache
	clk        clock.Clock
	activity   ActivitySink
	log        logger.Logger

	running  atomic.Bool
	lastSeen map[string]observation
	lastAgg  string
}

func New(cfg Config, deps Deps) (*Controller, error) {
	errFactory := errors.New()
	switch {
	case deps.Engine == nil:
		return nil, errFactory.WithMessage(errors.ErrInternal, "controller requires an engine")
	case deps.History == nil:
		return nil, errFactory.WithMessage(errors.ErrInternal, "controller requires a history store")
	case deps.Gate == nil:
		return nil, errFactory.WithMessage(errors.ErrInternal, "controller requires a request gate")
	case deps.Devices == nil || deps.Thermostat == nil || deps.Commander == nil:
		return nil, errFactory.WithMessage(errors.ErrInternal, "controller requires device providers")
	case deps.Setpoints == nil:
		return nil, errFactory.WithMessage(errors.ErrInternal, "controller requires a thermostat cache")
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultConfig().DispatchTimeout
	}

	return &Controller{
		cfg:        cfg,
		engine:     deps.Engine,
		history:    deps.History,
		gate:       deps.Gate,
		devices:    deps.Devices,
		thermostat: deps.Thermostat,
		commander:  deps.Commander,
		setpoints:  deps.Setpoints,
		clk:        deps.Clock,
		activity:   deps.Activity,
		log:        deps.Logger,
		lastSeen:   make(map[string]observation),
	}, nil
}

// Run executes cycles on the configured interval until ctx is
// cancelled. Ticks that arrive while a prior cycle is still draining
// are skipped rather than queued.
func (c *Controller) Run(ctx context.Context) error {
	c.log.Info().
		Dur("interval", c.cfg.Interval).
		Msg("Control loop started")

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("Control loop stopped")
			return nil
		case <-ticker.C:
			c.RunCycle(ctx)
		}
	}
}

// RunCycle performs a single balancing cycle. It is safe to call
// concurrently: overlapping calls are dropped.
func (c *Controller) RunCycle(ctx context.Context) {
	if !c.running.CompareAndSwap(false, true) {
		telemetry.CyclesSkipped.Inc()
		c.log.Warn().Msg("Skipping cycle: previous cycle still draining")
		return
	}
	defer c.running.Store(false)

	start := c.clk.Now()
	cycleID := uuid.NewString()[:8]
	cycleLog := func() *logger.LogEvent {
		ev := c.log.Debug()
		ev.Str("cycle", cycleID)
		return ev
	}

	cycleLog().Str("phase", "collecting").Msg("Cycle started")

	snapshots, err := c.devices.Snapshots(ctx)
	if err != nil {
		c.log.Error().
			Str("cycle", cycleID).
			Err(err).
			Msg("Failed to collect vent snapshots")
		return
	}

	thermostat, err := c.thermostat.Thermostat(ctx)
	if err != nil {
		c.log.Error().
			Str("cycle", cycleID).
			Err(err).
			Msg("Failed to read thermostat")
		return
	}
	c.setpoints.Update(thermostat)

	mode := thermostat.Mode
	if !mode.IsValid() {
		cycleLog().
			Str("mode", string(mode)).
			Msg("Thermostat idle or in unknown mode; nothing to balance")
		c.learnRates(snapshots, thermostat, mode)
		c.maybeAggregate()
		return
	}

	c.learnRates(snapshots, thermostat, mode)

	if len(snapshots) == 0 {
		cycleLog().Msg("No vents discovered; nothing to balance")
		c.maybeAggregate()
		return
	}

	cycleLog().Str("phase", "computing").Int("vents", len(snapshots)).Msg("Computing targets")

	vents := c.buildVentStates(snapshots)
	targets := c.engine.CalculateVentTargets(vents, mode)
	if len(targets) == 0 {
		c.log.Warn().
			Str("cycle", cycleID).
			Str("mode", string(mode)).
			Err(errors.New().New(errors.ErrMissingSetpoint)).
			Msg("No setpoint for active mode; leaving vents untouched")
		c.appendActivity(fmt.Sprintf("cycle %s: no %s setpoint, vents left unchanged", cycleID, mode))
		c.maybeAggregate()
		return
	}

	cycleLog().Str("phase", "dispatching").Int("targets", len(targets)).Msg("Dispatching vent commands")

	applied, skipped, failed := c.ApplyVentTargets(ctx, targets)

	elapsed := c.clk.Now().Sub(start)
	telemetry.CycleDuration.Observe(elapsed.Seconds())

	c.log.Info().
		Str("cycle", cycleID).
		Str("mode", string(mode)).
		Int("applied", applied).
		Int("skipped", skipped).
		Int("failed", failed).
		Dur("elapsed", elapsed).
		Msg("Cycle complete")
	c.appendActivity(fmt.Sprintf(
		"cycle %s: %s mode, %d vents adjusted, %d skipped, %d failed",
		cycleID, mode, applied, skipped, failed))

	c.maybeAggregate()
}

// buildVentStates merges live snapshots with learned rates into the
// engine's input. Rooms without history fall back to the store's
// global rates via LearnedRates; a zero rate is left for the engine to
// handle with its own fallback.
func (c *Controller) buildVentStates(snapshots []device.Snapshot) []engine.VentState {
	rates, err := c.history.LearnedRates()
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to load learned rates; using engine fallbacks")
		rates = nil
	}

	vents := make([]engine.VentState, 0, len(snapshots))
	for _, snap := range snapshots {
		state := engine.VentState{
			RoomID:      snap.RoomID,
			Temperature: snap.Temperature,
			Opening:     snap.Opening,
			Active:      snap.Active,
		}
		if r, ok := rates[snap.RoomID]; ok {
			state.CoolingRate = r.Cooling
			state.HeatingRate = r.Heating
		}
		vents = append(vents, state)
	}

	return vents
}

// learnRates derives rate samples from consecutive temperature
// observations. Samples are only recorded while the HVAC system is
// actively running, and only when the derived rate is plausible.
func (c *Controller) learnRates(snapshots []device.Snapshot, thermostat device.Thermostat, mode hvac.Mode) {
	now := c.clk.Now()
	seen := make(map[string]struct{}, len(snapshots))

	for _, snap := range snapshots {
		seen[snap.RoomID] = struct{}{}
		prev, ok := c.lastSeen[snap.RoomID]
		c.lastSeen[snap.RoomID] = observation{temperature: snap.Temperature, at: now}
		if !ok || !thermostat.Running || !mode.IsValid() {
			continue
		}

		elapsed := now.Sub(prev.at).Hours()
		if elapsed <= 0 {
			continue
		}
		rate := math.Abs(snap.Temperature-prev.temperature) / elapsed
		if rate <= 0 || rate > maxLearnableRate {
			continue
		}

		if err := c.history.RecordSample(snap.RoomID, mode, now, rate); err != nil {
			c.log.Debug().
				Str("room", snap.RoomID).
				Float64("rate", rate).
				Err(err).
				Msg("Dropped rate sample")
			continue
		}
		telemetry.SamplesRecorded.Inc()
	}

	// Forget rooms whose vents disappeared so a re-added device does
	// not produce a sample spanning its absence.
	for room := range c.lastSeen {
		if _, ok := seen[room]; !ok {
			delete(c.lastSeen, room)
		}
	}
}

// maybeAggregate rolls completed days of samples into daily aggregates
// once per store-local calendar day. Using the store's timezone keeps
// this trigger on the same day boundary the maturity cutoff uses.
func (c *Controller) maybeAggregate() {
	today := c.clk.Now().In(c.history.Location()).Format("2006-01-02")
	if c.lastAgg == today {
		return
	}

	n, err := c.history.AggregateDaily()
	if err != nil {
		c.log.Error().Err(err).Msg("Daily aggregation failed")
		return
	}
	c.lastAgg = today
	if n > 0 {
		c.log.Info().Int("aggregates", n).Msg("Rolled up daily rate aggregates")
	}
}

func (c *Controller) appendActivity(msg string) {
	if c.activity == nil {
		return
	}
	c.activity.Append(msg)
}
