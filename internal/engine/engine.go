package engine

import (
	"math"

	"codeberg.org/mutker/ventctl/internal/hvac"
	"codeberg.org/mutker/ventctl/internal/logger"
)

const fullOpen = 100

// Engine computes per-room vent opening targets. It is a pure function
// of its inputs: no I/O, no shared mutable state.
type Engine struct {
	setpoints SetpointProvider
	settings  Settings
}

func New(setpoints SetpointProvider, settings Settings) *Engine {
	if settings.MaxRunMinutes <= 0 {
		settings.MaxRunMinutes = 90
	}
	if settings.RoundTo <= 0 {
		settings.RoundTo = 1
	}

	return &Engine{
		setpoints: setpoints,
		settings:  settings,
	}
}

// CalculateVentTargets returns the opening percentage per room for the
// given mode. An empty map means no global setpoint is configured and
// the caller should skip dispatch entirely.
//
// The slowest room paces the fleet: each room's opening is proportional
// to its own minutes-to-target relative to the longest, so rooms that
// reach the setpoint quickly are throttled while the slowest room runs
// fully open.
func (e *Engine) CalculateVentTargets(vents []VentState, mode hvac.Mode) map[string]int {
	targets := make(map[string]int)

	setpoint, ok := e.setpoints.Setpoint(mode)
	if !ok {
		logger.Debug().
			Str("mode", mode.String()).
			Msg("No setpoint configured; skipping vent target calculation")
		return targets
	}

	// Rooms forced closed by the close-inactive policy stay at zero
	// through every later adjustment.
	forced := make(map[string]bool)

	minutes := make(map[string]float64, len(vents))
	longest := 0.0
	for _, v := range vents {
		if e.settings.CloseInactive && !v.Active {
			forced[v.RoomID] = true
			continue
		}
		m := e.minutesToTarget(v, mode, setpoint)
		minutes[v.RoomID] = m
		if m > longest {
			longest = m
		}
	}

	for _, v := range vents {
		if forced[v.RoomID] {
			targets[v.RoomID] = 0
			continue
		}

		percent := 0.0
		if longest > 0 {
			percent = minutes[v.RoomID] / longest * fullOpen
		}
		targets[v.RoomID] = clampPercent(int(math.Round(percent)))
	}

	e.applyAirflowFloor(targets, forced)
	e.applyOverridesAndFloors(targets, forced)

	return targets
}

// minutesToTarget estimates how long the room needs to reach the
// setpoint at its learned rate, capped at the maximum allowed run time.
// Rooms with a non-positive or missing rate fall back to the cap, so a
// bad rate can never cause a division error.
func (e *Engine) minutesToTarget(v VentState, mode hvac.Mode, setpoint float64) float64 {
	rate := v.CoolingRate
	if mode == hvac.ModeHeating {
		rate = v.HeatingRate
	}
	if rate <= 0 {
		return e.settings.MaxRunMinutes
	}

	minutes := math.Abs(v.Temperature-setpoint) / rate * 60
	if minutes > e.settings.MaxRunMinutes {
		return e.settings.MaxRunMinutes
	}

	return minutes
}

// applyAirflowFloor tops up openings when the combined flow falls below
// the minimum the air handler needs. Standard always-open vents count
// toward the total at full flow. The shortfall is spread evenly over
// the controlled rooms that are not forced closed.
func (e *Engine) applyAirflowFloor(targets map[string]int, forced map[string]bool) {
	adjustable := make([]string, 0, len(targets))
	sum := float64(e.settings.StandardVents) * fullOpen
	for room, percent := range targets {
		sum += float64(percent)
		if !forced[room] {
			adjustable = append(adjustable, room)
		}
	}

	totalVents := len(targets) + e.settings.StandardVents
	required := float64(e.settings.MinFlowPercent * totalVents)
	if sum >= required || len(adjustable) == 0 {
		return
	}

	add := (required - sum) / float64(len(adjustable))
	for _, room := range adjustable {
		targets[room] = clampPercent(targets[room] + int(math.Round(add)))
	}
}

// applyOverridesAndFloors pins manual overrides, enforces the per-room
// safety floor and rounds to the configured step. Rooms forced closed
// by the close-inactive policy stay at zero.
func (e *Engine) applyOverridesAndFloors(targets map[string]int, forced map[string]bool) {
	for room, percent := range targets {
		if forced[room] {
			targets[room] = 0
			continue
		}

		if override, ok := e.settings.Overrides[room]; ok {
			percent = clampPercent(override)
		}

		if percent < e.settings.MinimumPercent {
			percent = e.settings.MinimumPercent
		}

		targets[room] = roundToStep(percent, e.settings.RoundTo)
	}
}

func roundToStep(percent, step int) int {
	rounded := int(math.Round(float64(percent)/float64(step))) * step
	return clampPercent(rounded)
}

func clampPercent(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > fullOpen {
		return fullOpen
	}

	return percent
}
