package engine

import "codeberg.org/mutker/ventctl/internal/hvac"

// VentState is one room's input to a balancing cycle. It is refreshed
// from device snapshots at cycle start and owned by the engine for the
// duration of the computation.
type VentState struct {
	RoomID      string
	Temperature float64
	Opening     int
	Active      bool
	CoolingRate float64
	HeatingRate float64
}

// SetpointProvider resolves the global setpoint for an HVAC mode. The
// second return is false when no setpoint is configured for the mode.
type SetpointProvider interface {
	Setpoint(mode hvac.Mode) (float64, bool)
}

// Settings are the balancing policy knobs. They are fixed at
// construction; the engine itself holds no mutable state.
type Settings struct {
	// CloseInactive forces vents in inactive rooms fully closed.
	CloseInactive bool

	// MaxRunMinutes caps the minutes-to-target estimate and serves as
	// the fallback for rooms without a usable learned rate.
	MaxRunMinutes float64

	// StandardVents counts always-open vents that contribute full flow
	// but are not controlled.
	StandardVents int

	// MinimumPercent is the per-vent safety floor; a controlled vent
	// never closes below it.
	MinimumPercent int

	// MinFlowPercent is the minimum average opening per vent the
	// system must maintain to protect the air handler.
	MinFlowPercent int

	// RoundTo is the percentage step commands are rounded to.
	RoundTo int

	// Overrides maps rooms to manually pinned opening percentages.
	Overrides map[string]int
}
