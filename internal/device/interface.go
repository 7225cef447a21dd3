package device

import (
	"context"

	"codeberg.org/mutker/ventctl/internal/hvac"
)

// Snapshot is one room's device state as reported by the remote API.
type Snapshot struct {
	RoomID      string  `json:"roomId"`
	Name        string  `json:"name"`
	Temperature float64 `json:"temperature"`
	Opening     int     `json:"opening"`
	Active      bool    `json:"active"`
}

// Thermostat is the reported thermostat state. Setpoints are optional;
// a missing setpoint for the active mode makes the cycle a no-op.
type Thermostat struct {
	Mode            hvac.Mode `json:"mode"`
	CoolingSetpoint *float64  `json:"coolingSetpoint"`
	HeatingSetpoint *float64  `json:"heatingSetpoint"`
	Running         bool      `json:"running"`
}

// Setpoint returns the configured setpoint for the mode, if any.
func (t Thermostat) Setpoint(mode hvac.Mode) (float64, bool) {
	switch mode {
	case hvac.ModeCooling:
		if t.CoolingSetpoint != nil {
			return *t.CoolingSetpoint, true
		}
	case hvac.ModeHeating:
		if t.HeatingSetpoint != nil {
			return *t.HeatingSetpoint, true
		}
	}

	return 0, false
}

// SnapshotProvider reads the current per-room device state.
type SnapshotProvider interface {
	Snapshots(ctx context.Context) ([]Snapshot, error)
}

// ThermostatProvider reads the current thermostat state.
type ThermostatProvider interface {
	Thermostat(ctx context.Context) (Thermostat, error)
}

// Commander pushes a vent opening target to a physical device.
type Commander interface {
	SetOpening(ctx context.Context, roomID string, percent int) error
}
