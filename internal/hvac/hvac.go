package hvac

// Mode identifies the active HVAC operating mode. Rate history and vent
// targets are always keyed by mode, since a room heats and cools at
// different speeds.
type Mode string

const (
	ModeCooling Mode = "cooling"
	ModeHeating Mode = "heating"
)

// IsValid returns whether the mode is one of the known operating modes.
func (m Mode) IsValid() bool {
	return m == ModeCooling || m == ModeHeating
}

// String implements the Stringer interface
func (m Mode) String() string {
	return string(m)
}

// RoomRates holds the learned thermal rates for a room in degrees per
// hour. A zero value means the rate has not been learned yet.
type RoomRates struct {
	Cooling float64
	Heating float64
}

// Rate returns the learned rate for the given mode.
func (r RoomRates) Rate(mode Mode) float64 {
	if mode == ModeHeating {
		return r.Heating
	}

	return r.Cooling
}
