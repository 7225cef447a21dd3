package controller

import (
	"time"

	"codeberg.org/mutker/ventctl/internal/engine"
	"codeberg.org/mutker/ventctl/internal/hvac"
)

// TargetCalculator produces per-room vent targets for a cycle.
type TargetCalculator interface {
	CalculateVentTargets(vents []engine.VentState, mode hvac.Mode) map[string]int
}

// RateHistory is the slice of the history store the control loop needs.
type RateHistory interface {
	RecordSample(room string, mode hvac.Mode, ts time.Time, rate float64) error
	LearnedRates() (map[string]hvac.RoomRates, error)
	AggregateDaily() (int, error)
	Location() *time.Location
}

// ActivitySink accepts human-readable activity lines for the user-facing
// log. Implementations must not block the control loop.
type ActivitySink interface {
	Append(message string)
}

type Config struct {
	Interval        time.Duration
	MaxRetries      int
	Backoff         time.Duration
	DispatchTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:        5 * time.Minute,
		MaxRetries:      3,
		Backoff:         2 * time.Second,
		DispatchTimeout: 10 * time.Second,
	}
}
