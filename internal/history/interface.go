package history

import (
	"time"

	"codeberg.org/mutker/ventctl/internal/hvac"
)

// Store defines the rate history domain interface
type Store interface {
	// RecordSample appends an hourly rate sample. The sample is keyed
	// by the room-local calendar date and wall-clock hour derived from
	// ts using the installation timezone; a later sample for the same
	// (room, mode, date, hour) replaces the earlier one.
	RecordSample(room string, mode hvac.Mode, ts time.Time, rate float64) error

	// AggregateDaily groups all samples maturing before the local
	// "today", computes one DailyAggregate per (room, mode, date) and
	// prunes samples beyond the retention window. Returns the number
	// of aggregates written.
	AggregateDaily() (int, error)

	// ImportSamples merges external samples last-write-wins per
	// (room, mode, date, hour) key. Returns the number of samples applied.
	ImportSamples(samples []RateSample) (int, error)

	// ImportEfficiencyData applies a structured efficiency export.
	// Unrecognized fields at any nesting level are ignored; documents
	// missing required fields or with out-of-range global rates are
	// rejected without applying anything.
	ImportEfficiencyData(payload []byte) (*ImportResult, error)

	// LearnedRates returns the current per-room rates, falling back to
	// the global rate for modes a room has not learned yet.
	LearnedRates() (map[string]hvac.RoomRates, error)

	// DailyAggregates returns the stored aggregates for a room and
	// mode, ordered by date ascending.
	DailyAggregates(room string, mode hvac.Mode) ([]DailyAggregate, error)

	// AppendActivity records a human-readable activity log line.
	AppendActivity(message string) error

	// RecentActivity returns up to limit activity lines, newest first.
	RecentActivity(limit int) ([]string, error)

	// Location returns the installation timezone that sample dates and
	// aggregation maturity are derived in.
	Location() *time.Location

	Close() error
}

// RateSample is an immutable hourly rate observation. Hour is the local
// clock hour, not an elapsed-time index: a calendar day may hold fewer
// or more than 24 distinct hours across DST transitions.
type RateSample struct {
	Room string
	Mode hvac.Mode
	Date string // YYYY-MM-DD, room-local calendar day
	Hour int    // 0-23 local clock hour
	Rate float64
}

// DailyAggregate is the derived per-day mean rate. It is rebuilt from
// the sample set whenever aggregation runs and never hand-edited.
type DailyAggregate struct {
	Room        string
	Mode        hvac.Mode
	Date        string
	AverageRate float64
	SampleCount int
}

// ImportResult reports what an efficiency import applied.
type ImportResult struct {
	RoomsUpdated    int
	RoomsSkipped    int
	SamplesImported int
	ActivityEntries int
}
