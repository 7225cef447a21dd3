package history_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/ventctl/internal/history"
	"codeberg.org/mutker/ventctl/internal/hvac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateDailyOrderIndependence(t *testing.T) {
	rates := []float64{2.5, 1.3, 3.3, 1.1, 2.2, 1.6}
	orders := [][]int{
		{0, 1, 2, 3, 4, 5},
		{5, 4, 3, 2, 1, 0},
		{3, 0, 5, 1, 4, 2},
	}

	for _, order := range orders {
		store, _ := newTestStore(t, "UTC", time.Date(2026, 6, 16, 9, 0, 0, 0, time.UTC))

		samples := make([]history.RateSample, 0, len(order))
		for _, idx := range order {
			samples = append(samples, history.RateSample{
				Room: "den",
				Mode: hvac.ModeHeating,
				Date: "2026-06-15",
				Hour: 8 + idx,
				Rate: rates[idx],
			})
		}
		_, err := store.ImportSamples(samples)
		require.NoError(t, err)

		written, err := store.AggregateDaily()
		require.NoError(t, err)
		assert.Equal(t, 1, written)

		aggregates, err := store.DailyAggregates("den", hvac.ModeHeating)
		require.NoError(t, err)
		require.Len(t, aggregates, 1)
		assert.InDelta(t, 2.0, aggregates[0].AverageRate, 0.1)
		assert.Equal(t, 6, aggregates[0].SampleCount)
	}
}

func TestAggregateDailySpringForwardDay(t *testing.T) {
	// 2026-03-08 in America/New_York has no 02:00 wall-clock hour.
	store, clk := newTestStore(t, "America/New_York",
		time.Date(2026, 3, 8, 5, 0, 0, 0, time.UTC)) // local midnight

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	start := time.Date(2026, 3, 8, 5, 0, 0, 0, time.UTC)
	hours := map[int]bool{}
	for i := 0; i < 23; i++ {
		ts := start.Add(time.Duration(i) * time.Hour)
		require.Equal(t, "2026-03-08", ts.In(loc).Format("2006-01-02"))
		hours[ts.In(loc).Hour()] = true
		require.NoError(t, store.RecordSample("attic", hvac.ModeHeating, ts, 1.5))
	}
	assert.Len(t, hours, 23, "spring-forward day has 23 distinct wall-clock hours")
	assert.False(t, hours[2], "02:00 does not exist on the transition day")

	clk.Set(time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC))
	written, err := store.AggregateDaily()
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	aggregates, err := store.DailyAggregates("attic", hvac.ModeHeating)
	require.NoError(t, err)
	require.Len(t, aggregates, 1)
	assert.Equal(t, 23, aggregates[0].SampleCount)
	assert.InDelta(t, 1.5, aggregates[0].AverageRate, 0.001)
}

func TestAggregateDailyFullDayNoDST(t *testing.T) {
	store, clk := newTestStore(t, "UTC", time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC))

	start := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 24; i++ {
		require.NoError(t, store.RecordSample("attic", hvac.ModeCooling,
			start.Add(time.Duration(i)*time.Hour), 2.0))
	}

	clk.Set(time.Date(2026, 6, 16, 1, 0, 0, 0, time.UTC))
	written, err := store.AggregateDaily()
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	aggregates, err := store.DailyAggregates("attic", hvac.ModeCooling)
	require.NoError(t, err)
	require.Len(t, aggregates, 1)
	assert.Equal(t, 24, aggregates[0].SampleCount)
}

func TestAggregateDailyExcludesToday(t *testing.T) {
	store, clk := newTestStore(t, "UTC", time.Date(2026, 6, 15, 14, 0, 0, 0, time.UTC))

	require.NoError(t, store.RecordSample("den", hvac.ModeCooling, clk.Now(), 2.0))

	written, err := store.AggregateDaily()
	require.NoError(t, err)
	assert.Equal(t, 0, written, "today's samples have not matured yet")

	aggregates, err := store.DailyAggregates("den", hvac.ModeCooling)
	require.NoError(t, err)
	assert.Empty(t, aggregates)
}

func TestAggregateDailyGroupsPerRoomAndMode(t *testing.T) {
	store, _ := newTestStore(t, "UTC", time.Date(2026, 6, 16, 9, 0, 0, 0, time.UTC))

	samples := []history.RateSample{
		{Room: "den", Mode: hvac.ModeCooling, Date: "2026-06-15", Hour: 10, Rate: 1.0},
		{Room: "den", Mode: hvac.ModeHeating, Date: "2026-06-15", Hour: 11, Rate: 2.0},
		{Room: "office", Mode: hvac.ModeCooling, Date: "2026-06-15", Hour: 12, Rate: 3.0},
		{Room: "den", Mode: hvac.ModeCooling, Date: "2026-06-14", Hour: 13, Rate: 4.0},
	}
	_, err := store.ImportSamples(samples)
	require.NoError(t, err)

	written, err := store.AggregateDaily()
	require.NoError(t, err)
	assert.Equal(t, 4, written, "one aggregate per (room, mode, date) group")
}

func TestAggregateDailyPrunesBeyondRetention(t *testing.T) {
	store, clk := newTestStore(t, "UTC", time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC))

	samples := []history.RateSample{
		{Room: "den", Mode: hvac.ModeCooling, Date: "2026-04-01", Hour: 10, Rate: 1.0},
		{Room: "den", Mode: hvac.ModeCooling, Date: "2026-06-14", Hour: 10, Rate: 2.0},
	}
	_, err := store.ImportSamples(samples)
	require.NoError(t, err)

	written, err := store.AggregateDaily()
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	// The April sample is gone; re-running aggregation only sees June.
	clk.Advance(time.Hour)
	written, err = store.AggregateDaily()
	require.NoError(t, err)
	assert.Equal(t, 1, written)
}

func TestAggregateDailyUpdatesLearnedRates(t *testing.T) {
	store, _ := newTestStore(t, "UTC", time.Date(2026, 6, 16, 9, 0, 0, 0, time.UTC))

	samples := []history.RateSample{
		{Room: "den", Mode: hvac.ModeCooling, Date: "2026-06-15", Hour: 10, Rate: 1.0},
		{Room: "den", Mode: hvac.ModeCooling, Date: "2026-06-15", Hour: 11, Rate: 3.0},
		{Room: "den", Mode: hvac.ModeHeating, Date: "2026-06-15", Hour: 12, Rate: 0.5},
	}
	_, err := store.ImportSamples(samples)
	require.NoError(t, err)

	_, err = store.AggregateDaily()
	require.NoError(t, err)

	rates, err := store.LearnedRates()
	require.NoError(t, err)
	require.Contains(t, rates, "den")
	assert.InDelta(t, 2.0, rates["den"].Cooling, 0.001)
	assert.InDelta(t, 0.5, rates["den"].Heating, 0.001)
}
