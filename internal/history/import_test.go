package history_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/ventctl/internal/hvac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPayload = `{
  "exportMetadata": {"version": "2.1", "exportedAt": "2026-06-01T10:00:00Z"},
  "efficiencyData": {
    "globalRates": {"coolingRate": 1.2, "heatingRate": 0.9},
    "roomEfficiencies": [
      {"roomId": "living", "coolingRate": 2.1, "heatingRate": 1.4},
      {"roomId": "bedroom", "coolingRate": 1.7}
    ]
  }
}`

func TestImportEfficiencyData(t *testing.T) {
	store, _ := newTestStore(t, "UTC", time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC))

	result, err := store.ImportEfficiencyData([]byte(validPayload))
	require.NoError(t, err)
	assert.Equal(t, 2, result.RoomsUpdated)
	assert.Equal(t, 0, result.RoomsSkipped)

	rates, err := store.LearnedRates()
	require.NoError(t, err)
	assert.InDelta(t, 2.1, rates["living"].Cooling, 0.001)
	assert.InDelta(t, 1.4, rates["living"].Heating, 0.001)
	assert.InDelta(t, 1.7, rates["bedroom"].Cooling, 0.001)
	// Bedroom has no learned heating rate; the global rate fills in.
	assert.InDelta(t, 0.9, rates["bedroom"].Heating, 0.001)
}

func TestImportEfficiencyDataRejectsMissingRequiredFields(t *testing.T) {
	store, _ := newTestStore(t, "UTC", time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC))

	cases := map[string]string{
		"not JSON":               `{`,
		"missing exportMetadata": `{"efficiencyData": {"globalRates": {"coolingRate": 1, "heatingRate": 1}}}`,
		"missing efficiencyData": `{"exportMetadata": {}}`,
		"missing globalRates":    `{"exportMetadata": {}, "efficiencyData": {}}`,
		"missing heatingRate":    `{"exportMetadata": {}, "efficiencyData": {"globalRates": {"coolingRate": 1}}}`,
		"out-of-range rate":      `{"exportMetadata": {}, "efficiencyData": {"globalRates": {"coolingRate": 22, "heatingRate": 1}}}`,
	}

	for name, payload := range cases {
		_, err := store.ImportEfficiencyData([]byte(payload))
		require.Error(t, err, name)
	}

	// Nothing was applied by any rejected document.
	rates, err := store.LearnedRates()
	require.NoError(t, err)
	assert.Empty(t, rates)
}

func TestImportEfficiencyDataIgnoresUnknownFields(t *testing.T) {
	store, _ := newTestStore(t, "UTC", time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC))

	payload := `{
      "exportMetadata": {"version": "0.9", "legacyField": true},
      "schemaHints": {"anything": [1, 2, 3]},
      "efficiencyData": {
        "globalRates": {"coolingRate": 1.2, "heatingRate": 0.9, "units": "degPerHour"},
        "roomEfficiencies": [
          {"roomId": "living", "coolingRate": 2.1, "color": "blue", "nested": {"deep": {"deeper": 1}}}
        ],
        "futureSection": {"x": 1}
      }
    }`

	result, err := store.ImportEfficiencyData([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, 1, result.RoomsUpdated)

	rates, err := store.LearnedRates()
	require.NoError(t, err)
	assert.InDelta(t, 2.1, rates["living"].Cooling, 0.001, "recognized fields preserved unchanged")
}

func TestImportEfficiencyDataLastWriteWins(t *testing.T) {
	store, _ := newTestStore(t, "UTC", time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC))

	payload := `{
      "exportMetadata": {},
      "efficiencyData": {
        "globalRates": {"coolingRate": 1.0, "heatingRate": 1.0},
        "roomEfficiencies": [
          {"roomId": "office", "coolingRate": 0.8},
          {"roomId": "office", "coolingRate": 1.2},
          {"roomId": "office", "coolingRate": 1.5}
        ]
      }
    }`

	result, err := store.ImportEfficiencyData([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, 1, result.RoomsUpdated, "three entries for one key update one room")

	rates, err := store.LearnedRates()
	require.NoError(t, err)
	assert.InDelta(t, 1.5, rates["office"].Cooling, 0.001, "the final value survives")
}

func TestImportEfficiencyDataSkipsInvalidRooms(t *testing.T) {
	store, _ := newTestStore(t, "UTC", time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC))

	payload := `{
      "exportMetadata": {},
      "efficiencyData": {
        "globalRates": {"coolingRate": 1.0, "heatingRate": 1.0},
        "roomEfficiencies": [
          {"roomId": "living", "coolingRate": 2.0},
          {"roomId": "bad", "coolingRate": 42.0},
          {"roomName": "named-only", "heatingRate": 1.1},
          {"roomId": "empty"},
          {"coolingRate": 1.0}
        ]
      }
    }`

	result, err := store.ImportEfficiencyData([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, 2, result.RoomsUpdated, "living and named-only")
	assert.Equal(t, 3, result.RoomsSkipped, "out-of-range, rate-less, and anonymous entries")
}

func TestImportEfficiencyDataWithHistoryAndActivity(t *testing.T) {
	store, _ := newTestStore(t, "UTC", time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC))

	payload := `{
      "exportMetadata": {},
      "efficiencyData": {
        "globalRates": {"coolingRate": 1.0, "heatingRate": 1.0},
        "roomEfficiencies": [],
        "dabHistory": [
          {"roomId": "den", "mode": "cooling", "date": "2026-06-10", "hour": 9, "rate": 1.4},
          {"roomId": "den", "mode": "cooling", "date": "2026-06-10", "hour": 10, "rate": 1.6},
          {"roomId": "den", "mode": "cooling", "date": "2026-06-10", "hour": 30, "rate": 1.6}
        ],
        "dabActivityLog": [
          {"timestamp": "2026-06-10T09:00:00Z", "message": "restored from backup"},
          {"message": ""}
        ]
      }
    }`

	result, err := store.ImportEfficiencyData([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, 2, result.SamplesImported, "out-of-range hour skipped")
	assert.Equal(t, 1, result.ActivityEntries, "empty messages skipped")

	_, err = store.AggregateDaily()
	require.NoError(t, err)

	aggregates, err := store.DailyAggregates("den", hvac.ModeCooling)
	require.NoError(t, err)
	require.Len(t, aggregates, 1)
	assert.InDelta(t, 1.5, aggregates[0].AverageRate, 0.001)
}
