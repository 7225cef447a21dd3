package history

import (
	"database/sql"
	"encoding/json"
	"time"

	"codeberg.org/mutker/ventctl/internal/errors"
	"codeberg.org/mutker/ventctl/internal/hvac"
)

// Import documents are parsed into optional-field structures so that
// unknown keys at any nesting level are ignored by construction and
// older exports missing optional sections still apply cleanly. Only
// required numeric fields are validated up front.
type efficiencyExport struct {
	ExportMetadata json.RawMessage `json:"exportMetadata"`
	EfficiencyData *efficiencyData `json:"efficiencyData"`
}

type efficiencyData struct {
	GlobalRates      *globalRatesDoc  `json:"globalRates"`
	RoomEfficiencies []roomEfficiency `json:"roomEfficiencies"`
	DabHistory       []historyRecord  `json:"dabHistory"`
	DabActivityLog   []activityRecord `json:"dabActivityLog"`
}

type globalRatesDoc struct {
	CoolingRate *float64 `json:"coolingRate"`
	HeatingRate *float64 `json:"heatingRate"`
}

type roomEfficiency struct {
	RoomID      string   `json:"roomId"`
	RoomName    string   `json:"roomName"`
	CoolingRate *float64 `json:"coolingRate"`
	HeatingRate *float64 `json:"heatingRate"`
}

type historyRecord struct {
	RoomID string   `json:"roomId"`
	Mode   string   `json:"mode"`
	Date   string   `json:"date"`
	Hour   *int     `json:"hour"`
	Rate   *float64 `json:"rate"`
}

type activityRecord struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

func rateInBounds(rate float64) bool {
	return rate > minRate && rate <= maxRate
}

func (s *store) ImportEfficiencyData(payload []byte) (*ImportResult, error) {
	errFactory := errors.New()

	var doc efficiencyExport
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, errFactory.Wrap(ErrImportPayload, err)
	}

	// Required-field validation happens before anything is applied, so
	// a rejected document leaves the store untouched.
	if len(doc.ExportMetadata) == 0 {
		return nil, errFactory.WithMessage(ErrImportPayload, "missing exportMetadata")
	}
	if doc.EfficiencyData == nil {
		return nil, errFactory.WithMessage(ErrImportPayload, "missing efficiencyData")
	}
	globals := doc.EfficiencyData.GlobalRates
	if globals == nil {
		return nil, errFactory.WithMessage(ErrImportPayload, "missing efficiencyData.globalRates")
	}
	if globals.CoolingRate == nil || globals.HeatingRate == nil {
		return nil, errFactory.WithMessage(ErrImportPayload, "globalRates requires coolingRate and heatingRate")
	}
	if !rateInBounds(*globals.CoolingRate) || !rateInBounds(*globals.HeatingRate) {
		return nil, errFactory.WithData(ErrImportPayload, struct {
			CoolingRate float64
			HeatingRate float64
		}{
			CoolingRate: *globals.CoolingRate,
			HeatingRate: *globals.HeatingRate,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, errFactory.Wrap(ErrTransactionFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				s.logger.Debug().Err(err).Msg("Failed to roll back efficiency import")
			}
		}
	}()

	result := &ImportResult{}

	for _, mode := range []hvac.Mode{hvac.ModeCooling, hvac.ModeHeating} {
		rate := *globals.CoolingRate
		if mode == hvac.ModeHeating {
			rate = *globals.HeatingRate
		}
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO global_rates (mode, rate) VALUES (?, ?)`,
			string(mode), rate); err != nil {
			return nil, errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	updated, skipped, err := s.applyRoomEfficiencies(tx, doc.EfficiencyData.RoomEfficiencies)
	if err != nil {
		return nil, err
	}
	result.RoomsUpdated = updated
	result.RoomsSkipped = skipped

	if len(doc.EfficiencyData.DabHistory) > 0 {
		samples := make([]RateSample, 0, len(doc.EfficiencyData.DabHistory))
		for _, rec := range doc.EfficiencyData.DabHistory {
			if rec.Hour == nil || rec.Rate == nil {
				continue
			}
			samples = append(samples, RateSample{
				Room: rec.RoomID,
				Mode: hvac.Mode(rec.Mode),
				Date: rec.Date,
				Hour: *rec.Hour,
				Rate: *rec.Rate,
			})
		}
		applied, err := s.applySamples(tx, samples)
		if err != nil {
			return nil, err
		}
		result.SamplesImported = applied
	}

	for _, rec := range doc.EfficiencyData.DabActivityLog {
		if rec.Message == "" {
			continue
		}
		ts := s.clk.Now()
		if parsed, err := time.Parse(time.RFC3339, rec.Timestamp); err == nil {
			ts = parsed
		}
		if _, err := tx.Exec(
			`INSERT INTO activity_log (timestamp, message) VALUES (?, ?)`,
			ts.Unix(), rec.Message); err != nil {
			return nil, errFactory.Wrap(ErrTransactionFailed, err)
		}
		result.ActivityEntries++
	}

	if err := tx.Commit(); err != nil {
		return nil, errFactory.Wrap(ErrTransactionFailed, err)
	}
	committed = true

	s.logger.Info().
		Int("rooms_updated", result.RoomsUpdated).
		Int("rooms_skipped", result.RoomsSkipped).
		Int("samples", result.SamplesImported).
		Int("activity_entries", result.ActivityEntries).
		Msg("Efficiency data imported")

	return result, nil
}

// applyRoomEfficiencies resolves room entries last-write-wins: a later
// entry for the same room replaces an earlier one in full, and only the
// final value per room is written. Returns distinct rooms updated and
// skipped.
func (s *store) applyRoomEfficiencies(tx *sql.Tx, rooms []roomEfficiency) (int, int, error) {
	errFactory := errors.New()

	pending := make(map[string]hvac.RoomRates)
	skippedRooms := make(map[string]bool)
	skippedAnonymous := 0

	for _, entry := range rooms {
		key := entry.RoomID
		if key == "" {
			key = entry.RoomName
		}
		if key == "" {
			skippedAnonymous++
			s.logger.Warn().Msg("Skipping room efficiency entry without roomId")
			continue
		}

		if _, dup := pending[key]; dup {
			s.logger.Debug().
				Str("room", key).
				Msg("Duplicate room efficiency entry; keeping the later value")
		}

		var rates hvac.RoomRates
		valid := false
		bad := false
		if entry.CoolingRate != nil {
			if rateInBounds(*entry.CoolingRate) {
				rates.Cooling = *entry.CoolingRate
				valid = true
			} else {
				bad = true
			}
		}
		if entry.HeatingRate != nil {
			if rateInBounds(*entry.HeatingRate) {
				rates.Heating = *entry.HeatingRate
				valid = true
			} else {
				bad = true
			}
		}

		if bad || !valid {
			skippedRooms[key] = true
			delete(pending, key)
			s.logger.Warn().
				Str("room", key).
				Msg("Skipping room efficiency entry with missing or out-of-range rates")
			continue
		}

		pending[key] = rates
		delete(skippedRooms, key)
	}

	now := s.clk.Now().Unix()
	for room, rates := range pending {
		// Merge with any existing row so an entry carrying only one
		// mode does not clobber the other learned rate.
		var cooling, heating float64
		err := tx.QueryRow(
			`SELECT cooling_rate, heating_rate FROM room_rates WHERE room = ?`,
			room).Scan(&cooling, &heating)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return 0, 0, errFactory.Wrap(ErrTransactionFailed, err)
		}
		if rates.Cooling > 0 {
			cooling = rates.Cooling
		}
		if rates.Heating > 0 {
			heating = rates.Heating
		}
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO room_rates (room, cooling_rate, heating_rate, updated_at)
             VALUES (?, ?, ?, ?)`,
			room, cooling, heating, now); err != nil {
			return 0, 0, errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	return len(pending), len(skippedRooms) + skippedAnonymous, nil
}

// applySamples merges samples into rate_samples last-write-wins per
// (room, mode, date, hour). Invalid samples are skipped with a warning;
// they never abort the surrounding transaction.
func (s *store) applySamples(tx *sql.Tx, samples []RateSample) (int, error) {
	errFactory := errors.New()

	stmt, err := tx.Prepare(insertSampleSQL)
	if err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	applied := 0
	now := s.clk.Now().Unix()
	for _, sample := range samples {
		if sample.Room == "" || !sample.Mode.IsValid() {
			s.logger.Warn().
				Str("room", sample.Room).
				Str("mode", string(sample.Mode)).
				Msg("Skipping sample with missing room or mode")
			continue
		}
		if sample.Hour < 0 || sample.Hour > 23 {
			s.logger.Warn().
				Str("room", sample.Room).
				Int("hour", sample.Hour).
				Msg("Skipping sample with out-of-range hour")
			continue
		}
		if !rateInBounds(sample.Rate) {
			s.logger.Warn().
				Str("room", sample.Room).
				Float64("rate", sample.Rate).
				Msg("Skipping sample with out-of-range rate")
			continue
		}
		if _, err := time.ParseInLocation("2006-01-02", sample.Date, s.loc); err != nil {
			s.logger.Warn().
				Str("room", sample.Room).
				Str("date", sample.Date).
				Msg("Skipping sample with malformed date")
			continue
		}

		if _, err := stmt.Exec(sample.Room, string(sample.Mode),
			sample.Date, sample.Hour, sample.Rate, now); err != nil {
			return 0, errFactory.Wrap(ErrTransactionFailed, err)
		}
		applied++
	}

	return applied, nil
}
