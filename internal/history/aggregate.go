package history

import (
	"database/sql"
	"sort"

	"codeberg.org/mutker/ventctl/internal/errors"
)

type sampleGroup struct {
	room string
	mode string
	date string
}

type hourlyRate struct {
	hour int
	rate float64
}

// AggregateDaily groups all samples recorded on days strictly before the
// local "today", computes the arithmetic mean per (room, mode, date), and
// replaces the matching DailyAggregate rows. Hours absent from a day are
// simply excluded from the mean; there is no interpolation. Samples past
// the retention window are pruned afterwards.
func (s *store) AggregateDaily() (int, error) {
	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now().In(s.loc)
	today := now.Format("2006-01-02")

	rows, err := s.db.Query(`
        SELECT room, mode, date, hour, rate
        FROM rate_samples
        WHERE date < ?`, today)
	if err != nil {
		return 0, errFactory.Wrap(ErrAggregation, err)
	}

	groups := make(map[sampleGroup][]hourlyRate)
	for rows.Next() {
		var g sampleGroup
		var h hourlyRate
		if err := rows.Scan(&g.room, &g.mode, &g.date, &h.hour, &h.rate); err != nil {
			rows.Close()
			return 0, errFactory.Wrap(ErrAggregation, err)
		}
		groups[g] = append(groups[g], h)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, errFactory.Wrap(ErrAggregation, err)
	}
	rows.Close()

	if len(groups) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				s.logger.Debug().Err(err).Msg("Failed to roll back aggregation")
			}
		}
	}()

	stmt, err := tx.Prepare(insertAggregateSQL)
	if err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	written := 0
	for g, samples := range groups {
		// Input order is not guaranteed; the mean does not depend on
		// it, but aggregates are built over hour-ascending samples so
		// the walk is deterministic.
		sort.Slice(samples, func(i, j int) bool {
			return samples[i].hour < samples[j].hour
		})

		var sum float64
		for _, h := range samples {
			sum += h.rate
		}
		avg := sum / float64(len(samples))

		if _, err := stmt.Exec(g.room, g.mode, g.date, avg, len(samples)); err != nil {
			return 0, errFactory.Wrap(ErrTransactionFailed, err)
		}
		written++
	}

	if err := s.refreshRoomRates(tx); err != nil {
		return 0, err
	}

	cutoff := now.AddDate(0, 0, -s.cfg.RetentionDays).Format("2006-01-02")
	pruned, err := tx.Exec(`DELETE FROM rate_samples WHERE date < ?`, cutoff)
	if err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}
	committed = true

	if n, err := pruned.RowsAffected(); err == nil && n > 0 {
		s.logger.Info().
			Int64("samples", n).
			Str("cutoff", cutoff).
			Msg("Pruned rate samples beyond retention")
	}

	s.logger.Info().
		Int("aggregates", written).
		Msg("Daily rate aggregation complete")

	return written, nil
}

// refreshRoomRates recomputes the learned per-room rates as the mean of
// each room's daily aggregates, weighted by sample count.
func (s *store) refreshRoomRates(tx *sql.Tx) error {
	errFactory := errors.New()

	if _, err := tx.Exec(`
        INSERT OR REPLACE INTO room_rates (room, cooling_rate, heating_rate, updated_at)
        SELECT
            room,
            COALESCE(SUM(CASE WHEN mode = 'cooling' THEN avg_rate * sample_count END) * 1.0 /
                NULLIF(SUM(CASE WHEN mode = 'cooling' THEN sample_count END), 0), 0),
            COALESCE(SUM(CASE WHEN mode = 'heating' THEN avg_rate * sample_count END) * 1.0 /
                NULLIF(SUM(CASE WHEN mode = 'heating' THEN sample_count END), 0), 0),
            ?
        FROM daily_aggregates
        GROUP BY room`, s.clk.Now().Unix()); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	return nil
}
