package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/ventctl/internal/clock"
	"codeberg.org/mutker/ventctl/internal/errors"
	"codeberg.org/mutker/ventctl/internal/hvac"
	"codeberg.org/mutker/ventctl/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

type store struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config
	clk    clock.Clock
	loc    *time.Location
	mu     sync.Mutex
}

func NewStore(cfg Config, clk clock.Clock, log logger.Logger) (Store, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loc, err := resolveLocation(cfg.Timezone)
	if err != nil {
		return nil, errFactory.WithData(ErrInvalidConfig, struct {
			Timezone string
			Error    string
		}{
			Timezone: cfg.Timezone,
			Error:    err.Error(),
		})
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("retention_days", cfg.RetentionDays).
		Str("timezone", loc.String()).
		Msg("Rate history store initialized")

	return &store{
		db:     db,
		logger: log,
		cfg:    cfg,
		clk:    clk,
		loc:    loc,
	}, nil
}

func resolveLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}

	return time.LoadLocation(name)
}

func (s *store) Location() *time.Location {
	return s.loc
}

func (s *store) RecordSample(room string, mode hvac.Mode, ts time.Time, rate float64) error {
	errFactory := errors.New()

	if room == "" || !mode.IsValid() {
		return errFactory.WithMessage(ErrInvalidSample, "sample requires a room and a valid mode")
	}
	if rate <= minRate || rate > maxRate {
		return errFactory.WithData(ErrRateOutOfRange, struct {
			Room string
			Rate float64
		}{
			Room: room,
			Rate: rate,
		})
	}

	// Local calendar date and wall-clock hour; across a DST transition
	// two timestamps an hour apart can land in the same bucket.
	local := ts.In(s.loc)
	date := local.Format("2006-01-02")
	hour := local.Hour()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(insertSampleSQL,
		room, string(mode), date, hour, rate, ts.Unix()); err != nil {
		return errFactory.Wrap(ErrInvalidSample, err)
	}

	s.logger.Debug().
		Str("room", room).
		Str("mode", string(mode)).
		Str("date", date).
		Int("hour", hour).
		Float64("rate", rate).
		Msg("Rate sample recorded")

	return nil
}

func (s *store) ImportSamples(samples []RateSample) (int, error) {
	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				s.logger.Debug().Err(err).Msg("Failed to roll back sample import")
			}
		}
	}()

	applied, err := s.applySamples(tx, samples)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}
	committed = true

	return applied, nil
}

func (s *store) LearnedRates() (map[string]hvac.RoomRates, error) {
	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	globals, err := s.globalRates()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT room, cooling_rate, heating_rate FROM room_rates`)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrOperationFailed, err)
	}
	defer rows.Close()

	rates := make(map[string]hvac.RoomRates)
	for rows.Next() {
		var room string
		var cooling, heating float64
		if err := rows.Scan(&room, &cooling, &heating); err != nil {
			return nil, errFactory.Wrap(errors.ErrOperationFailed, err)
		}
		if cooling <= 0 {
			cooling = globals.Cooling
		}
		if heating <= 0 {
			heating = globals.Heating
		}
		rates[room] = hvac.RoomRates{Cooling: cooling, Heating: heating}
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(errors.ErrOperationFailed, err)
	}

	return rates, nil
}

func (s *store) globalRates() (hvac.RoomRates, error) {
	errFactory := errors.New()

	rows, err := s.db.Query(`SELECT mode, rate FROM global_rates`)
	if err != nil {
		return hvac.RoomRates{}, errFactory.Wrap(errors.ErrOperationFailed, err)
	}
	defer rows.Close()

	var globals hvac.RoomRates
	for rows.Next() {
		var mode string
		var rate float64
		if err := rows.Scan(&mode, &rate); err != nil {
			return hvac.RoomRates{}, errFactory.Wrap(errors.ErrOperationFailed, err)
		}
		switch hvac.Mode(mode) {
		case hvac.ModeCooling:
			globals.Cooling = rate
		case hvac.ModeHeating:
			globals.Heating = rate
		}
	}

	return globals, rows.Err()
}

func (s *store) DailyAggregates(room string, mode hvac.Mode) ([]DailyAggregate, error) {
	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
        SELECT room, mode, date, avg_rate, sample_count
        FROM daily_aggregates
        WHERE room = ? AND mode = ?
        ORDER BY date ASC`, room, string(mode))
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrOperationFailed, err)
	}
	defer rows.Close()

	var aggregates []DailyAggregate
	for rows.Next() {
		var a DailyAggregate
		var m string
		if err := rows.Scan(&a.Room, &m, &a.Date, &a.AverageRate, &a.SampleCount); err != nil {
			return nil, errFactory.Wrap(errors.ErrOperationFailed, err)
		}
		a.Mode = hvac.Mode(m)
		aggregates = append(aggregates, a)
	}

	return aggregates, rows.Err()
}

func (s *store) RecentActivity(limit int) ([]string, error) {
	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
        SELECT message FROM activity_log
        ORDER BY id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrOperationFailed, err)
	}
	defer rows.Close()

	var messages []string
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			return nil, errFactory.Wrap(errors.ErrOperationFailed, err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (s *store) AppendActivity(message string) error {
	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(
		`INSERT INTO activity_log (timestamp, message) VALUES (?, ?)`,
		s.clk.Now().Unix(), message); err != nil {
		return errFactory.Wrap(errors.ErrOperationFailed, err)
	}

	return nil
}

func (s *store) Close() error {
	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errFactory.WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := s.db.Close(); err != nil {
		return errFactory.WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	s.logger.Info().Msg("Rate history store closed gracefully")

	return nil
}
