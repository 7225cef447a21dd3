package history

import (
	"database/sql"

	"codeberg.org/mutker/ventctl/internal/errors"
	"codeberg.org/mutker/ventctl/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS rate_samples (
	       room        TEXT NOT NULL,
	       mode        TEXT NOT NULL CHECK (mode IN ('cooling', 'heating')),
	       date        TEXT NOT NULL,
	       hour        INTEGER NOT NULL CHECK (hour BETWEEN 0 AND 23),
	       rate        REAL NOT NULL CHECK (rate > 0),
	       recorded_at INTEGER NOT NULL,
	       PRIMARY KEY (room, mode, date, hour)
	   );
	   CREATE TABLE IF NOT EXISTS daily_aggregates (
	       room         TEXT NOT NULL,
	       mode         TEXT NOT NULL CHECK (mode IN ('cooling', 'heating')),
	       date         TEXT NOT NULL,
	       avg_rate     REAL NOT NULL,
	       sample_count INTEGER NOT NULL,
	       PRIMARY KEY (room, mode, date)
	   );
	   CREATE TABLE IF NOT EXISTS room_rates (
	       room         TEXT PRIMARY KEY,
	       cooling_rate REAL NOT NULL DEFAULT 0,
	       heating_rate REAL NOT NULL DEFAULT 0,
	       updated_at   INTEGER NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS global_rates (
	       mode TEXT PRIMARY KEY CHECK (mode IN ('cooling', 'heating')),
	       rate REAL NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS activity_log (
	       id        INTEGER PRIMARY KEY AUTOINCREMENT,
	       timestamp INTEGER NOT NULL,
	       message   TEXT NOT NULL
	   );`

	insertSampleSQL = `
    INSERT OR REPLACE INTO rate_samples (room, mode, date, hour, rate, recorded_at)
    VALUES (?, ?, ?, ?, ?, ?)`

	insertAggregateSQL = `
    INSERT OR REPLACE INTO daily_aggregates (room, mode, date, avg_rate, sample_count)
    VALUES (?, ?, ?, ?, ?)`
)

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				if !errors.Is(err, sql.ErrTxDone) {
					log.Debug().Err(err).Msg("Failed to rollback transaction")
				}
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			SQL   string
		}{
			Error: err.Error(),
			SQL:   createTablesSQL,
		})
	}

	if _, err := tx.Exec(`
        INSERT OR IGNORE INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Debug().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the current schema version
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	errFactory := errors.New()
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}

// ValidateAndUpdateSchema checks the schema version and initializes the
// schema on a fresh database. A version mismatch on an existing database
// is a hard failure rather than a silent rebuild; rate history is the
// system's learned state and must not be dropped on upgrade.
func ValidateAndUpdateSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	version, err := GetSchemaVersion(db)
	if err != nil {
		return errFactory.Wrap(ErrSchemaValidationFailed, err)
	}

	if version == 0 {
		return InitSchema(db, log)
	}

	if version != SchemaVersion {
		return errFactory.WithData(ErrSchemaMigrationFailed, struct {
			Found    int
			Expected int
		}{
			Found:    version,
			Expected: SchemaVersion,
		})
	}

	log.Debug().
		Int("version", version).
		Msg("Schema version is current")

	return nil
}
