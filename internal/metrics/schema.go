package metrics

import (
	"database/sql"

	"codeberg.org/mutker/powerstatd/internal/errors"
	"codeberg.org/mutker/powerstatd/internal/logger"
)

const (
	SchemaVersion = 1

	// SQL statements derived from schema
	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS sessions (
	       id          TEXT PRIMARY KEY,
	       started_at  INTEGER NOT NULL,
	       hostname    TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS reports (
	       id          INTEGER PRIMARY KEY AUTOINCREMENT,
	       session_id  TEXT NOT NULL REFERENCES sessions(id),
	       timestamp   INTEGER NOT NULL,
	       elapsed     REAL NOT NULL CHECK (elapsed >= 0)
	   );
	   CREATE INDEX IF NOT EXISTS reports_session_ts ON reports (session_id, timestamp);
	   CREATE TABLE IF NOT EXISTS report_values (
	       report_id   INTEGER NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
	       key         TEXT NOT NULL,
	       value       REAL NOT NULL,
	       PRIMARY KEY (report_id, key)
	   );
	   CREATE TABLE IF NOT EXISTS report_fields (
	       report_id   INTEGER NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
	       key         TEXT NOT NULL,
	       value       TEXT NOT NULL,
	       PRIMARY KEY (report_id, key)
	   );`

	insertVersionSQL = `
    INSERT INTO schema_versions (version, applied_at) VALUES (?, datetime('now'))`

	selectVersionSQL = `
    SELECT version FROM schema_versions ORDER BY version DESC LIMIT 1`

	tableExistsSQL = `
    SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?)`

	insertSessionSQL = `
    INSERT INTO sessions (id, started_at, hostname) VALUES (?, ?, ?)`

	insertReportSQL = `
    INSERT INTO reports (session_id, timestamp, elapsed) VALUES (?, ?, ?)`

	insertValueSQL = `
    INSERT INTO report_values (report_id, key, value) VALUES (?, ?, ?)`

	insertFieldSQL = `
    INSERT INTO report_fields (report_id, key, value) VALUES (?, ?, ?)`
)

// Tables in drop order.
var tables = []string{"report_fields", "report_values", "reports", "sessions", "schema_versions"}

// schemaFailure is attached to schema errors.
type schemaFailure struct {
	Phase string
	Table string `json:",omitempty"`
	Error string
}

func schemaError(code errors.ErrorCode, phase, table string, err error) errors.Error {
	return errors.New().WithData(code, schemaFailure{Phase: phase, Table: table, Error: err.Error()})
}

// inTx runs fn inside a transaction, rolling back unless fn and the commit
// both succeed.
func inTx(db *sql.DB, code errors.ErrorCode, log logger.Logger, fn func(*sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return schemaError(code, "begin", "", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Debug().Err(rbErr).Msg("Failed to rollback schema transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return schemaError(code, "commit", "", err)
	}

	return nil
}

// InitSchema creates the report tables and records SchemaVersion.
func InitSchema(db *sql.DB, log logger.Logger) error {
	log.Debug().Int("version", SchemaVersion).Msg("Creating report schema")

	err := inTx(db, ErrSchemaInitFailed, log, func(tx *sql.Tx) error {
		if _, err := tx.Exec(createTablesSQL); err != nil {
			return schemaError(ErrSchemaInitFailed, "create_tables", "", err)
		}
		if _, err := tx.Exec(insertVersionSQL, SchemaVersion); err != nil {
			return schemaError(ErrSchemaInitFailed, "record_version", "schema_versions", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Int("version", SchemaVersion).Msg("Report schema initialized")

	return nil
}

// GetSchemaVersion returns the highest recorded schema version, or 0 for a
// database without one.
func GetSchemaVersion(db *sql.DB) (int, error) {
	exists, err := TableExists(db, "schema_versions")
	if err != nil || !exists {
		return 0, err
	}

	var version int
	switch err := db.QueryRow(selectVersionSQL).Scan(&version); {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, schemaError(ErrSchemaValidationFailed, "get_version", "schema_versions", err)
	}

	return version, nil
}

// TableExists reports whether table is present in sqlite_master.
func TableExists(db *sql.DB, table string) (bool, error) {
	var exists bool
	if err := db.QueryRow(tableExistsSQL, table).Scan(&exists); err != nil {
		return false, schemaError(ErrSchemaValidationFailed, "check_table_exists", table, err)
	}

	return exists, nil
}
