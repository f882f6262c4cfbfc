package metrics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/powerstatd/internal/logger"
)

// backupDatabase copies the database to backupDir before a schema reset.
func backupDatabase(db *sql.DB, backupDir string, version int, log logger.Logger) (string, error) {
	if err := os.MkdirAll(backupDir, defaultDirPerm); err != nil {
		return "", schemaError(ErrSchemaMigrationFailed, "create_backup_dir", "", err)
	}

	name := fmt.Sprintf("reports_v%d_%s.db", version, time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(backupDir, name)

	// VACUUM INTO cannot run inside a transaction.
	if _, err := db.Exec("VACUUM INTO ?", path); err != nil {
		return "", schemaError(ErrSchemaMigrationFailed, "create_backup", "", err)
	}

	log.Info().Str("path", path).Int("version", version).Msg("Database backup created")

	return path, nil
}

// ValidateAndUpdateSchema initializes an empty database. A database at any
// other version is backed up to backupDir, dropped and recreated; reports
// are not migrated between versions.
func ValidateAndUpdateSchema(db *sql.DB, backupDir string, log logger.Logger) error {
	version, err := GetSchemaVersion(db)
	if err != nil {
		return err
	}

	switch version {
	case SchemaVersion:
		log.Debug().Int("version", version).Msg("Schema version is current")
		return nil
	case 0:
		return InitSchema(db, log)
	}

	log.Warn().
		Int("found", version).
		Int("want", SchemaVersion).
		Msg("Schema version mismatch, recreating")

	if _, err := backupDatabase(db, backupDir, version, log); err != nil {
		return err
	}

	err = inTx(db, ErrSchemaMigrationFailed, log, func(tx *sql.Tx) error {
		for _, table := range tables {
			if _, err := tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
				return schemaError(ErrSchemaMigrationFailed, "drop_table", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return InitSchema(db, log)
}
