package database

import (
	"fmt"

	"go.uber.org/zap"
)

// schemaVersion reads the applied schema version: PRAGMA user_version for
// sqlite, the schema_version table for Postgres.
func (db *DB) schemaVersion() (int, error) {
	var version int
	if db.driver == SQLite {
		if err := db.conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
			return 0, fmt.Errorf("reading schema version: %w", err)
		}
		return version, nil
	}

	if _, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return 0, fmt.Errorf("creating schema_version: %w", err)
	}
	if err := db.conn.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

func (db *DB) setSchemaVersion(version int) error {
	if db.driver == SQLite {
		// Set user_version outside the transaction (modernc/sqlite requirement).
		// Safe: if we crash here, the idempotent DDL lets the migration re-run.
		_, err := db.conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", version))
		return err
	}
	_, err := db.conn.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, version)
	return err
}

// migrate brings the database schema up to the latest version.
func (db *DB) migrate() error {
	current, err := db.schemaVersion()
	if err != nil {
		return err
	}

	if current >= latestVersion() {
		return nil
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		zap.S().Infof("applying %s migration %d: %s", db.driver, m.Version, m.Description)

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		ddl := m.SQLite
		if db.driver == Postgres {
			ddl = m.Postgres
		}
		if _, err := tx.Exec(ddl); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		if err := db.setSchemaVersion(m.Version); err != nil {
			return fmt.Errorf("setting version %d: %w", m.Version, err)
		}
	}

	return nil
}
