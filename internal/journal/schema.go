package journal

import (
	"database/sql"

	"codeberg.org/mutker/tapometer/internal/errors"
)

const (
	createTableSQL = `
        CREATE TABLE IF NOT EXISTS sessions (
            id          TEXT PRIMARY KEY,
            address     TEXT NOT NULL,
            interval_ms INTEGER NOT NULL,
            duration_ms INTEGER NOT NULL,
            state       TEXT NOT NULL,
            samples     INTEGER NOT NULL,
            output_path TEXT,
            error       TEXT,
            started_at  INTEGER NOT NULL,
            finished_at INTEGER NOT NULL
        )`

	insertEntrySQL = `
        INSERT INTO sessions (
            id, address, interval_ms, duration_ms,
            state, samples, output_path, error,
            started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(createTableSQL); err != nil {
		return errors.New().Wrap(ErrSchemaInitFailed, err)
	}

	return nil
}
