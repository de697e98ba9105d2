// Package sqlite implements the relational store adapter and the durable
// saga log on SQLite.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	apperrors "noesis-backend/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS concepts (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	is_synthesis INTEGER NOT NULL DEFAULT 0,
	parent_concept_ids TEXT NOT NULL DEFAULT '',
	synthesis_method TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	last_modified TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS saga_log (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	plan_id TEXT NOT NULL,
	step_index INTEGER NOT NULL,
	step_name TEXT NOT NULL,
	step_kind TEXT NOT NULL,
	status TEXT NOT NULL,
	concept_ids TEXT NOT NULL DEFAULT '',
	payload_hash TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_saga_log_plan ON saga_log(plan_id, seq);
`

// Open opens (or creates) the database and applies the schema.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, apperrors.NewUnavailable("failed to open sqlite database", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// under concurrent plans.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.NewUnavailable("failed to apply sqlite schema", err)
	}
	return db, nil
}

// mapError translates driver errors into the shared taxonomy.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewNotFound(op + ": record not found")
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrConstraint:
			return apperrors.NewConflict(fmt.Sprintf("%s: %v", op, err))
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return apperrors.NewUnavailable(op+": database busy", err)
		}
	}
	return apperrors.NewUnavailable(fmt.Sprintf("%s failed", op), err)
}
