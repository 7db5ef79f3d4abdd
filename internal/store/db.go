// Package store provides SQLite persistence for case studies, including the
// optimistic-concurrency update path and per-update revision history.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/casefolio/casefolio/internal/errs"
	"github.com/casefolio/casefolio/internal/logging"
)

// DB wraps the SQL connection pool together with the store logger.
type DB struct {
	*sql.DB
	logger logging.Logger
}

// Open opens (or creates) the SQLite database at path and runs migrations.
// Pass ":memory:" for an in-process database.
func Open(ctx context.Context, path string, logger logging.Logger) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.NewStorageError("open_failed",
			fmt.Sprintf("opening database %q", path), err)
	}

	// A single connection keeps in-memory databases coherent and sidesteps
	// SQLite write contention.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{DB: sqlDB, logger: logger.WithComponent("store")}

	if err := db.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}

	db.logger.Info(ctx, "database ready", "path", path)
	return db, nil
}

func (db *DB) migrate(ctx context.Context) error {
	statements := []string{
		`PRAGMA foreign_keys = ON`,
		`CREATE TABLE IF NOT EXISTS case_studies (
			id           TEXT PRIMARY KEY,
			content_json TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS revisions (
			id            TEXT PRIMARY KEY,
			case_study_id TEXT NOT NULL REFERENCES case_studies(id) ON DELETE CASCADE,
			revision      INTEGER NOT NULL,
			content_json  TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			UNIQUE (case_study_id, revision)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_revisions_case_study
			ON revisions (case_study_id, revision)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errs.NewStorageError("migrate_failed", "running schema migration", err)
		}
	}

	return nil
}
