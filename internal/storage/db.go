package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

// Repository persists reconstructed terminal state and call history so a
// restart resumes from the last known picture of the network.
type Repository struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(ctx context.Context, dbPath string, logger *slog.Logger) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	repo := &Repository{db: db, logger: logger}
	if err := repo.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) migrate(ctx context.Context) error {
	statements := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS terminals (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			selected_tg TEXT NOT NULL,
			groups_json TEXT NOT NULL,
			is_local INTEGER NOT NULL,
			last_seen TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS call_history (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			source_id TEXT NOT NULL,
			source_callsign TEXT NOT NULL,
			target_tg TEXT NOT NULL,
			display TEXT NOT NULL,
			is_local INTEGER NOT NULL,
			time_slot INTEGER,
			created_at TEXT NOT NULL
		);`,
	}

	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	_, err := r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_call_history_local ON call_history(is_local, created_at);`)
	return err
}
