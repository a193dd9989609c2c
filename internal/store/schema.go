package store

import (
	"context"
	"fmt"
)

// The schema is applied idempotently at open. Dates are ISO 8601 day strings,
// which sort lexically in calendar order.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS daily_hrv (
		date          TEXT PRIMARY KEY,
		overnight_avg REAL NOT NULL,
		weekly_avg    REAL NOT NULL,
		high_five_min REAL NOT NULL,
		status        TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS daily_sleep (
		date        TEXT PRIMARY KEY,
		total_min   INTEGER NOT NULL,
		deep_min    INTEGER NOT NULL,
		rem_min     INTEGER NOT NULL,
		light_min   INTEGER NOT NULL,
		awake_min   INTEGER NOT NULL,
		score       INTEGER NOT NULL,
		updated_at  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS daily_steps (
		date        TEXT PRIMARY KEY,
		steps       INTEGER NOT NULL,
		goal        INTEGER NOT NULL,
		distance_m  REAL NOT NULL,
		updated_at  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS daily_load (
		date           TEXT PRIMARY KEY,
		training_load  REAL NOT NULL,
		activity_count INTEGER NOT NULL,
		duration_min   REAL NOT NULL,
		updated_at     TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sync_runs (
		id             TEXT PRIMARY KEY,
		started_at     TEXT NOT NULL,
		finished_at    TEXT,
		days_requested INTEGER NOT NULL,
		days_synced    INTEGER NOT NULL DEFAULT 0,
		outcome        TEXT NOT NULL DEFAULT 'running',
		error          TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}
