package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SyncRun is the durable record of one sync attempt.
type SyncRun struct {
	ID            string     `json:"id"`
	StartedAt     time.Time  `json:"startedAt"`
	FinishedAt    *time.Time `json:"finishedAt,omitempty"`
	DaysRequested int        `json:"daysRequested"`
	DaysSynced    int        `json:"daysSynced"`
	Outcome       string     `json:"outcome"` // running, success, partial, failure
	Error         string     `json:"error,omitempty"`
}

// BeginSyncRun records the start of a sync.
func (s *Store) BeginSyncRun(ctx context.Context, id string, daysRequested int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (id, started_at, days_requested) VALUES (?, ?, ?)`,
		id, nowUTC(), daysRequested)
	if err != nil {
		return fmt.Errorf("store: begin sync run: %w", err)
	}
	return nil
}

// FinishSyncRun records the outcome of a sync.
func (s *Store) FinishSyncRun(ctx context.Context, id string, daysSynced int, outcome, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs SET finished_at = ?, days_synced = ?, outcome = ?, error = ? WHERE id = ?`,
		nowUTC(), daysSynced, outcome, errMsg, id)
	if err != nil {
		return fmt.Errorf("store: finish sync run: %w", err)
	}
	return nil
}

// LastSyncRun returns the most recently started run, or ErrNotFound.
func (s *Store) LastSyncRun(ctx context.Context) (SyncRun, error) {
	var (
		run      SyncRun
		started  string
		finished sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, days_requested, days_synced, outcome, error
		FROM sync_runs ORDER BY started_at DESC, id DESC LIMIT 1`).
		Scan(&run.ID, &started, &finished, &run.DaysRequested, &run.DaysSynced, &run.Outcome, &run.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return run, fmt.Errorf("%w: sync runs", ErrNotFound)
	}
	if err != nil {
		return run, fmt.Errorf("store: last sync run: %w", err)
	}

	run.StartedAt, err = time.Parse(time.RFC3339, started)
	if err != nil {
		return run, fmt.Errorf("store: parse started_at: %w", err)
	}
	if finished.Valid {
		t, err := time.Parse(time.RFC3339, finished.String)
		if err != nil {
			return run, fmt.Errorf("store: parse finished_at: %w", err)
		}
		run.FinishedAt = &t
	}
	return run, nil
}
