package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bernardmuller/pulse/internal/biometrics"
)

// DayRecord joins all signals stored for one calendar day. Signals the sync
// could not fetch are nil.
type DayRecord struct {
	Date  biometrics.Date        `json:"date"`
	HRV   *biometrics.DailyHRV   `json:"hrv,omitempty"`
	Sleep *biometrics.DailySleep `json:"sleep,omitempty"`
	Steps *biometrics.DailySteps `json:"steps,omitempty"`
	Load  *biometrics.DailyLoad  `json:"load,omitempty"`
}

// Empty reports whether the day carries no signal at all.
func (r DayRecord) Empty() bool {
	return r.HRV == nil && r.Sleep == nil && r.Steps == nil && r.Load == nil
}

// UpsertDay writes every present signal of a day in one transaction, so a
// partially written day is never visible.
func (s *Store) UpsertDay(ctx context.Context, rec DayRecord) error {
	if rec.Date == "" {
		return fmt.Errorf("store: day record without date")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := nowUTC()
	if rec.HRV != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO daily_hrv (date, overnight_avg, weekly_avg, high_five_min, status, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(date) DO UPDATE SET
				overnight_avg = excluded.overnight_avg,
				weekly_avg    = excluded.weekly_avg,
				high_five_min = excluded.high_five_min,
				status        = excluded.status,
				updated_at    = excluded.updated_at`,
			rec.Date, rec.HRV.OvernightAvg, rec.HRV.WeeklyAvg, rec.HRV.HighFiveMin, rec.HRV.Status, now)
		if err != nil {
			return fmt.Errorf("store: upsert hrv %s: %w", rec.Date, err)
		}
	}
	if rec.Sleep != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO daily_sleep (date, total_min, deep_min, rem_min, light_min, awake_min, score, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(date) DO UPDATE SET
				total_min  = excluded.total_min,
				deep_min   = excluded.deep_min,
				rem_min    = excluded.rem_min,
				light_min  = excluded.light_min,
				awake_min  = excluded.awake_min,
				score      = excluded.score,
				updated_at = excluded.updated_at`,
			rec.Date, rec.Sleep.TotalMinutes, rec.Sleep.DeepMinutes, rec.Sleep.RemMinutes,
			rec.Sleep.LightMinutes, rec.Sleep.AwakeMinutes, rec.Sleep.Score, now)
		if err != nil {
			return fmt.Errorf("store: upsert sleep %s: %w", rec.Date, err)
		}
	}
	if rec.Steps != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO daily_steps (date, steps, goal, distance_m, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(date) DO UPDATE SET
				steps      = excluded.steps,
				goal       = excluded.goal,
				distance_m = excluded.distance_m,
				updated_at = excluded.updated_at`,
			rec.Date, rec.Steps.Steps, rec.Steps.Goal, rec.Steps.DistanceMeters, now)
		if err != nil {
			return fmt.Errorf("store: upsert steps %s: %w", rec.Date, err)
		}
	}
	if rec.Load != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO daily_load (date, training_load, activity_count, duration_min, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(date) DO UPDATE SET
				training_load  = excluded.training_load,
				activity_count = excluded.activity_count,
				duration_min   = excluded.duration_min,
				updated_at     = excluded.updated_at`,
			rec.Date, rec.Load.TrainingLoad, rec.Load.ActivityCount, rec.Load.DurationMinutes, now)
		if err != nil {
			return fmt.Errorf("store: upsert load %s: %w", rec.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit day %s: %w", rec.Date, err)
	}
	return nil
}

// GetDay loads all signals for a day. ErrNotFound means no signal exists.
func (s *Store) GetDay(ctx context.Context, day biometrics.Date) (DayRecord, error) {
	rec := DayRecord{Date: day}

	var hrv biometrics.DailyHRV
	err := s.db.QueryRowContext(ctx,
		`SELECT overnight_avg, weekly_avg, high_five_min, status FROM daily_hrv WHERE date = ?`, day).
		Scan(&hrv.OvernightAvg, &hrv.WeeklyAvg, &hrv.HighFiveMin, &hrv.Status)
	switch {
	case err == nil:
		hrv.Date = day
		rec.HRV = &hrv
	case !errors.Is(err, sql.ErrNoRows):
		return rec, fmt.Errorf("store: get hrv %s: %w", day, err)
	}

	var slp biometrics.DailySleep
	err = s.db.QueryRowContext(ctx,
		`SELECT total_min, deep_min, rem_min, light_min, awake_min, score FROM daily_sleep WHERE date = ?`, day).
		Scan(&slp.TotalMinutes, &slp.DeepMinutes, &slp.RemMinutes, &slp.LightMinutes, &slp.AwakeMinutes, &slp.Score)
	switch {
	case err == nil:
		slp.Date = day
		rec.Sleep = &slp
	case !errors.Is(err, sql.ErrNoRows):
		return rec, fmt.Errorf("store: get sleep %s: %w", day, err)
	}

	var st biometrics.DailySteps
	err = s.db.QueryRowContext(ctx,
		`SELECT steps, goal, distance_m FROM daily_steps WHERE date = ?`, day).
		Scan(&st.Steps, &st.Goal, &st.DistanceMeters)
	switch {
	case err == nil:
		st.Date = day
		rec.Steps = &st
	case !errors.Is(err, sql.ErrNoRows):
		return rec, fmt.Errorf("store: get steps %s: %w", day, err)
	}

	var ld biometrics.DailyLoad
	err = s.db.QueryRowContext(ctx,
		`SELECT training_load, activity_count, duration_min FROM daily_load WHERE date = ?`, day).
		Scan(&ld.TrainingLoad, &ld.ActivityCount, &ld.DurationMinutes)
	switch {
	case err == nil:
		ld.Date = day
		rec.Load = &ld
	case !errors.Is(err, sql.ErrNoRows):
		return rec, fmt.Errorf("store: get load %s: %w", day, err)
	}

	if rec.Empty() {
		return rec, fmt.Errorf("%w: %s", ErrNotFound, day)
	}
	return rec, nil
}

// LatestDay returns the most recent date that carries any signal.
// ErrNotFound when the store is empty.
func (s *Store) LatestDay(ctx context.Context) (biometrics.Date, error) {
	var day sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(date) FROM (
			SELECT date FROM daily_hrv
			UNION SELECT date FROM daily_sleep
			UNION SELECT date FROM daily_steps
			UNION SELECT date FROM daily_load
		)`).Scan(&day)
	if err != nil {
		return "", fmt.Errorf("store: latest day: %w", err)
	}
	if !day.Valid || day.String == "" {
		return "", ErrNotFound
	}
	return biometrics.Date(day.String), nil
}

// HRVWindow returns overnight averages for the `days` days strictly before
// `before`, oldest first. Missing days are simply absent.
func (s *Store) HRVWindow(ctx context.Context, before biometrics.Date, days int) ([]float64, error) {
	return s.window(ctx,
		`SELECT overnight_avg FROM daily_hrv WHERE date >= ? AND date < ? ORDER BY date`,
		before, days)
}

// SleepWindow returns total sleep minutes for the window before `before`.
func (s *Store) SleepWindow(ctx context.Context, before biometrics.Date, days int) ([]float64, error) {
	return s.window(ctx,
		`SELECT total_min FROM daily_sleep WHERE date >= ? AND date < ? ORDER BY date`,
		before, days)
}

// LoadWindow returns daily training load for the window before `before`.
func (s *Store) LoadWindow(ctx context.Context, before biometrics.Date, days int) ([]float64, error) {
	return s.window(ctx,
		`SELECT training_load FROM daily_load WHERE date >= ? AND date < ? ORDER BY date`,
		before, days)
}

func (s *Store) window(ctx context.Context, query string, before biometrics.Date, days int) ([]float64, error) {
	from := before.AddDays(-days)
	rows, err := s.db.QueryContext(ctx, query, from, before)
	if err != nil {
		return nil, fmt.Errorf("store: window query: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("store: window scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
