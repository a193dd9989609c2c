// Package jobs runs the sync pipeline: fetch raw biometrics from Garmin,
// journal them, normalize, and persist one day at a time.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bernardmuller/pulse/internal/biometrics"
	"github.com/bernardmuller/pulse/internal/cache"
	"github.com/bernardmuller/pulse/internal/garmin"
	"github.com/bernardmuller/pulse/internal/journal"
	"github.com/bernardmuller/pulse/internal/log"
	"github.com/bernardmuller/pulse/internal/metrics"
	"github.com/bernardmuller/pulse/internal/store"
	"github.com/bernardmuller/pulse/internal/telemetry"
)

var ErrSyncInProgress = errors.New("jobs: a sync is already running")

const (
	minConcurrency = 1
	maxConcurrency = 8

	activitiesPageSize = 100
)

// Fetcher is the upstream surface the syncer needs; *garmin.Client
// implements it, tests stub it.
type Fetcher interface {
	Profile(ctx context.Context) (garmin.SocialProfile, error)
	DailySleep(ctx context.Context, displayName string, date time.Time) (garmin.SleepData, error)
	DailyHRV(ctx context.Context, date time.Time) (garmin.HRVData, error)
	DailySteps(ctx context.Context, start, end time.Time) ([]garmin.DailyStepsEntry, error)
	Activities(ctx context.Context, start, limit int) ([]garmin.Activity, error)
}

// Options tunes a sync run.
type Options struct {
	Days        int           // how many days back from today, inclusive
	Concurrency int           // parallel day workers, clamped to [1,8]
	Retries     int           // retry attempts per upstream call
	Backoff     time.Duration // base backoff, doubled per attempt
}

// Status reports the outcome of one sync run.
type Status struct {
	SyncID     string    `json:"syncId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Requested  int       `json:"requested"`
	Synced     int       `json:"synced"`
	Skipped    int       `json:"skipped"`
	Outcome    string    `json:"outcome"` // success, partial, failure
}

// Syncer coordinates sync runs. Only one run may be active at a time.
type Syncer struct {
	fetcher Fetcher
	store   *store.Store
	journal *journal.Journal
	cache   cache.Cache

	running atomic.Bool
	now     func() time.Time
}

// NewSyncer wires the pipeline.
func NewSyncer(f Fetcher, st *store.Store, jr *journal.Journal, c cache.Cache) *Syncer {
	if c == nil {
		c = cache.NewNoOp()
	}
	return &Syncer{fetcher: f, store: st, journal: jr, cache: c, now: time.Now}
}

// Running reports whether a sync is currently active.
func (s *Syncer) Running() bool {
	return s.running.Load()
}

// Run executes one sync over the last opts.Days days. A second concurrent
// call fails fast with ErrSyncInProgress.
func (s *Syncer) Run(ctx context.Context, opts Options) (Status, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Status{}, ErrSyncInProgress
	}
	defer s.running.Store(false)

	if opts.Days < 1 {
		opts.Days = 1
	}
	if opts.Concurrency < minConcurrency {
		opts.Concurrency = minConcurrency
	}
	if opts.Concurrency > maxConcurrency {
		opts.Concurrency = maxConcurrency
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}

	syncID := uuid.NewString()
	ctx = log.ContextWithSyncID(ctx, syncID)
	logger := log.WithComponentFromContext(ctx, "jobs")

	ctx, span := telemetry.Tracer("pulse/jobs").Start(ctx, "sync")
	span.SetAttributes(telemetry.SyncAttributes(syncID, opts.Days, "")...)
	defer span.End()

	status := Status{SyncID: syncID, StartedAt: s.now(), Requested: opts.Days}
	logger.Info().Str(log.FieldEvent, "sync.start").Int(log.FieldDays, opts.Days).Msg("sync started")

	if err := s.store.BeginSyncRun(ctx, syncID, opts.Days); err != nil {
		metrics.IncSyncRun("failure")
		return status, err
	}

	synced, err := s.run(ctx, opts)
	status.Synced = synced
	status.Skipped = opts.Days - synced
	status.FinishedAt = s.now()

	switch {
	case err != nil:
		status.Outcome = "failure"
	case synced < opts.Days:
		status.Outcome = "partial"
	default:
		status.Outcome = "success"
	}
	span.SetAttributes(attribute.String(telemetry.SyncOutcomeKey, status.Outcome))

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	if ferr := s.store.FinishSyncRun(ctx, syncID, synced, status.Outcome, errMsg); ferr != nil {
		logger.Warn().Err(ferr).Msg("failed to record sync outcome")
	}

	metrics.IncSyncRun(status.Outcome)
	metrics.ObserveSyncDuration(status.FinishedAt.Sub(status.StartedAt).Seconds())
	if err == nil {
		metrics.SetLastSyncTimestamp(float64(status.FinishedAt.Unix()))
		if _, merr := s.journal.MarkSync(ctx, syncID, 0); merr != nil {
			logger.Warn().Err(merr).Msg("failed to mark sync in journal")
		}
	}

	logger.Info().
		Str(log.FieldEvent, "sync.done").
		Str(log.FieldStatus, status.Outcome).
		Int("synced", synced).
		Int("skipped", status.Skipped).
		Msg("sync finished")
	return status, err
}

func (s *Syncer) run(ctx context.Context, opts Options) (int, error) {
	today := biometrics.DateOf(s.now())
	oldest := today.AddDays(-(opts.Days - 1))

	profile, err := withRetry(ctx, opts, "profile", func() (garmin.SocialProfile, error) {
		return s.fetcher.Profile(ctx)
	})
	if err != nil {
		metrics.IncSyncFailure("profile")
		return 0, fmt.Errorf("jobs: fetch profile: %w", err)
	}

	// Steps and activities cover the whole range in one call each; the
	// per-day fan-out only carries HRV and sleep.
	steps, err := withRetry(ctx, opts, "steps", func() ([]garmin.DailyStepsEntry, error) {
		return s.fetcher.DailySteps(ctx, oldest.Time(), today.Time())
	})
	if err != nil {
		metrics.IncSyncFailure("steps")
		return 0, fmt.Errorf("jobs: fetch steps: %w", err)
	}
	stepsByDay := make(map[biometrics.Date]garmin.DailyStepsEntry, len(steps))
	for _, e := range steps {
		stepsByDay[biometrics.Date(e.CalendarDate)] = e
	}

	activities, err := withRetry(ctx, opts, "activities", func() ([]garmin.Activity, error) {
		return s.fetcher.Activities(ctx, 0, activitiesPageSize)
	})
	if err != nil {
		metrics.IncSyncFailure("activities")
		return 0, fmt.Errorf("jobs: fetch activities: %w", err)
	}

	// A mid-run credential failure poisons every remaining call, so the
	// first one cancels the fan-out and fails the whole run.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		sem      = make(chan struct{}, opts.Concurrency)
		synced   atomic.Int32
		authOnce sync.Once
		authErr  error
	)
	for i := 0; i < opts.Days; i++ {
		day := today.AddDays(-i)

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			if authErr != nil {
				metrics.IncSyncFailure("auth")
				return int(synced.Load()), fmt.Errorf("jobs: authentication lost mid-sync: %w", authErr)
			}
			return int(synced.Load()), ctx.Err()
		}

		wg.Add(1)
		go func(day biometrics.Date) {
			defer wg.Done()
			defer func() { <-sem }()

			err := s.syncDay(ctx, opts, profile.DisplayName, day, stepsByDay[day], activities)
			if err == nil {
				synced.Add(1)
				metrics.IncDaySynced("day", "success")
				return
			}
			if errors.Is(err, garmin.ErrUnauthorized) || errors.Is(err, garmin.ErrNoRefreshToken) {
				authOnce.Do(func() {
					authErr = err
					cancel()
				})
				return
			}
			if errors.Is(err, context.Canceled) {
				return
			}
			logger := log.WithComponentFromContext(ctx, "jobs")
			logger.Warn().
				Err(err).
				Str(log.FieldDay, string(day)).
				Msg("day skipped")
			metrics.IncDaySynced("day", "skipped")
		}(day)
	}
	wg.Wait()

	if authErr != nil {
		metrics.IncSyncFailure("auth")
		return int(synced.Load()), fmt.Errorf("jobs: authentication lost mid-sync: %w", authErr)
	}
	return int(synced.Load()), ctx.Err()
}

// syncDay fetches, journals, normalizes and stores one day. Days where the
// upstream has nothing recorded are skipped, not failed.
func (s *Syncer) syncDay(ctx context.Context, opts Options, displayName string, day biometrics.Date, stepsEntry garmin.DailyStepsEntry, activities []garmin.Activity) error {
	ctx, span := telemetry.Tracer("pulse/jobs").Start(ctx, "sync.day")
	span.SetAttributes(attribute.String(telemetry.DayKey, string(day)))
	defer span.End()

	rec := store.DayRecord{Date: day}

	hrvData, err := withRetry(ctx, opts, "hrv", func() (garmin.HRVData, error) {
		return s.fetcher.DailyHRV(ctx, day.Time())
	})
	switch {
	case err == nil:
		s.journalRaw(ctx, journal.KindHRV, day, hrvData)
		if hrv, nerr := biometrics.NormalizeHRV(hrvData); nerr == nil {
			rec.HRV = &hrv
		}
	case errors.Is(err, garmin.ErrNotFound):
		// no HRV recorded that night
	default:
		return fmt.Errorf("hrv: %w", err)
	}

	sleepData, err := withRetry(ctx, opts, "sleep", func() (garmin.SleepData, error) {
		return s.fetcher.DailySleep(ctx, displayName, day.Time())
	})
	switch {
	case err == nil:
		s.journalRaw(ctx, journal.KindSleep, day, sleepData)
		if slp, nerr := biometrics.NormalizeSleep(sleepData); nerr == nil {
			rec.Sleep = &slp
		}
	case errors.Is(err, garmin.ErrNotFound):
	default:
		return fmt.Errorf("sleep: %w", err)
	}

	if stepsEntry.CalendarDate != "" {
		s.journalRaw(ctx, journal.KindSteps, day, stepsEntry)
		if st, nerr := biometrics.NormalizeSteps(stepsEntry); nerr == nil {
			rec.Steps = &st
		}
	}

	load := biometrics.AggregateLoad(day, activities)
	if load.ActivityCount > 0 {
		rec.Load = &load
	}

	if rec.Empty() {
		return fmt.Errorf("%w: %s", biometrics.ErrNoData, day)
	}
	span.SetAttributes(attribute.String(telemetry.SignalKey, strings.Join(daySignals(rec), ",")))

	if err := s.store.UpsertDay(ctx, rec); err != nil {
		metrics.IncSyncFailure("store")
		return err
	}

	// Stale computed values for this day must not outlive the new data.
	s.cache.Delete(cache.SummaryKey(day))
	s.cache.Delete(cache.ReadinessKey(day))
	return nil
}

// daySignals lists which signals a day record carries, for span attributes.
func daySignals(rec store.DayRecord) []string {
	var signals []string
	if rec.HRV != nil {
		signals = append(signals, "hrv")
	}
	if rec.Sleep != nil {
		signals = append(signals, "sleep")
	}
	if rec.Steps != nil {
		signals = append(signals, "steps")
	}
	if rec.Load != nil {
		signals = append(signals, "load")
	}
	return signals
}

func (s *Syncer) journalRaw(ctx context.Context, kind journal.Kind, day biometrics.Date, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.journal.PutRaw(ctx, kind, day, payload); err != nil {
		logger := log.WithComponentFromContext(ctx, "jobs")
		logger.Warn().
			Err(err).
			Str(log.FieldMetric, string(kind)).
			Str(log.FieldDay, string(day)).
			Msg("journal write failed")
	}
}

// withRetry retries transient upstream failures with doubling backoff.
// Authentication and not-found errors fail immediately.
func withRetry[T any](ctx context.Context, opts Options, op string, fn func() (T, error)) (T, error) {
	var (
		out T
		err error
	)
	delay := opts.Backoff
	for attempt := 0; ; attempt++ {
		out, err = fn()
		if err == nil || !retryable(err) || attempt >= opts.Retries {
			return out, err
		}
		logger := log.WithComponentFromContext(ctx, "jobs")
		logger.Debug().
			Err(err).
			Str(log.FieldEndpoint, op).
			Int("attempt", attempt+1).
			Msg("retrying upstream call")

		wait := delay
		var apiErr *garmin.APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > wait {
			wait = apiErr.RetryAfter
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return out, ctx.Err()
		}
		delay *= 2
	}
}

func retryable(err error) bool {
	return errors.Is(err, garmin.ErrThrottled) ||
		errors.Is(err, garmin.ErrUnavailable) ||
		errors.Is(err, garmin.ErrUpstreamError) ||
		errors.Is(err, garmin.ErrTimeout) ||
		errors.Is(err, garmin.ErrCircuitOpen)
}
