package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bernardmuller/pulse/internal/biometrics"
	"github.com/bernardmuller/pulse/internal/cache"
	"github.com/bernardmuller/pulse/internal/garmin"
	"github.com/bernardmuller/pulse/internal/journal"
	"github.com/bernardmuller/pulse/internal/store"
)

// fakeFetcher serves canned data for every requested day.
type fakeFetcher struct {
	hrvErr     error
	sleepErr   error
	profileErr error
	hrvCalls   atomic.Int32
	failFirst  int32 // first N HRV calls fail with throttle
	emptyDays  map[string]bool
	block      chan struct{} // when set, Profile blocks until closed
}

func (f *fakeFetcher) Profile(ctx context.Context) (garmin.SocialProfile, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return garmin.SocialProfile{}, ctx.Err()
		}
	}
	if f.profileErr != nil {
		return garmin.SocialProfile{}, f.profileErr
	}
	return garmin.SocialProfile{DisplayName: "athlete", FullName: "Test Athlete"}, nil
}

func (f *fakeFetcher) DailyHRV(ctx context.Context, date time.Time) (garmin.HRVData, error) {
	n := f.hrvCalls.Add(1)
	if n <= f.failFirst {
		return garmin.HRVData{}, garmin.ErrThrottled
	}
	if f.hrvErr != nil {
		return garmin.HRVData{}, f.hrvErr
	}
	day := date.Format("2006-01-02")
	if f.emptyDays[day] {
		return garmin.HRVData{}, garmin.ErrNotFound
	}
	return garmin.HRVData{HRVSummary: garmin.HRVSummary{
		CalendarDate: day, WeeklyAvg: 52, LastNightAvg: 48, LastNight5MinHigh: 61, Status: "BALANCED",
	}}, nil
}

func (f *fakeFetcher) DailySleep(ctx context.Context, displayName string, date time.Time) (garmin.SleepData, error) {
	if f.sleepErr != nil {
		return garmin.SleepData{}, f.sleepErr
	}
	day := date.Format("2006-01-02")
	if f.emptyDays[day] {
		return garmin.SleepData{}, garmin.ErrNotFound
	}
	return garmin.SleepData{DailySleepDTO: garmin.DailySleepDTO{
		CalendarDate: day, SleepTimeSeconds: 27360, DeepSleepSeconds: 5400,
	}}, nil
}

func (f *fakeFetcher) DailySteps(ctx context.Context, start, end time.Time) ([]garmin.DailyStepsEntry, error) {
	var out []garmin.DailyStepsEntry
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		day := d.Format("2006-01-02")
		if f.emptyDays[day] {
			continue
		}
		out = append(out, garmin.DailyStepsEntry{CalendarDate: day, TotalSteps: 8000, StepGoal: 10000})
	}
	return out, nil
}

func (f *fakeFetcher) Activities(ctx context.Context, start, limit int) ([]garmin.Activity, error) {
	return []garmin.Activity{{
		ActivityID:      1,
		ActivityName:    "morning run",
		StartTimeLocal:  time.Now().Format("2006-01-02") + " 06:30:00",
		DurationSeconds: 3600,
		TrainingLoad:    120,
	}}, nil
}

func newTestSyncer(t *testing.T, f Fetcher) (*Syncer, *store.Store, *journal.Journal) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jr, err := journal.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = jr.Close() })

	return NewSyncer(f, st, jr, cache.NewMemory(0)), st, jr
}

func TestSyncSuccess(t *testing.T) {
	f := &fakeFetcher{}
	s, st, jr := newTestSyncer(t, f)
	ctx := context.Background()

	status, err := s.Run(ctx, Options{Days: 3, Concurrency: 2, Retries: 0, Backoff: time.Millisecond})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status.Outcome != "success" || status.Synced != 3 || status.Skipped != 0 {
		t.Fatalf("status = %+v", status)
	}

	today := biometrics.DateOf(time.Now())
	rec, err := st.GetDay(ctx, today)
	if err != nil {
		t.Fatalf("GetDay(today): %v", err)
	}
	if rec.HRV == nil || rec.Sleep == nil || rec.Steps == nil {
		t.Errorf("incomplete day: %+v", rec)
	}
	if rec.Load == nil || rec.Load.TrainingLoad != 120 {
		t.Errorf("load not aggregated: %+v", rec.Load)
	}

	// Raw payloads are journaled for replay.
	if _, err := jr.GetRaw(ctx, journal.KindHRV, today); err != nil {
		t.Errorf("raw hrv missing: %v", err)
	}

	run, err := st.LastSyncRun(ctx)
	if err != nil {
		t.Fatalf("LastSyncRun: %v", err)
	}
	if run.ID != status.SyncID || run.Outcome != "success" || run.DaysSynced != 3 {
		t.Errorf("sync run = %+v", run)
	}

	seen, err := jr.SyncSeen(ctx, status.SyncID)
	if err != nil || !seen {
		t.Errorf("sync marker missing: %v %v", seen, err)
	}
}

func TestSyncPartialWhenDaysEmpty(t *testing.T) {
	yesterday := biometrics.DateOf(time.Now()).AddDays(-1)
	f := &fakeFetcher{emptyDays: map[string]bool{string(yesterday): true}}
	s, _, _ := newTestSyncer(t, f)

	status, err := s.Run(context.Background(), Options{Days: 3, Concurrency: 1, Backoff: time.Millisecond})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status.Outcome != "partial" || status.Synced != 2 || status.Skipped != 1 {
		t.Fatalf("status = %+v", status)
	}
}

func TestSyncRetriesThrottling(t *testing.T) {
	f := &fakeFetcher{failFirst: 2}
	s, _, _ := newTestSyncer(t, f)

	status, err := s.Run(context.Background(), Options{Days: 1, Concurrency: 1, Retries: 3, Backoff: time.Millisecond})
	if err != nil {
		t.Fatalf("Run after retries: %v", err)
	}
	if status.Outcome != "success" {
		t.Fatalf("status = %+v", status)
	}
	if calls := f.hrvCalls.Load(); calls != 3 {
		t.Errorf("hrv calls = %d, want 3 (2 throttled + 1 ok)", calls)
	}
}

func TestSyncFailsFastOnAuthError(t *testing.T) {
	f := &fakeFetcher{profileErr: garmin.ErrUnauthorized}
	s, st, _ := newTestSyncer(t, f)

	status, err := s.Run(context.Background(), Options{Days: 2, Concurrency: 1, Retries: 3, Backoff: time.Millisecond})
	if !errors.Is(err, garmin.ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
	if status.Outcome != "failure" {
		t.Errorf("outcome = %s", status.Outcome)
	}

	run, rerr := st.LastSyncRun(context.Background())
	if rerr != nil {
		t.Fatal(rerr)
	}
	if run.Outcome != "failure" || run.Error == "" {
		t.Errorf("sync run = %+v", run)
	}
}

func TestSyncFailsWhenAuthLostMidRun(t *testing.T) {
	// Profile succeeds, then the session dies: every per-day HRV call
	// comes back unauthorized. That must fail the run, not degrade it to
	// a partial result.
	f := &fakeFetcher{hrvErr: garmin.ErrUnauthorized}
	s, st, _ := newTestSyncer(t, f)

	status, err := s.Run(context.Background(), Options{Days: 2, Concurrency: 2, Retries: 0, Backoff: time.Millisecond})
	if !errors.Is(err, garmin.ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
	if status.Outcome != "failure" {
		t.Errorf("outcome = %s, want failure", status.Outcome)
	}
	if status.Synced != 0 {
		t.Errorf("synced = %d, want 0", status.Synced)
	}

	run, rerr := st.LastSyncRun(context.Background())
	if rerr != nil {
		t.Fatal(rerr)
	}
	if run.Outcome != "failure" || run.Error == "" {
		t.Errorf("sync run = %+v", run)
	}
}

func TestSyncRejectsConcurrentRun(t *testing.T) {
	f := &fakeFetcher{block: make(chan struct{})}
	s, _, _ := newTestSyncer(t, f)

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background(), Options{Days: 1, Backoff: time.Millisecond})
		done <- err
	}()

	// Wait for the first run to take the slot.
	for !s.Running() {
		time.Sleep(time.Millisecond)
	}

	_, err := s.Run(context.Background(), Options{Days: 1, Backoff: time.Millisecond})
	if !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("got %v, want ErrSyncInProgress", err)
	}

	close(f.block)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
	if s.Running() {
		t.Error("slot not released")
	}
}

func TestSyncConcurrencyClamped(t *testing.T) {
	f := &fakeFetcher{}
	s, _, _ := newTestSyncer(t, f)

	// Absurd concurrency must not panic or spawn unbounded workers.
	status, err := s.Run(context.Background(), Options{Days: 2, Concurrency: 100, Backoff: time.Millisecond})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status.Outcome != "success" {
		t.Errorf("status = %+v", status)
	}
}

func TestWithRetryGivesUpOnPermanentError(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), Options{Retries: 5, Backoff: time.Millisecond}, "op", func() (int, error) {
		calls++
		return 0, fmt.Errorf("wrapped: %w", garmin.ErrUnauthorized)
	})
	if !errors.Is(err, garmin.ErrUnauthorized) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, permanent errors must not retry", calls)
	}
}
