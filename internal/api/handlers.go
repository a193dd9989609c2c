package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/bernardmuller/pulse/internal/biometrics"
	"github.com/bernardmuller/pulse/internal/cache"
	"github.com/bernardmuller/pulse/internal/coach"
	"github.com/bernardmuller/pulse/internal/jobs"
	"github.com/bernardmuller/pulse/internal/log"
	"github.com/bernardmuller/pulse/internal/store"
	"github.com/bernardmuller/pulse/internal/telemetry"
)

const (
	baselineWindowDays = 7
	syncTimeout        = 10 * time.Minute
)

type statusResponse struct {
	Version     string         `json:"version"`
	SyncRunning bool           `json:"syncRunning"`
	LastSync    *store.SyncRun `json:"lastSync,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:     s.deps.Version,
		SyncRunning: s.deps.Syncer.Running(),
	}
	run, err := s.deps.Store.LastSyncRun(r.Context())
	switch {
	case err == nil:
		resp.LastSync = &run
	case !errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusInternalServerError, "failed to load sync history")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	day, ok := dateParam(w, r)
	if !ok {
		return
	}

	// The Redis backend returns decoded JSON rather than the original
	// struct; both serialize identically, so serve whatever is cached.
	if cached, hit := s.deps.Cache.Get(cache.SummaryKey(day)); hit {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	rec, err := s.deps.Store.GetDay(r.Context(), day)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no data for "+string(day))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load day")
		return
	}

	s.deps.Cache.Set(cache.SummaryKey(day), rec, s.deps.Config.Current().CacheTTL)
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	day, ok := dateParam(w, r)
	if !ok {
		return
	}

	if cached, hit := s.deps.Cache.Get(cache.ReadinessKey(day)); hit {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	rec, err := s.deps.Store.GetDay(r.Context(), day)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no data for "+string(day))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load day")
		return
	}

	hrvWin, err := s.deps.Store.HRVWindow(r.Context(), day, baselineWindowDays)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load baseline")
		return
	}
	sleepWin, err := s.deps.Store.SleepWindow(r.Context(), day, baselineWindowDays)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load baseline")
		return
	}
	loadWin, err := s.deps.Store.LoadWindow(r.Context(), day, baselineWindowDays)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load baseline")
		return
	}

	engine := coach.New(s.deps.Config.Current().Coach)
	assessment := engine.Assess(rec, hrvWin, sleepWin, loadWin)
	trace.SpanFromContext(r.Context()).SetAttributes(
		telemetry.AssessmentAttributes(string(day), string(assessment.Grade), assessment.Score)...)

	s.deps.Cache.Set(cache.ReadinessKey(day), assessment, s.deps.Config.Current().CacheTTL)
	writeJSON(w, http.StatusOK, assessment)
}

type syncRequest struct {
	Days int `json:"days"`
}

type syncAccepted struct {
	Status string `json:"status"`
	Days   int    `json:"days"`
}

// handleSync starts a background sync. 202 means accepted, 409 means one is
// already running.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.deps.Syncer.Running() {
		writeError(w, http.StatusConflict, "sync already in progress")
		return
	}

	cfg := s.deps.Config.Current()
	req := syncRequest{Days: cfg.SyncDays}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Days < 1 || req.Days > 365 {
		writeError(w, http.StatusBadRequest, "days must be between 1 and 365")
		return
	}

	// The sync outlives the request; it gets its own context.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()
		_, err := s.deps.Syncer.Run(ctx, jobs.Options{
			Days:        req.Days,
			Concurrency: cfg.SyncConcurrency,
			Retries:     cfg.SyncRetries,
		})
		if err != nil && !errors.Is(err, jobs.ErrSyncInProgress) {
			logger := log.WithComponent("api")
			logger.Error().Err(err).Msg("background sync failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, syncAccepted{Status: "accepted", Days: req.Days})
}

func dateParam(w http.ResponseWriter, r *http.Request) (biometrics.Date, bool) {
	raw := chi.URLParam(r, "date")
	if raw == "today" {
		return biometrics.DateOf(time.Now()), true
	}
	day, err := biometrics.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD or 'today'")
		return "", false
	}
	return day, true
}
