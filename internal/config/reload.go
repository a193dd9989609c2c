package config

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"github.com/bernardmuller/pulse/internal/log"
)

// Holder keeps the live configuration and supports hot reload of the
// reloadable subset (coach thresholds, log level). Immutable fields such as
// DataDir and ListenAddr are never swapped at runtime; a change there is
// logged and requires a restart.
type Holder struct {
	mu     sync.RWMutex
	cfg    AppConfig
	loader *Loader
	path   string
}

// NewHolder wraps an already loaded configuration.
func NewHolder(cfg AppConfig, loader *Loader, path string) *Holder {
	return &Holder{cfg: cfg, loader: loader, path: path}
}

// Current returns a copy of the live configuration.
func (h *Holder) Current() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Reload re-runs the loader and applies the reloadable fields.
func (h *Holder) Reload() error {
	fresh, err := h.loader.Load()
	if err != nil {
		return err
	}

	logger := log.WithComponent("config")

	h.mu.Lock()
	defer h.mu.Unlock()

	if fresh.DataDir != h.cfg.DataDir || fresh.ListenAddr != h.cfg.ListenAddr {
		logger.Warn().
			Str("event", "config.reload.immutable").
			Msg("data dir or listen address changed on disk; restart required to apply")
	}

	h.cfg.Coach = fresh.Coach
	h.cfg.LogLevel = fresh.LogLevel
	h.cfg.SyncDays = fresh.SyncDays
	h.cfg.SyncRetries = fresh.SyncRetries
	h.cfg.CacheTTL = fresh.CacheTTL

	logger.Info().
		Str("event", "config.reload.applied").
		Str("log_level", h.cfg.LogLevel).
		Msg("reloadable configuration applied")
	return nil
}

// Watch reloads on SIGHUP and on config file changes until ctx is done.
// Without a config file path there is nothing to watch, so only SIGHUP
// triggers a reload.
func (h *Holder) Watch(ctx context.Context) {
	logger := log.WithComponent("config")

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var events chan fsnotify.Event
	if h.path != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			logger.Warn().Err(err).Msg("config watcher unavailable; SIGHUP reload only")
		} else {
			defer func() {
				if cerr := watcher.Close(); cerr != nil {
					logger.Debug().Err(cerr).Msg("close config watcher")
				}
			}()
			if err := watcher.Add(h.path); err != nil {
				logger.Warn().Err(err).Str("path", h.path).Msg("cannot watch config file")
			} else {
				events = watcher.Events
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			logger.Info().Str("event", "config.reload.sighup").Msg("SIGHUP received")
			if err := h.Reload(); err != nil {
				logger.Error().Err(err).Msg("config reload failed; keeping previous configuration")
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logger.Info().Str("event", "config.reload.file").Str("path", ev.Name).Msg("config file changed")
			if err := h.Reload(); err != nil {
				logger.Error().Err(err).Msg("config reload failed; keeping previous configuration")
			}
		}
	}
}
