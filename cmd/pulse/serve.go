package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bernardmuller/pulse/internal/api"
	"github.com/bernardmuller/pulse/internal/cache"
	"github.com/bernardmuller/pulse/internal/config"
	"github.com/bernardmuller/pulse/internal/health"
	"github.com/bernardmuller/pulse/internal/jobs"
	"github.com/bernardmuller/pulse/internal/journal"
	"github.com/bernardmuller/pulse/internal/log"
	"github.com/bernardmuller/pulse/internal/store"
	"github.com/bernardmuller/pulse/internal/telemetry"
)

const (
	shutdownTimeout   = 10 * time.Second
	journalGCInterval = time.Hour
)

// runServe starts the pulse API server and its background workers.
func runServe(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, effectivePath, err := loadConfig(*configPath)
	if err != nil {
		return fatal("serve", err, "failed to load configuration")
	}
	logger := log.WithComponent("serve")

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.ListenAddr).
		Str(log.FieldDataDir, cfg.DataDir).
		Msg("starting pulse")
	if cfg.APIToken == "" {
		logger.Warn().Msg("API token not configured; the v1 API is unauthenticated. Set PULSE_API_TOKEN.")
	}

	// Tracing first so every component below can create spans.
	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.OTelEnabled,
		ServiceName:    "pulse",
		ServiceVersion: version,
		ExporterType:   cfg.OTelExporter,
		Endpoint:       cfg.OTelEndpoint,
		SamplingRate:   cfg.OTelSampling,
	})
	if err != nil {
		return fatal("serve", err, "failed to initialize tracing")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := provider.Shutdown(sctx); serr != nil {
			logger.Warn().Err(serr).Msg("tracer shutdown failed")
		}
	}()

	v, err := openVault(cfg)
	if err != nil {
		return fatal("serve", err, "failed to open vault")
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return fatal("serve", err, "failed to open store")
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("close store")
		}
	}()

	jr, err := journal.Open(cfg.DataDir)
	if err != nil {
		return fatal("serve", err, "failed to open journal")
	}
	defer func() {
		if cerr := jr.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("close journal")
		}
	}()

	c := buildCache(cfg)
	client := newGarminClient(cfg, v)
	syncer := jobs.NewSyncer(client, st, jr, c)

	hm := health.NewManager(version)
	hm.Register(health.NewPingChecker("database", st.Ping))
	hm.Register(health.NewCredentialsChecker(func() bool { return v.Describe().Present }))
	hm.Register(health.NewLastSyncChecker(lastSyncTime(st), 0))
	hm.Register(health.NewBreakerChecker(client.BreakerState))
	if rc, ok := c.(*cache.RedisCache); ok {
		hm.Register(health.NewPingChecker("redis", rc.HealthCheck))
	}

	holder := config.NewHolder(cfg, config.NewLoader(effectivePath, version), effectivePath)

	srv := api.New(api.Deps{
		Config:  holder,
		Store:   st,
		Cache:   c,
		Syncer:  syncer,
		Health:  hm,
		Version: version,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("event", "http.listen").Str("addr", cfg.ListenAddr).Msg("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Str("event", "shutdown").Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(sctx)
	})

	g.Go(func() error {
		holder.Watch(ctx)
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(journalGCInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := jr.RunGC(); err != nil {
					logger.Warn().Err(err).Msg("journal GC failed")
				}
			}
		}
	})

	if cfg.InitialSync {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, syncRunTimeout)
			defer cancel()
			logger.Info().Msg("performing initial sync on startup")
			if _, err := syncer.Run(sctx, jobs.Options{
				Days:        cfg.SyncDays,
				Concurrency: cfg.SyncConcurrency,
				Retries:     cfg.SyncRetries,
			}); err != nil {
				// The server stays up; data will arrive on the next trigger.
				logger.Error().Err(err).Msg("initial sync failed")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fatal("serve", err, "server exited with error")
	}
	logger.Info().Str("event", "shutdown.done").Msg("pulse stopped")
	return 0
}

// buildCache picks Redis when configured and falls back to the in-process
// cache when Redis is absent or unreachable.
func buildCache(cfg config.AppConfig) cache.Cache {
	if cfg.RedisAddr == "" {
		return cache.NewMemory(time.Minute)
	}
	logger := log.WithComponent("cache")
	rc, err := cache.NewRedis(cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, using in-process cache")
		return cache.NewMemory(time.Minute)
	}
	return rc
}

// lastSyncTime adapts the sync history to the staleness checker.
func lastSyncTime(st *store.Store) func(ctx context.Context) (time.Time, error) {
	return func(ctx context.Context) (time.Time, error) {
		run, err := st.LastSyncRun(ctx)
		if err != nil {
			return time.Time{}, err
		}
		if run.FinishedAt != nil {
			return *run.FinishedAt, nil
		}
		return run.StartedAt, nil
	}
}
