package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/bernardmuller/pulse/internal/cache"
	"github.com/bernardmuller/pulse/internal/jobs"
	"github.com/bernardmuller/pulse/internal/journal"
	"github.com/bernardmuller/pulse/internal/log"
	"github.com/bernardmuller/pulse/internal/store"
)

const syncRunTimeout = 10 * time.Minute

// runSync performs one foreground sync and exits.
func runSync(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (YAML)")
	days := fs.Int("days", 0, "days back to sync (defaults to configured window)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return fatal("sync", err, "failed to load configuration")
	}
	logger := log.WithComponent("sync")

	v, err := openVault(cfg)
	if err != nil {
		return fatal("sync", err, "failed to open vault")
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return fatal("sync", err, "failed to open store")
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logger.Debug().Err(cerr).Msg("close store")
		}
	}()

	jr, err := journal.Open(cfg.DataDir)
	if err != nil {
		return fatal("sync", err, "failed to open journal")
	}
	defer func() {
		if cerr := jr.Close(); cerr != nil {
			logger.Debug().Err(cerr).Msg("close journal")
		}
	}()

	syncer := jobs.NewSyncer(newGarminClient(cfg, v), st, jr, cache.NewNoOp())

	opts := jobs.Options{
		Days:        cfg.SyncDays,
		Concurrency: cfg.SyncConcurrency,
		Retries:     cfg.SyncRetries,
	}
	if *days > 0 {
		opts.Days = *days
	}

	ctx, cancel := context.WithTimeout(ctx, syncRunTimeout)
	defer cancel()

	status, err := syncer.Run(ctx, opts)
	if err != nil {
		return fatal("sync", err, "sync failed")
	}

	fmt.Printf("Sync %s: %d/%d days synced (%d skipped, no data) in %s\n",
		status.Outcome, status.Synced, status.Requested, status.Skipped,
		status.FinishedAt.Sub(status.StartedAt).Round(time.Millisecond))
	if status.Outcome != "success" {
		return 1
	}
	return 0
}
