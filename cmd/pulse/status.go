package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bernardmuller/pulse/internal/log"
	"github.com/bernardmuller/pulse/internal/store"
)

// runStatus prints the last sync run and data directory state.
func runStatus(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return fatal("status", err, "failed to load configuration")
	}
	logger := log.WithComponent("status")

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return fatal("status", err, "failed to open store")
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logger.Debug().Err(cerr).Msg("close store")
		}
	}()

	fmt.Printf("pulse %s\n", version)
	fmt.Printf("Data dir: %s\n", cfg.DataDir)

	run, err := st.LastSyncRun(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		fmt.Println("Last sync: never")
	case err != nil:
		return fatal("status", err, "failed to load sync history")
	default:
		fmt.Printf("Last sync: %s (%s, %d/%d days)\n",
			run.StartedAt.Local().Format(time.RFC1123),
			run.Outcome, run.DaysSynced, run.DaysRequested)
		if run.Error != "" {
			fmt.Printf("Last error: %s\n", run.Error)
		}
	}
	return 0
}

// runVault prints the non-sensitive vault summary.
func runVault(_ context.Context, args []string) int {
	fs := flag.NewFlagSet("vault", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return fatal("vault", err, "failed to load configuration")
	}

	v, err := openVault(cfg)
	if err != nil {
		return fatal("vault", err, "failed to open vault")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v.Describe()); err != nil {
		return fatal("vault", err, "failed to encode vault info")
	}
	return 0
}
