package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bernardmuller/pulse/internal/biometrics"
	"github.com/bernardmuller/pulse/internal/coach"
	"github.com/bernardmuller/pulse/internal/log"
	"github.com/bernardmuller/pulse/internal/store"
)

const baselineWindowDays = 7

// runCoach prints the readiness assessment for one day.
func runCoach(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("coach", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (YAML)")
	dateFlag := fs.String("date", "today", "day to assess (YYYY-MM-DD or 'today')")
	asJSON := fs.Bool("json", false, "print the assessment as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return fatal("coach", err, "failed to load configuration")
	}
	logger := log.WithComponent("coach")

	day, err := resolveDate(*dateFlag)
	if err != nil {
		logger.Error().Err(err).Msg("invalid date")
		return 2
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return fatal("coach", err, "failed to open store")
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logger.Debug().Err(cerr).Msg("close store")
		}
	}()

	rec, err := st.GetDay(ctx, day)
	if errors.Is(err, store.ErrNotFound) && (*dateFlag == "" || *dateFlag == "today") {
		// Today often has no data until the watch syncs; fall back to the
		// newest day we have.
		if latest, lerr := st.LatestDay(ctx); lerr == nil {
			logger.Info().Str(log.FieldDay, string(latest)).Msg("no data for today yet, assessing latest synced day")
			day = latest
			rec, err = st.GetDay(ctx, day)
		}
	}
	if errors.Is(err, store.ErrNotFound) {
		logger.Error().Str(log.FieldDay, string(day)).Msg("no data for this day, run `pulse sync` first")
		return 1
	}
	if err != nil {
		return fatal("coach", err, "failed to load day")
	}

	hrvWin, err := st.HRVWindow(ctx, day, baselineWindowDays)
	if err != nil {
		return fatal("coach", err, "failed to load baseline")
	}
	sleepWin, err := st.SleepWindow(ctx, day, baselineWindowDays)
	if err != nil {
		return fatal("coach", err, "failed to load baseline")
	}
	loadWin, err := st.LoadWindow(ctx, day, baselineWindowDays)
	if err != nil {
		return fatal("coach", err, "failed to load baseline")
	}

	assessment := coach.New(cfg.Coach).Assess(rec, hrvWin, sleepWin, loadWin)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(assessment); err != nil {
			return fatal("coach", err, "failed to encode assessment")
		}
		return 0
	}

	printAssessment(assessment)
	return 0
}

func printAssessment(a coach.Assessment) {
	fmt.Printf("Readiness for %s: %s (score %d)\n", a.Date, strings.ToUpper(string(a.Grade)), a.Score)
	for _, f := range a.Factors {
		if f.Penalty > 0 {
			fmt.Printf("  - %-6s %s (-%.1f)\n", f.Signal+":", f.Detail, f.Penalty)
		} else {
			fmt.Printf("  - %-6s %s\n", f.Signal+":", f.Detail)
		}
	}
	if a.Advice != "" {
		fmt.Printf("\n%s\n", a.Advice)
	}
}

func resolveDate(s string) (biometrics.Date, error) {
	if s == "" || s == "today" {
		return biometrics.DateOf(time.Now()), nil
	}
	return biometrics.ParseDate(s)
}
