// Command pulse is a personal health coach for Garmin Connect data. It logs
// in to the wearable account, syncs daily biometrics into a local store and
// turns them into readiness advice, either on the command line or through a
// small web API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/bernardmuller/pulse/internal/config"
	"github.com/bernardmuller/pulse/internal/log"
	ver "github.com/bernardmuller/pulse/internal/version"
)

var (
	version   = ver.Version
	commit    = ver.Commit
	buildDate = ver.Date
)

const usageText = `pulse - personal health coach for Garmin Connect

Usage:
  pulse <command> [flags]

Commands:
  login    store wearable credentials in the encrypted vault
  logout   remove stored credentials
  sync     fetch and normalize recent biometrics
  coach    print the readiness assessment for a day
  status   show the last sync run and vault state
  vault    describe the credential vault (no secrets)
  serve    run the web API server
  version  print version and exit

Run 'pulse <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "version", "-version", "--version":
		fmt.Printf("pulse %s (commit: %s, built: %s)\n", version, commit, buildDate)
		return
	case "help", "-h", "--help":
		fmt.Print(usageText)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var code int
	switch cmd {
	case "login":
		code = runLogin(ctx, args)
	case "logout":
		code = runLogout(ctx, args)
	case "sync":
		code = runSync(ctx, args)
	case "coach":
		code = runCoach(ctx, args)
	case "status":
		code = runStatus(ctx, args)
	case "vault":
		code = runVault(ctx, args)
	case "serve":
		code = runServe(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "pulse: unknown command %q\n\n", cmd)
		fmt.Fprint(os.Stderr, usageText)
		code = 2
	}
	stop()
	os.Exit(code)
}

// loadConfig resolves the effective config file (explicit flag beats
// ${PULSE_DATA}/config.yaml), loads it with ENV precedence and configures the
// global logger.
func loadConfig(configPath string) (config.AppConfig, string, error) {
	effective := strings.TrimSpace(configPath)
	if effective == "" {
		dataDir := strings.TrimSpace(config.ParseString("PULSE_DATA", "/var/lib/pulse"))
		auto := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(auto); err == nil {
			effective = auto
		}
	}

	loader := config.NewLoader(effective, version)
	cfg, err := loader.Load()
	if err != nil {
		log.Configure(log.Config{Level: "info", Service: "pulse", Version: version})
		return cfg, effective, err
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "pulse", Version: version})
	return cfg, effective, nil
}

func fatal(component string, err error, msg string) int {
	logger := log.WithComponent(component)
	logger.Error().Err(err).Msg(msg)
	return 1
}
