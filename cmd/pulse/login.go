package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bernardmuller/pulse/internal/garmin"
	"github.com/bernardmuller/pulse/internal/log"
	"github.com/bernardmuller/pulse/internal/vault"
)

const loginTimeout = 2 * time.Minute

// runLogin performs the SSO login and stores the resulting token set in the
// vault. The password is taken from PULSE_GARMIN_PASSWORD or prompted.
func runLogin(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (YAML)")
	email := fs.String("email", "", "Garmin Connect account email")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return fatal("login", err, "failed to load configuration")
	}
	logger := log.WithComponent("login")

	account := *email
	if account == "" {
		account = cfg.GarminEmail
	}
	if account == "" {
		account, err = prompt("Garmin email: ")
		if err != nil {
			return fatal("login", err, "failed to read email")
		}
	}

	password := os.Getenv("PULSE_GARMIN_PASSWORD")
	if password == "" {
		password, err = prompt("Garmin password: ")
		if err != nil {
			return fatal("login", err, "failed to read password")
		}
	}
	if account == "" || password == "" {
		logger.Error().Msg("email and password are required")
		return 1
	}

	v, err := openVault(cfg)
	if err != nil {
		return fatal("login", err, "failed to open vault")
	}

	domain := garmin.ParseDomain(cfg.GarminDomain)
	auth, err := garmin.NewAuthenticator(domain, garmin.Consumer{
		Key:    cfg.GarminConsumerKey,
		Secret: cfg.GarminConsumerSecret,
	}, loginTimeout)
	if err != nil {
		return fatal("login", err, "failed to build authenticator")
	}

	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	logger.Info().Str(log.FieldEvent, "login.start").Str(log.FieldDomain, string(domain)).Msg("logging in to Garmin Connect")
	tokens, err := auth.Login(ctx, account, password)
	if errors.Is(err, garmin.ErrMFARequired) {
		logger.Error().Msg("account requires multi-factor auth, which pulse does not support yet")
		return 1
	}
	if err != nil {
		return fatal("login", err, "login failed")
	}

	creds := vault.Credentials{
		Domain:             string(domain),
		OAuth1Token:        tokens.OAuth1Token,
		OAuth1Secret:       tokens.OAuth1Secret,
		OAuth2AccessToken:  tokens.AccessToken,
		OAuth2RefreshToken: tokens.RefreshToken,
		AccessExpiry:       tokens.AccessExpiry,
		RefreshExpiry:      tokens.RefreshExpiry,
	}
	if err := v.Save(creds); err != nil {
		return fatal("login", err, "failed to save credentials")
	}

	// Best effort: resolve the display name now so sleep fetches work
	// without an extra profile round trip later.
	client := newGarminClient(cfg, v)
	if profile, err := client.Profile(ctx); err != nil {
		logger.Warn().Err(err).Msg("could not fetch profile, display name left empty")
	} else {
		creds.DisplayName = profile.DisplayName
		if err := v.Save(creds); err != nil {
			logger.Warn().Err(err).Msg("could not persist display name")
		}
	}

	logger.Info().Str("event", "login.done").Msg("credentials stored")
	fmt.Println("Logged in. Credentials stored in the encrypted vault.")
	return 0
}

// runLogout removes the stored credentials.
func runLogout(_ context.Context, args []string) int {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return fatal("logout", err, "failed to load configuration")
	}

	v, err := openVault(cfg)
	if err != nil {
		return fatal("logout", err, "failed to open vault")
	}
	if err := v.Delete(); err != nil {
		return fatal("logout", err, "failed to delete credentials")
	}
	fmt.Println("Logged out. Stored credentials removed.")
	return 0
}
