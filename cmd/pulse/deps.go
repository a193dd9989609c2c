package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bernardmuller/pulse/internal/config"
	"github.com/bernardmuller/pulse/internal/garmin"
	"github.com/bernardmuller/pulse/internal/vault"
)

// openVault opens the credential vault, prompting for the passphrase when it
// is neither configured nor in the environment.
func openVault(cfg config.AppConfig) (*vault.Vault, error) {
	passphrase := cfg.VaultPassphrase
	if passphrase == "" {
		var err error
		passphrase, err = prompt("Vault passphrase: ")
		if err != nil {
			return nil, err
		}
	}
	if passphrase == "" {
		return nil, errors.New("vault passphrase required (set PULSE_VAULT_PASSPHRASE)")
	}
	return vault.Open(cfg.DataDir, passphrase)
}

// newGarminClient builds the upstream client on top of the vault.
func newGarminClient(cfg config.AppConfig, v *vault.Vault) *garmin.Client {
	return garmin.New(garmin.ParseDomain(cfg.GarminDomain), &vaultTokenStore{vault: v}, garmin.Options{
		Timeout:          cfg.SyncTimeout,
		Rate:             cfg.UpstreamRate,
		Burst:            cfg.UpstreamBurst,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerReset:     cfg.BreakerResetTimeout,
		Consumer: garmin.Consumer{
			Key:    cfg.GarminConsumerKey,
			Secret: cfg.GarminConsumerSecret,
		},
	})
}

func prompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
