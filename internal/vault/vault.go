// Package vault stores Garmin Connect session tokens in an encrypted file
// under the pulse data directory. The vault never leaves the machine and a
// passphrase is required to open it.
package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/bernardmuller/pulse/internal/log"
	pfs "github.com/bernardmuller/pulse/internal/platform/fs"
)

var (
	ErrNoCredentials   = errors.New("vault: no stored credentials")
	ErrWrongPassphrase = errors.New("vault: wrong passphrase")
	ErrCorruptVault    = errors.New("vault: file is corrupt or unsupported")
)

// Credentials is the decrypted vault payload.
type Credentials struct {
	Domain             string    `json:"domain"`
	DisplayName        string    `json:"display_name,omitempty"`
	OAuth1Token        string    `json:"oauth1_token"`
	OAuth1Secret       string    `json:"oauth1_secret"`
	OAuth2AccessToken  string    `json:"oauth2_access_token"`
	OAuth2RefreshToken string    `json:"oauth2_refresh_token"`
	AccessExpiry       time.Time `json:"access_expiry"`
	RefreshExpiry      time.Time `json:"refresh_expiry"`
	SavedAt            time.Time `json:"saved_at"`
}

// Info is the non-sensitive view of the vault used by `pulse vault` and the
// readiness checker. It must never carry token material.
type Info struct {
	Present       bool      `json:"present"`
	Domain        string    `json:"domain,omitempty"`
	DisplayName   string    `json:"display_name,omitempty"`
	AccessExpiry  time.Time `json:"access_expiry,omitempty"`
	RefreshExpiry time.Time `json:"refresh_expiry,omitempty"`
	SavedAt       time.Time `json:"saved_at,omitempty"`
}

// Vault is a file-backed encrypted credential store.
type Vault struct {
	path       string
	passphrase []byte
}

const vaultRelPath = "vault/tokens.enc"

// Open confines the vault file below dataDir and returns a handle. The file
// itself is only touched by Save/Load/Delete.
func Open(dataDir, passphrase string) (*Vault, error) {
	if passphrase == "" {
		return nil, errors.New("vault: passphrase is empty")
	}
	if err := os.MkdirAll(filepath.Join(dataDir, "vault"), 0o700); err != nil {
		return nil, fmt.Errorf("vault: create dir: %w", err)
	}
	path, err := pfs.ConfineRelPath(dataDir, vaultRelPath)
	if err != nil {
		return nil, fmt.Errorf("vault: confine path: %w", err)
	}
	return &Vault{path: path, passphrase: []byte(passphrase)}, nil
}

// Save encrypts and atomically persists the credentials.
func (v *Vault) Save(creds Credentials) error {
	creds.SavedAt = time.Now().UTC()

	plain, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("vault: marshal: %w", err)
	}

	sealed, err := seal(plain, v.passphrase)
	if err != nil {
		return fmt.Errorf("vault: seal: %w", err)
	}

	logger := log.WithComponent("vault")

	pending, err := renameio.NewPendingFile(v.path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("vault: create pending file: %w", err)
	}
	defer func() {
		if cerr := pending.Cleanup(); cerr != nil {
			logger.Debug().Err(cerr).Msg("cleanup pending vault file")
		}
	}()

	if _, err := pending.Write(sealed); err != nil {
		return fmt.Errorf("vault: write: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("vault: atomically replace: %w", err)
	}

	logger.Info().
		Str("event", "vault.saved").
		Str("domain", creds.Domain).
		Time("access_expiry", creds.AccessExpiry).
		Msg("credentials saved")
	return nil
}

// Load decrypts and returns the stored credentials.
func (v *Vault) Load() (Credentials, error) {
	var creds Credentials

	sealed, err := os.ReadFile(v.path)
	if err != nil {
		if os.IsNotExist(err) {
			return creds, ErrNoCredentials
		}
		return creds, fmt.Errorf("vault: read: %w", err)
	}

	plain, err := open(sealed, v.passphrase)
	if err != nil {
		return creds, err
	}

	if err := json.Unmarshal(plain, &creds); err != nil {
		return creds, fmt.Errorf("%w: payload: %v", ErrCorruptVault, err)
	}
	return creds, nil
}

// Delete removes the vault file. Deleting an absent vault is not an error.
func (v *Vault) Delete() error {
	if err := os.Remove(v.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("vault: delete: %w", err)
	}
	logger := log.WithComponent("vault")
	logger.Info().Str("event", "vault.deleted").Msg("credentials removed")
	return nil
}

// Describe returns the non-sensitive vault summary.
func (v *Vault) Describe() Info {
	creds, err := v.Load()
	if err != nil {
		return Info{Present: false}
	}
	return Info{
		Present:       true,
		Domain:        creds.Domain,
		DisplayName:   creds.DisplayName,
		AccessExpiry:  creds.AccessExpiry,
		RefreshExpiry: creds.RefreshExpiry,
		SavedAt:       creds.SavedAt,
	}
}
