package main

import (
	"github.com/bernardmuller/pulse/internal/garmin"
	"github.com/bernardmuller/pulse/internal/vault"
)

// vaultTokenStore adapts the encrypted vault to the garmin.TokenStore
// interface so refreshed tokens survive restarts.
type vaultTokenStore struct {
	vault *vault.Vault
}

func (s *vaultTokenStore) Tokens() (garmin.TokenSet, error) {
	creds, err := s.vault.Load()
	if err != nil {
		return garmin.TokenSet{}, err
	}
	return garmin.TokenSet{
		OAuth1Token:   creds.OAuth1Token,
		OAuth1Secret:  creds.OAuth1Secret,
		AccessToken:   creds.OAuth2AccessToken,
		RefreshToken:  creds.OAuth2RefreshToken,
		AccessExpiry:  creds.AccessExpiry,
		RefreshExpiry: creds.RefreshExpiry,
	}, nil
}

func (s *vaultTokenStore) Persist(t garmin.TokenSet) error {
	creds, err := s.vault.Load()
	if err != nil {
		return err
	}
	creds.OAuth1Token = t.OAuth1Token
	creds.OAuth1Secret = t.OAuth1Secret
	creds.OAuth2AccessToken = t.AccessToken
	creds.OAuth2RefreshToken = t.RefreshToken
	creds.AccessExpiry = t.AccessExpiry
	creds.RefreshExpiry = t.RefreshExpiry
	return s.vault.Save(creds)
}
