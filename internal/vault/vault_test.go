package vault

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCreds() Credentials {
	return Credentials{
		Domain:             "garmin.com",
		DisplayName:        "Bernard",
		OAuth1Token:        "oauth1-token",
		OAuth1Secret:       "oauth1-secret",
		OAuth2AccessToken:  "access-token",
		OAuth2RefreshToken: "refresh-token",
		AccessExpiry:       time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		RefreshExpiry:      time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second),
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	v, err := Open(t.TempDir(), "correct horse battery staple")
	require.NoError(t, err)

	want := testCreds()
	require.NoError(t, v.Save(want))

	got, err := v.Load()
	require.NoError(t, err)

	assert.Equal(t, want.OAuth1Token, got.OAuth1Token)
	assert.Equal(t, want.OAuth2AccessToken, got.OAuth2AccessToken)
	assert.Equal(t, want.OAuth2RefreshToken, got.OAuth2RefreshToken)
	assert.Equal(t, want.Domain, got.Domain)
	assert.False(t, got.SavedAt.IsZero())
}

func TestLoadMissingVault(t *testing.T) {
	v, err := Open(t.TempDir(), "pw")
	require.NoError(t, err)

	_, err = v.Load()
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestWrongPassphrase(t *testing.T) {
	dir := t.TempDir()

	v1, err := Open(dir, "right")
	require.NoError(t, err)
	require.NoError(t, v1.Save(testCreds()))

	v2, err := Open(dir, "wrong")
	require.NoError(t, err)
	_, err = v2.Load()
	assert.ErrorIs(t, err, ErrWrongPassphrase)
}

func TestCorruptVault(t *testing.T) {
	dir := t.TempDir()

	v, err := Open(dir, "pw")
	require.NoError(t, err)
	require.NoError(t, v.Save(testCreds()))

	path := filepath.Join(dir, "vault", "tokens.enc")

	t.Run("truncated", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("PULSEV"), 0o600))
		_, err := v.Load()
		assert.ErrorIs(t, err, ErrCorruptVault)
	})

	t.Run("bad magic", func(t *testing.T) {
		data := make([]byte, 128)
		require.NoError(t, os.WriteFile(path, data, 0o600))
		_, err := v.Load()
		assert.ErrorIs(t, err, ErrCorruptVault)
	})
}

func TestSaveOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	v, err := Open(dir, "pw")
	require.NoError(t, err)

	first := testCreds()
	require.NoError(t, v.Save(first))

	second := first
	second.OAuth2AccessToken = "rotated"
	require.NoError(t, v.Save(second))

	got, err := v.Load()
	require.NoError(t, err)
	assert.Equal(t, "rotated", got.OAuth2AccessToken)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Join(dir, "vault"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	info, err := entries[0].Info()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestDescribeNeverLeaksTokens(t *testing.T) {
	dir := t.TempDir()
	v, err := Open(dir, "pw")
	require.NoError(t, err)

	assert.False(t, v.Describe().Present)

	require.NoError(t, v.Save(testCreds()))
	info := v.Describe()
	assert.True(t, info.Present)
	assert.Equal(t, "garmin.com", info.Domain)
	assert.False(t, info.AccessExpiry.IsZero())
}

func TestDeleteIdempotent(t *testing.T) {
	v, err := Open(t.TempDir(), "pw")
	require.NoError(t, err)

	require.NoError(t, v.Delete())
	require.NoError(t, v.Save(testCreds()))
	require.NoError(t, v.Delete())

	_, err = v.Load()
	assert.ErrorIs(t, err, ErrNoCredentials)
}
