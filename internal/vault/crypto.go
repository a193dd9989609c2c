package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// File layout: magic || version || salt || nonce || ciphertext.
// The GCM auth tag doubles as the integrity and passphrase check.
var magic = []byte("PULSEV")

const (
	layoutVersion = 0x01
	saltSize      = 16
	nonceSize     = 12
	keySize       = 32
	kdfIterations = 210_000
)

func deriveKey(passphrase, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, kdfIterations, keySize, sha256.New)
}

func seal(plain, passphrase []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("salt: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(magic)+1+saltSize+nonceSize+len(plain)+gcm.Overhead())
	out = append(out, magic...)
	out = append(out, layoutVersion)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plain, nil)
	return out, nil
}

func open(sealed, passphrase []byte) ([]byte, error) {
	header := len(magic) + 1 + saltSize + nonceSize
	if len(sealed) < header {
		return nil, fmt.Errorf("%w: truncated", ErrCorruptVault)
	}
	if !bytes.HasPrefix(sealed, magic) {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptVault)
	}
	if sealed[len(magic)] != layoutVersion {
		return nil, fmt.Errorf("%w: unsupported layout version %d", ErrCorruptVault, sealed[len(magic)])
	}

	salt := sealed[len(magic)+1 : len(magic)+1+saltSize]
	nonce := sealed[len(magic)+1+saltSize : header]
	ciphertext := sealed[header:]

	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		// GCM cannot distinguish a wrong key from tampering; a wrong
		// passphrase is by far the common case.
		return nil, ErrWrongPassphrase
	}
	return plain, nil
}
