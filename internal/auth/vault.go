package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const vaultKeyContext = "harmonium-token-encryption"

var (
	// ErrVaultKeyMissing indicates no encryption key was configured.
	ErrVaultKeyMissing = errors.New("encryption key not configured")

	// ErrDecryptionFailed indicates a ciphertext could not be decrypted.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidCiphertext indicates a malformed ciphertext.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

// Vault encrypts token material with AES-256-GCM.
//
// The cipher key is derived from the configured master key with
// HKDF-SHA256 so the raw master key never encrypts data directly.
type Vault struct {
	aead cipher.AEAD
}

// NewVault creates a Vault from a base64-encoded master key of at least 16 bytes.
func NewVault(masterKey string) (*Vault, error) {
	if masterKey == "" {
		return nil, ErrVaultKeyMissing
	}

	raw, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode master key: %w", err)
	}
	if len(raw) < 16 {
		return nil, errors.New("master key must be at least 16 bytes")
	}

	derived := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, raw, nil, []byte(vaultKeyContext)), derived); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext and returns base64 ciphertext with the nonce prepended.
// Empty strings pass through unchanged.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses [Vault.Encrypt].
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}

	nonceSize := v.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", ErrInvalidCiphertext
	}

	plaintext, err := v.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}
