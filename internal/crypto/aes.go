// Package crypto seals OAuth2 access tokens at rest with AES-256-GCM.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

const prefix = "aes-gcm:"

// ErrDecrypt is returned when a sealed value cannot be opened with the configured key.
var ErrDecrypt = errors.New("decrypt failed: invalid key or corrupted data")

// TokenCipher seals and opens token strings. A nil *TokenCipher passes
// values through unchanged, so callers need not branch on whether a key
// was configured.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher builds a cipher from key. An empty key returns (nil, nil).
func NewTokenCipher(key string) (*TokenCipher, error) {
	if key == "" {
		return nil, nil
	}
	keyBytes, err := DeriveKey(key)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &TokenCipher{aead: gcm}, nil
}

// Seal returns "aes-gcm:" + base64(nonce + ciphertext + tag).
// Empty and already-sealed values are returned as-is.
func (c *TokenCipher) Seal(plaintext string) (string, error) {
	if c == nil || plaintext == "" || IsSealed(plaintext) {
		return plaintext, nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without the prefix are treated as plain text,
// which lets a store written before a key was configured keep loading.
func (c *TokenCipher) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if c == nil {
		return "", errors.New("value is encrypted but no encryption key is configured")
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil {
		return "", ErrDecrypt
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", ErrDecrypt
	}

	plaintext, err := c.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}

// IsSealed returns true if the value has the "aes-gcm:" prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, prefix)
}

// DeriveKey converts the input string to a 32-byte AES key.
// Accepts: hex-encoded (64 chars), base64-encoded (44 chars), or raw 32 bytes.
func DeriveKey(input string) ([]byte, error) {
	if len(input) == 64 {
		if b, err := hex.DecodeString(input); err == nil {
			return b, nil
		}
	}

	if len(input) == 44 && strings.HasSuffix(input, "=") {
		if b, err := base64.StdEncoding.DecodeString(input); err == nil && len(b) == 32 {
			return b, nil
		}
	}

	if len(input) == 32 {
		return []byte(input), nil
	}

	return nil, errors.New("encryption key must be 32 bytes (hex-encoded 64 chars, base64 44 chars, or raw 32 bytes)")
}
