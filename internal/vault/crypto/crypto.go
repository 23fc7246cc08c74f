// Package crypto seals credential secret material for storage at rest.
// Secrets are decrypted transiently in memory and never logged.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"concilia/pkg/platform/sentinel"
)

// Sealer encrypts and decrypts secrets with a process-wide key.
type Sealer struct {
	key []byte
}

// NewSealer builds a Sealer from a base64-encoded 32-byte key.
func NewSealer(encodedKey string) (*Sealer, error) {
	key, err := base64.RawURLEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decode seal key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Sealer{key: key}, nil
}

// GenerateKey creates a fresh base64-encoded seal key. Used by operator
// tooling and tests.
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate seal key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(key), nil
}

// Seal encrypts plaintext and returns a base64 envelope (nonce || box).
func (s *Sealer) Seal(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("build aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	box := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(box), nil
}

// Open decrypts a sealed envelope. Tampered or foreign-key material returns
// sentinel.ErrDecryptFailed so callers can skip the record without marking
// it processed.
func (s *Sealer) Open(sealed string) (string, error) {
	box, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: bad envelope encoding", sentinel.ErrDecryptFailed)
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("build aead: %w", err)
	}
	if len(box) < aead.NonceSize() {
		return "", fmt.Errorf("%w: envelope too short", sentinel.ErrDecryptFailed)
	}
	nonce, ciphertext := box[:aead.NonceSize()], box[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", sentinel.ErrDecryptFailed, err)
	}
	return string(plaintext), nil
}
