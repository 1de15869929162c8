package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
)

// ErrEmptySecret is returned when a Sealer is built without key material.
var ErrEmptySecret = errors.New("crypto: empty secret")

// Sealer encrypts and decrypts short values with AES-256-GCM.
// The key is derived once from the configured secret.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives a 32-byte key from secret using SHA-256.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	sum := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: gcm}, nil
}

// Seal encrypts plaintext; the random nonce is prefixed to the output.
// additional binds the ciphertext to a context such as a record key.
func (s *Sealer) Seal(plaintext string, additional []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, []byte(plaintext), additional), nil
}

// Open reverses Seal.
func (s *Sealer) Open(payload, additional []byte) (string, error) {
	nonceSize := s.aead.NonceSize()
	if len(payload) < nonceSize {
		return "", io.ErrUnexpectedEOF
	}
	plain, err := s.aead.Open(nil, payload[:nonceSize], payload[nonceSize:], additional)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
