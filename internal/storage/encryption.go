package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Key derivation parameters for passphrase-based keys
const (
	pbkdf2Iterations = 100000
	pbkdf2KeyLength  = 32
)

// ErrCiphertextTooShort is returned for input shorter than a GCM nonce.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Encryption seals connection secrets with AES-GCM. Ciphertexts are
// base64(nonce || sealed) so they fit in an environment variable.
type Encryption struct {
	aead cipher.AEAD
}

// NewEncryption accepts a 16, 24 or 32 byte AES key.
func NewEncryption(key []byte) (*Encryption, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("invalid key size: must be 16, 24, or 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Encryption{aead: aead}, nil
}

// NewEncryptionFromPassphrase derives an AES-256 key from a passphrase and
// salt with PBKDF2-HMAC-SHA256.
func NewEncryptionFromPassphrase(passphrase, salt string) (*Encryption, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("encryption passphrase cannot be empty")
	}
	if salt == "" {
		return nil, fmt.Errorf("encryption salt cannot be empty")
	}

	key := pbkdf2.Key([]byte(passphrase), []byte(salt), pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
	return NewEncryption(key)
}

// GenerateSalt returns n random bytes, base64 encoded, for ENCRYPTION_SALT.
func GenerateSalt(n int) (string, error) {
	if n < 8 {
		return "", fmt.Errorf("salt must be at least 8 bytes, got %d", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (e *Encryption) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (e *Encryption) Decrypt(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	n := e.aead.NonceSize()
	if len(raw) < n {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := e.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// EncryptString encrypts a string. The empty string encrypts to the empty string.
func (e *Encryption) EncryptString(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return e.Encrypt([]byte(plaintext))
}

// DecryptString reverses EncryptString.
func (e *Encryption) DecryptString(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	plaintext, err := e.Decrypt(encoded)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
