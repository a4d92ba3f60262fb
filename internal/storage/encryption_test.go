package storage

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestEncryption_RoundTrip(t *testing.T) {
	enc, err := NewEncryption(testKey())
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt([]byte("warehouse-password"))
	require.NoError(t, err)

	plaintext, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "warehouse-password", string(plaintext))
}

func TestEncryption_FreshNoncePerCall(t *testing.T) {
	enc, err := NewEncryption(testKey())
	require.NoError(t, err)

	a, err := enc.EncryptString("same")
	require.NoError(t, err)
	b, err := enc.EncryptString("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEncryptionFromPassphrase(t *testing.T) {
	a, err := NewEncryptionFromPassphrase("correct horse", "nlq-eval")
	require.NoError(t, err)
	b, err := NewEncryptionFromPassphrase("correct horse", "nlq-eval")
	require.NoError(t, err)

	ciphertext, err := a.EncryptString("warehouse-password")
	require.NoError(t, err)

	plaintext, err := b.DecryptString(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "warehouse-password", plaintext)

	other, err := NewEncryptionFromPassphrase("correct horse", "other-salt")
	require.NoError(t, err)
	_, err = other.DecryptString(ciphertext)
	assert.Error(t, err)
}

func TestEncryptionFromPassphrase_Empty(t *testing.T) {
	_, err := NewEncryptionFromPassphrase("", "salt")
	assert.Error(t, err)
	_, err = NewEncryptionFromPassphrase("pass", "")
	assert.Error(t, err)
}

func TestEncryption_InvalidKeySize(t *testing.T) {
	_, err := NewEncryption([]byte("too-short"))
	assert.Error(t, err)
}

func TestEncryption_BadInput(t *testing.T) {
	enc, err := NewEncryption(testKey())
	require.NoError(t, err)

	_, err = enc.Decrypt("not base64!")
	assert.Error(t, err)

	_, err = enc.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestEncryption_EmptyString(t *testing.T) {
	enc, err := NewEncryption(testKey())
	require.NoError(t, err)

	ciphertext, err := enc.EncryptString("")
	require.NoError(t, err)
	assert.Empty(t, ciphertext)

	plaintext, err := enc.DecryptString("")
	require.NoError(t, err)
	assert.Empty(t, plaintext)
}

func TestGenerateSalt(t *testing.T) {
	salt, err := GenerateSalt(16)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(salt)
	require.NoError(t, err)
	assert.Len(t, raw, 16)

	other, err := GenerateSalt(16)
	require.NoError(t, err)
	assert.NotEqual(t, salt, other)

	_, err = GenerateSalt(4)
	assert.Error(t, err)
}
