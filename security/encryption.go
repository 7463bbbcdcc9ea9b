package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// aeadKeyInfo binds derived keys to this codec so the same passphrase used
// elsewhere yields an unrelated key.
const aeadKeyInfo = "oauth2-provider credential codec v1"

// AEADCodec encrypts credentials with AES-256-GCM. Every message carries a
// fresh random nonce: [nonce][ciphertext+tag], URL-safe base64 encoded.
// Unlike LegacyCodec, tampering is always detected and equal plaintexts produce
// different encodings.
type AEADCodec struct {
	gcm cipher.AEAD
}

var _ Codec = (*AEADCodec)(nil)

// NewAEADCodec creates a codec from a raw 32-byte AES-256 key.
func NewAEADCodec(key []byte) (*AEADCodec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes for AES-256, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AEADCodec{gcm: gcm}, nil
}

// NewAEADCodecFromPassphrase derives a 32-byte key from passphrase with
// HKDF-SHA256 and creates a codec from it.
func NewAEADCodecFromPassphrase(passphrase string) (*AEADCodec, error) {
	key, err := DeriveKey(passphrase)
	if err != nil {
		return nil, err
	}
	return NewAEADCodec(key)
}

// Encode encrypts plaintext.
func (c *AEADCodec) Encode(plaintext string) (string, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends to nonce, producing [nonce][ciphertext].
	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncodeURLSafe(sealed), nil
}

// Decode decrypts and authenticates an encoded credential.
func (c *AEADCodec) Decode(encoded string) (string, error) {
	sealed, err := DecodeURLSafe(encoded)
	if err != nil {
		return "", err
	}

	nonceSize := c.gcm.NonceSize()
	if len(sealed) < nonceSize+c.gcm.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecode)
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return string(plaintext), nil
}

// DeriveKey derives a 32-byte AES-256 key from passphrase.
func DeriveKey(passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase is required")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(passphrase), nil, []byte(aeadKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// GenerateKey generates a new 32-byte encryption key for AES-256
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// KeyFromBase64 decodes a base64-encoded encryption key
func KeyFromBase64(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// KeyToBase64 encodes an encryption key to base64
func KeyToBase64(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}
