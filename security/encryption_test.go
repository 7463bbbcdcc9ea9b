package security

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	if len(key) != 32 {
		t.Errorf("GenerateKey() returned key of length %d, want 32", len(key))
	}

	key2, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	if bytes.Equal(key, key2) {
		t.Error("GenerateKey() returned identical keys")
	}
}

func TestNewAEADCodec(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{name: "valid 32-byte key", key: make([]byte, 32)},
		{name: "nil key", key: nil, wantErr: true},
		{name: "16-byte key", key: make([]byte, 16), wantErr: true},
		{name: "64-byte key", key: make([]byte, 64), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, err := NewAEADCodec(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewAEADCodec() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && codec == nil {
				t.Error("NewAEADCodec() returned nil codec")
			}
		})
	}
}

func TestDeriveKey(t *testing.T) {
	a, err := DeriveKey("passphrase")
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	b, err := DeriveKey("passphrase")
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	c, err := DeriveKey("other")
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}

	if len(a) != 32 {
		t.Errorf("DeriveKey() length = %d, want 32", len(a))
	}
	if !bytes.Equal(a, b) {
		t.Error("DeriveKey() is not deterministic")
	}
	if bytes.Equal(a, c) {
		t.Error("DeriveKey() returned the same key for different passphrases")
	}

	if _, err := DeriveKey(""); err == nil {
		t.Error("DeriveKey(\"\") expected error")
	}
}

func TestAEADCodec_Decode_InvalidData(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	codec, err := NewAEADCodec(key)
	if err != nil {
		t.Fatalf("NewAEADCodec() error = %v", err)
	}

	tests := []struct {
		name    string
		encoded string
	}{
		{name: "invalid base64", encoded: "not-valid-base64!!!"},
		{name: "too short", encoded: EncodeURLSafe([]byte("short"))},
		{name: "corrupted data", encoded: EncodeURLSafe([]byte("this is corrupted data that won't decrypt properly"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.encoded)
			if !errors.Is(err, ErrDecode) {
				t.Errorf("Decode() error = %v, want ErrDecode", err)
			}
		})
	}
}

func TestKeyFromBase64(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	decoded, err := KeyFromBase64(KeyToBase64(key))
	if err != nil {
		t.Fatalf("KeyFromBase64() error = %v", err)
	}

	if !bytes.Equal(decoded, key) {
		t.Errorf("KeyFromBase64() = %x, want %x", decoded, key)
	}
}

func TestKeyFromBase64_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{name: "invalid base64", encoded: "not-valid-base64!!!"},
		{name: "wrong length", encoded: base64.StdEncoding.EncodeToString(make([]byte, 16))},
		{name: "empty", encoded: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := KeyFromBase64(tt.encoded); err == nil {
				t.Error("KeyFromBase64() expected error")
			}
		})
	}
}
