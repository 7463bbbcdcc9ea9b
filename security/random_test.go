package security

import (
	"encoding/base64"
	"testing"
)

func TestGenerateNonce(t *testing.T) {
	a, b := GenerateNonce(32), GenerateNonce(32)
	if a == b {
		t.Error("two nonces should differ")
	}

	raw, err := base64.RawURLEncoding.DecodeString(a)
	if err != nil {
		t.Fatalf("nonce is not URL-safe base64: %v", err)
	}
	if len(raw) != 32 {
		t.Errorf("decoded length = %d, want 32", len(raw))
	}
}
