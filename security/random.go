package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateNonce returns length random bytes as URL-safe base64.
func GenerateNonce(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand.Read only fails when the OS entropy source is unusable
		panic(fmt.Sprintf("crypto/rand.Read failed: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
