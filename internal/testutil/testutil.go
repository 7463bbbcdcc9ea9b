// Package testutil provides fixtures and a controllable clock for tests.
package testutil

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/giantswarm/oauth2-provider/storage"
)

// MockTime provides a controllable time source for deterministic testing
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// GenerateRandomString generates a random URL-safe string of the given length.
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// NewTestClient returns a client whose secret hash matches secret.
// bcrypt.MinCost keeps the suites fast.
func NewTestClient(t testing.TB, clientID, secret string, redirectURIs ...string) *storage.Client {
	t.Helper()
	hash, err := storage.HashClientSecretWithCost(secret, storage.MinSecretCost)
	if err != nil {
		t.Fatalf("hash client secret: %v", err)
	}
	return &storage.Client{
		ClientID:         clientID,
		ClientSecretHash: hash,
		ClientName:       "Test client " + clientID,
		RedirectURIs:     redirectURIs,
		CreatedAt:        time.Now(),
	}
}

// NewTestGrant returns a grant for clientID and userID expiring after ttl.
func NewTestGrant(clientID, userID string, ttl time.Duration) *storage.Grant {
	now := time.Now()
	return &storage.Grant{
		ID:          GenerateRandomString(22),
		ClientID:    clientID,
		UserID:      userID,
		RedirectURI: "http://localhost/callback",
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}
