package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrNotFound is returned when a client or grant does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidClient is returned for any client authentication failure.
	// It does not reveal whether the client exists.
	ErrInvalidClient = errors.New("invalid client credentials")

	// ErrGrantExpired is returned by ConsumeGrant for a grant past its expiry.
	ErrGrantExpired = errors.New("grant expired")

	// ErrGrantConsumed is returned by ConsumeGrant when the grant was already used.
	ErrGrantConsumed = errors.New("grant already consumed")
)

// Client is a registered OAuth client.
type Client struct {
	ClientID         string    `json:"client_id"`
	ClientSecretHash string    `json:"client_secret_hash,omitempty"` // bcrypt
	ClientName       string    `json:"client_name,omitempty"`
	RedirectURIs     []string  `json:"redirect_uris"`
	Trusted          bool      `json:"trusted,omitempty"` // consent is skipped
	CreatedAt        time.Time `json:"created_at"`
}

// HasRedirectURI reports whether uri exactly matches a registered redirect URI.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// Grant is an authorization grant waiting to be exchanged at the token endpoint.
type Grant struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	UserID      string    `json:"user_id"`
	RedirectURI string    `json:"redirect_uri"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ClientStore persists registered clients.
type ClientStore interface {
	// SaveClient creates or replaces a client.
	SaveClient(ctx context.Context, client *Client) error

	// GetClient returns the client or an error wrapping ErrNotFound.
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// ValidateClientSecret returns ErrInvalidClient unless clientSecret matches.
	ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error
}

// GrantStore persists grants until they are exchanged.
type GrantStore interface {
	// SaveGrant stores a grant until its ExpiresAt.
	SaveGrant(ctx context.Context, grant *Grant) error

	// ConsumeGrant atomically removes and returns a grant. A second call for
	// the same id fails with ErrGrantConsumed (while the tombstone lives) or
	// ErrNotFound; an expired grant fails with ErrGrantExpired.
	ConsumeGrant(ctx context.Context, id string) (*Grant, error)
}

// ValidateClient checks the fields every backend requires.
func ValidateClient(c *Client) error {
	if c == nil || c.ClientID == "" {
		return fmt.Errorf("invalid client: client_id is required")
	}
	return nil
}

// ValidateGrant checks the fields every backend requires.
func ValidateGrant(g *Grant) error {
	switch {
	case g == nil || g.ID == "":
		return fmt.Errorf("invalid grant: id is required")
	case g.ClientID == "":
		return fmt.Errorf("invalid grant: client_id is required")
	case g.ExpiresAt.IsZero():
		return fmt.Errorf("invalid grant: expires_at is required")
	}
	return nil
}

// MinSecretCost is the cheapest bcrypt cost, for tests.
const MinSecretCost = bcrypt.MinCost

// HashClientSecret returns the bcrypt hash stored in Client.ClientSecretHash.
func HashClientSecret(secret string) (string, error) {
	return HashClientSecretWithCost(secret, bcrypt.DefaultCost)
}

// HashClientSecretWithCost is HashClientSecret with an explicit bcrypt cost.
func HashClientSecretWithCost(secret string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash client secret: %w", err)
	}
	return string(hash), nil
}

// bcrypt hash of "test", compared against when the client is unknown so that
// lookups for missing clients cost the same as real ones.
const dummySecretHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// CompareClientSecret checks clientSecret against client, which may be nil
// when the lookup failed. It always performs one bcrypt comparison. Clients
// without a secret hash cannot authenticate.
func CompareClientSecret(client *Client, clientSecret string) error {
	hash := dummySecretHash
	if client != nil && client.ClientSecretHash != "" {
		hash = client.ClientSecretHash
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(clientSecret))
	if client == nil || client.ClientSecretHash == "" || err != nil {
		return ErrInvalidClient
	}
	return nil
}

// ConsumeGrantScript atomically reads and deletes a grant key (KEYS[1]) and
// leaves a tombstone (KEYS[2]) for the rest of the grant's lifetime. It
// returns {"ok", data}, {"consumed", ""} or {"missing", ""}. Shared by the
// Redis-protocol backends.
const ConsumeGrantScript = `
local v = redis.call('GET', KEYS[1])
if v then
  local ttl = redis.call('PTTL', KEYS[1])
  if ttl < 1 then ttl = tonumber(ARGV[1]) end
  redis.call('DEL', KEYS[1])
  redis.call('SET', KEYS[2], '1', 'PX', ttl)
  return {'ok', v}
end
if redis.call('EXISTS', KEYS[2]) == 1 then
  return {'consumed', ''}
end
return {'missing', ''}
`

// DefaultTombstoneTTL is the tombstone lifetime used when a grant key carries
// no TTL.
const DefaultTombstoneTTL = 10 * time.Minute

// ConsumeResult interprets the status returned by ConsumeGrantScript.
func ConsumeResult(status string) error {
	switch status {
	case "ok":
		return nil
	case "consumed":
		return ErrGrantConsumed
	case "missing":
		return ErrNotFound
	default:
		return fmt.Errorf("unexpected consume status %q", status)
	}
}
