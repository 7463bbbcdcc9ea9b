package security

import "time"

// DefaultClockSkewGracePeriod is how long past its expiry a credential is
// still accepted, to absorb clock drift between the issuer and validators.
const DefaultClockSkewGracePeriod = 5 * time.Second

// IsExpired reports whether expiresAt lies more than gracePeriod before now.
// A zero expiresAt never expires.
func IsExpired(expiresAt, now time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return now.After(expiresAt.Add(gracePeriod))
}
