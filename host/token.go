package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrTokenExpired is returned by AccessToken.Validate after the expiry.
var ErrTokenExpired = errors.New("access token expired")

// AccessToken is the payload the host puts inside access tokens.
type AccessToken struct {
	ID        string `json:"jti"`
	UserID    string `json:"uid"`
	ClientID  string `json:"cid"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// NewAccessToken returns a token payload issued at now.
func NewAccessToken(userID, clientID string, now time.Time, ttl time.Duration) *AccessToken {
	return &AccessToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		ClientID:  clientID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
}

// Marshal returns the JSON payload.
func (t *AccessToken) Marshal() (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to marshal access token: %w", err)
	}
	return string(b), nil
}

// Validate returns ErrTokenExpired once now reaches the expiry.
func (t *AccessToken) Validate(now time.Time) error {
	if !now.Before(time.Unix(t.ExpiresAt, 0)) {
		return ErrTokenExpired
	}
	return nil
}

// ParseAccessToken parses a decoded access token payload, as returned by
// oauth.Provider.ValidateToken or oauth.TokenDataFromContext.
func ParseAccessToken(data string) (*AccessToken, error) {
	var t AccessToken
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("invalid access token payload: %w", err)
	}
	if t.UserID == "" || t.ClientID == "" {
		return nil, fmt.Errorf("invalid access token payload: missing uid or cid")
	}
	return &t, nil
}
