// Package config loads the oauth2-provider binary configuration from
// OAUTH2_PROVIDER_* environment variables.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/oauth2-provider/host"
	"github.com/giantswarm/oauth2-provider/security"
	"github.com/giantswarm/oauth2-provider/storage"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageValkey = "valkey"
	StorageRedis  = "redis"
)

// CodecConfig selects and keys the credential codec. The encode and decode
// commands only need this part.
type CodecConfig struct {
	Secret string `env:"OAUTH2_PROVIDER_SECRET"`
	Scheme string `env:"OAUTH2_PROVIDER_CODEC" envDefault:"legacy"`

	// Key is a base64 32-byte AES-256 key for the aead scheme, as printed by
	// the keygen command. It takes the place of Secret.
	Key string `env:"OAUTH2_PROVIDER_AEAD_KEY"`
}

// Codec builds the configured codec.
func (c CodecConfig) Codec() (security.Codec, error) {
	if c.Key == "" {
		return security.NewCodec(security.CodecScheme(c.Scheme), c.Secret)
	}
	if security.CodecScheme(c.Scheme) != security.CodecSchemeAEAD {
		return nil, fmt.Errorf("OAUTH2_PROVIDER_AEAD_KEY requires the %s codec", security.CodecSchemeAEAD)
	}
	key, err := security.KeyFromBase64(c.Key)
	if err != nil {
		return nil, fmt.Errorf("OAUTH2_PROVIDER_AEAD_KEY: %w", err)
	}
	codec, err := security.NewAEADCodec(key)
	if err != nil {
		return nil, err
	}
	return codec, nil
}

// StorageConfig selects the client and grant store.
type StorageConfig struct {
	Backend   string `env:"OAUTH2_PROVIDER_STORAGE" envDefault:"memory"`
	KeyPrefix string `env:"OAUTH2_PROVIDER_STORAGE_KEY_PREFIX"`

	ValkeyAddr     string `env:"OAUTH2_PROVIDER_VALKEY_ADDR" envDefault:"localhost:6379"`
	ValkeyPassword string `env:"OAUTH2_PROVIDER_VALKEY_PASSWORD"`
	ValkeyDB       int    `env:"OAUTH2_PROVIDER_VALKEY_DB"`

	RedisAddrs      []string `env:"OAUTH2_PROVIDER_REDIS_ADDRS" envSeparator:"," envDefault:"localhost:6379"`
	RedisMasterName string   `env:"OAUTH2_PROVIDER_REDIS_MASTER_NAME"`
	RedisUsername   string   `env:"OAUTH2_PROVIDER_REDIS_USERNAME"`
	RedisPassword   string   `env:"OAUTH2_PROVIDER_REDIS_PASSWORD"`
	RedisDB         int      `env:"OAUTH2_PROVIDER_REDIS_DB"`
}

// UpstreamConfig delegates login to an external OAuth2 identity provider.
// It is enabled when ClientID is set.
type UpstreamConfig struct {
	ClientID     string   `env:"OAUTH2_PROVIDER_UPSTREAM_CLIENT_ID"`
	ClientSecret string   `env:"OAUTH2_PROVIDER_UPSTREAM_CLIENT_SECRET"`
	AuthURL      string   `env:"OAUTH2_PROVIDER_UPSTREAM_AUTH_URL"`
	TokenURL     string   `env:"OAUTH2_PROVIDER_UPSTREAM_TOKEN_URL"`
	UserInfoURL  string   `env:"OAUTH2_PROVIDER_UPSTREAM_USERINFO_URL"`
	UserIDClaim  string   `env:"OAUTH2_PROVIDER_UPSTREAM_USER_ID_CLAIM"`
	RedirectURL  string   `env:"OAUTH2_PROVIDER_UPSTREAM_REDIRECT_URL"`
	Scopes       []string `env:"OAUTH2_PROVIDER_UPSTREAM_SCOPES" envSeparator:","`
}

// Enabled reports whether an upstream IdP is configured.
func (u UpstreamConfig) Enabled() bool {
	return u.ClientID != ""
}

// Client is a client registry entry as given in OAUTH2_PROVIDER_CLIENTS.
type Client struct {
	ID           string   `json:"client_id"`
	Secret       string   `json:"client_secret"`
	Name         string   `json:"client_name,omitempty"`
	RedirectURIs []string `json:"redirect_uris"`
	Trusted      bool     `json:"trusted,omitempty"`
}

// User is a local login as given in OAUTH2_PROVIDER_USERS.
type User struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// UserID defaults to Username.
	UserID string `json:"user_id,omitempty"`
}

// Config is the full binary configuration.
type Config struct {
	Addr            string        `env:"OAUTH2_PROVIDER_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"OAUTH2_PROVIDER_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	Codec   CodecConfig
	Storage StorageConfig

	RedirectDenials  bool          `env:"OAUTH2_PROVIDER_REDIRECT_DENIALS"`
	DisableSkipAllow bool          `env:"OAUTH2_PROVIDER_DISABLE_SKIP_ALLOW"`
	ExtensionTimeout time.Duration `env:"OAUTH2_PROVIDER_EXTENSION_TIMEOUT"`

	RateLimit      int `env:"OAUTH2_PROVIDER_RATE_LIMIT"`
	RateLimitBurst int `env:"OAUTH2_PROVIDER_RATE_LIMIT_BURST"`

	TrustProxy          bool `env:"OAUTH2_PROVIDER_TRUST_PROXY"`
	TrustedProxyCount   int  `env:"OAUTH2_PROVIDER_TRUSTED_PROXY_COUNT"`
	DisableAuditLogging bool `env:"OAUTH2_PROVIDER_DISABLE_AUDIT_LOGGING"`

	GrantTTL       time.Duration `env:"OAUTH2_PROVIDER_GRANT_TTL"`
	AccessTokenTTL time.Duration `env:"OAUTH2_PROVIDER_ACCESS_TOKEN_TTL"`
	SessionTTL     time.Duration `env:"OAUTH2_PROVIDER_SESSION_TTL"`
	SecureCookies  bool          `env:"OAUTH2_PROVIDER_SECURE_COOKIES"`

	MetricsEnabled bool `env:"OAUTH2_PROVIDER_METRICS_ENABLED" envDefault:"true"`
	LogClientIPs   bool `env:"OAUTH2_PROVIDER_LOG_CLIENT_IPS"`

	ClientsJSON string `env:"OAUTH2_PROVIDER_CLIENTS"`
	UsersJSON   string `env:"OAUTH2_PROVIDER_USERS"`

	Upstream UpstreamConfig

	Clients []Client
	Users   []User
}

// LoadCodec reads only the codec settings.
func LoadCodec() (CodecConfig, error) {
	var c CodecConfig
	if err := env.Parse(&c); err != nil {
		return c, fmt.Errorf("parse env: %w", err)
	}
	return c, nil
}

// Load reads and validates the configuration.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if strings.TrimSpace(cfg.ClientsJSON) != "" {
		if err := json.Unmarshal([]byte(cfg.ClientsJSON), &cfg.Clients); err != nil {
			return nil, fmt.Errorf("parse OAUTH2_PROVIDER_CLIENTS: %w", err)
		}
	}
	if strings.TrimSpace(cfg.UsersJSON) != "" {
		if err := json.Unmarshal([]byte(cfg.UsersJSON), &cfg.Users); err != nil {
			return nil, fmt.Errorf("parse OAUTH2_PROVIDER_USERS: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that env parsing cannot.
func (c *Config) Validate() error {
	var errs []error
	if c.Codec.Secret == "" && c.Codec.Key == "" {
		errs = append(errs, errors.New("OAUTH2_PROVIDER_SECRET or OAUTH2_PROVIDER_AEAD_KEY is required"))
	}
	switch c.Storage.Backend {
	case StorageMemory, StorageValkey, StorageRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	if len(c.Users) == 0 && !c.Upstream.Enabled() {
		errs = append(errs, errors.New("either OAUTH2_PROVIDER_USERS or an upstream identity provider is required"))
	}
	for i, cl := range c.Clients {
		if cl.ID == "" || cl.Secret == "" || len(cl.RedirectURIs) == 0 {
			errs = append(errs, fmt.Errorf("client %d: client_id, client_secret and redirect_uris are required", i))
		}
	}
	for i, u := range c.Users {
		if u.Username == "" || u.Password == "" {
			errs = append(errs, fmt.Errorf("user %d: username and password are required", i))
		}
	}
	return errors.Join(errs...)
}

// StorageClients converts the client registry, hashing secrets with bcrypt.
func (c *Config) StorageClients(cost int) ([]*storage.Client, error) {
	out := make([]*storage.Client, 0, len(c.Clients))
	now := time.Now()
	for _, cl := range c.Clients {
		hash, err := storage.HashClientSecretWithCost(cl.Secret, cost)
		if err != nil {
			return nil, fmt.Errorf("client %s: %w", cl.ID, err)
		}
		out = append(out, &storage.Client{
			ClientID:         cl.ID,
			ClientSecretHash: hash,
			ClientName:       cl.Name,
			RedirectURIs:     cl.RedirectURIs,
			Trusted:          cl.Trusted,
			CreatedAt:        now,
		})
	}
	return out, nil
}

// Authenticator checks logins against the configured users. Passwords are
// held as bcrypt hashes after this call.
func (c *Config) Authenticator(cost int) (host.Authenticator, error) {
	if len(c.Users) == 0 {
		return nil, nil
	}

	type account struct {
		userID string
		hash   []byte
	}
	accounts := make(map[string]account, len(c.Users))
	for _, u := range c.Users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), cost)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", u.Username, err)
		}
		id := u.UserID
		if id == "" {
			id = u.Username
		}
		accounts[u.Username] = account{userID: id, hash: hash}
	}
	// a fixed hash keeps unknown usernames as slow as known ones
	dummy, err := bcrypt.GenerateFromPassword([]byte("unused"), cost)
	if err != nil {
		return nil, err
	}

	return func(_ context.Context, username, password string) (string, error) {
		a, ok := accounts[username]
		hash := a.hash
		if !ok {
			hash = dummy
		}
		if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || !ok {
			return "", host.ErrBadCredentials
		}
		return a.userID, nil
	}, nil
}

// HostUpstream returns the host upstream settings, or nil when disabled.
func (c *Config) HostUpstream() *host.UpstreamConfig {
	if !c.Upstream.Enabled() {
		return nil
	}
	u := c.Upstream
	return &host.UpstreamConfig{
		ClientID:     u.ClientID,
		ClientSecret: u.ClientSecret,
		AuthURL:      u.AuthURL,
		TokenURL:     u.TokenURL,
		UserInfoURL:  u.UserInfoURL,
		UserIDClaim:  u.UserIDClaim,
		RedirectURL:  u.RedirectURL,
		Scopes:       u.Scopes,
	}
}
