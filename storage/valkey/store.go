package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/giantswarm/oauth2-provider/instrumentation"
	"github.com/giantswarm/oauth2-provider/internal/util"
	"github.com/giantswarm/oauth2-provider/security"
	"github.com/giantswarm/oauth2-provider/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "oauth2:"

	backendName = "valkey"

	// grantIDLogLength is how much of a grant id appears in debug logs.
	grantIDLogLength = 8

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "oauth2:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed storage.ClientStore and storage.GrantStore.
//
// Key schema:
//
//	{prefix}client:{clientID}        -> JSON(Client)
//	{prefix}grant:{grantID}          -> JSON(Grant), TTL until ExpiresAt
//	{prefix}grant:used:{grantID}     -> tombstone, TTL of the consumed grant
type Store struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger

	consume *valkeygo.Lua
	now     func() time.Time

	instrumentation *instrumentation.Instrumentation
}

var (
	_ storage.ClientStore = (*Store)(nil)
	_ storage.GrantStore  = (*Store)(nil)
)

// New connects to Valkey and verifies the connection with PING.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
		Password:    cfg.Password,
		TLSConfig:   cfg.TLS,
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	s := NewWithClient(client, cfg.KeyPrefix, cfg.Logger)
	s.logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", s.prefix)
	return s, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client valkeygo.Client, keyPrefix string, logger *slog.Logger) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client:  client,
		prefix:  keyPrefix,
		logger:  logger,
		consume: valkeygo.NewLuaScript(storage.ConsumeGrantScript),
		now:     time.Now,
	}
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetInstrumentation enables storage metrics.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
}

func (s *Store) clientKey(clientID string) string { return s.prefix + "client:" + clientID }
func (s *Store) grantKey(id string) string        { return s.prefix + "grant:" + id }
func (s *Store) tombstoneKey(id string) string    { return s.prefix + "grant:used:" + id }

// SaveClient creates or replaces a client. Clients do not expire.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	defer s.record(ctx, "save_client", &err, time.Now())

	if err = storage.ValidateClient(client); err != nil {
		return err
	}

	data, err := json.Marshal(client)
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}

	if err = s.client.Do(ctx,
		s.client.B().Set().Key(s.clientKey(client.ClientID)).Value(string(data)).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	s.logger.Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (_ *storage.Client, err error) {
	defer s.record(ctx, "get_client", &err, time.Now())

	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.clientKey(clientID)).Build()).ToString()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return nil, fmt.Errorf("client %q: %w", clientID, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	var c storage.Client
	if err = json.Unmarshal([]byte(data), &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client: %w", err)
	}
	return &c, nil
}

// ValidateClientSecret compares clientSecret with the stored bcrypt hash.
// Backend errors are returned as-is so callers can tell them from bad credentials.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		if !isNotFound(err) {
			return err
		}
		client = nil
	}
	return storage.CompareClientSecret(client, clientSecret)
}

// SaveGrant stores a grant with a TTL matching its expiry.
func (s *Store) SaveGrant(ctx context.Context, grant *storage.Grant) (err error) {
	defer s.record(ctx, "save_grant", &err, time.Now())

	if err = storage.ValidateGrant(grant); err != nil {
		return err
	}

	ttl := grant.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("grant already expired")
	}

	data, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("failed to marshal grant: %w", err)
	}

	if err = s.client.Do(ctx,
		s.client.B().Set().Key(s.grantKey(grant.ID)).Value(string(data)).Nx().Px(ttl).Build(),
	).Error(); err != nil {
		if valkeygo.IsValkeyNil(err) {
			return fmt.Errorf("grant id already in use")
		}
		return fmt.Errorf("failed to save grant: %w", err)
	}

	s.logger.Debug("Saved grant",
		"grant_id", util.SafeTruncate(grant.ID, grantIDLogLength),
		"client_id", grant.ClientID)
	return nil
}

// ConsumeGrant atomically deletes and returns a grant, leaving a tombstone.
func (s *Store) ConsumeGrant(ctx context.Context, id string) (_ *storage.Grant, err error) {
	defer s.record(ctx, "consume_grant", &err, time.Now())

	reply, err := s.consume.Exec(ctx, s.client,
		[]string{s.grantKey(id), s.tombstoneKey(id)},
		[]string{strconv.FormatInt(storage.DefaultTombstoneTTL.Milliseconds(), 10)},
	).ToArray()
	if err != nil {
		return nil, fmt.Errorf("failed to consume grant: %w", err)
	}
	if len(reply) != 2 {
		return nil, fmt.Errorf("failed to consume grant: unexpected reply length %d", len(reply))
	}

	status, err := reply[0].ToString()
	if err != nil {
		return nil, fmt.Errorf("failed to consume grant: %w", err)
	}
	if err = storage.ConsumeResult(status); err != nil {
		return nil, err
	}

	data, err := reply[1].ToString()
	if err != nil {
		return nil, fmt.Errorf("failed to consume grant: %w", err)
	}

	var g storage.Grant
	if err = json.Unmarshal([]byte(data), &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal grant: %w", err)
	}
	if security.IsExpired(g.ExpiresAt, s.now(), 0) {
		return nil, storage.ErrGrantExpired
	}
	return &g, nil
}

func (s *Store) record(ctx context.Context, operation string, errp *error, start time.Time) {
	if s.instrumentation == nil {
		return
	}
	result := "success"
	if *errp != nil && !isNotFound(*errp) {
		result = "error"
	}
	durationMs := float64(time.Since(start).Microseconds()) / 1000
	s.instrumentation.Metrics().RecordStorageOperation(ctx, backendName, operation, result, durationMs)
}
