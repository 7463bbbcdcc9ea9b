package redis

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/giantswarm/oauth2-provider/instrumentation"
	"github.com/giantswarm/oauth2-provider/internal/util"
	"github.com/giantswarm/oauth2-provider/security"
	"github.com/giantswarm/oauth2-provider/storage"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second

	// DefaultKeyPrefix is the default prefix for all keys.
	DefaultKeyPrefix = "oauth2:"

	backendName      = "redis"
	grantIDLogLength = 8
)

// Config holds Redis connection configuration.
type Config struct {
	// Addrs lists one address for a standalone server, several for a cluster,
	// or the sentinels when MasterName is set.
	Addrs      []string
	MasterName string
	Username   string
	Password   string
	DB         int
	TLS        *tls.Config

	// KeyPrefix defaults to "oauth2:".
	KeyPrefix string

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s).
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// Store is a Redis-backed storage.ClientStore and storage.GrantStore.
type Store struct {
	client  redis.UniversalClient
	prefix  string
	logger  *slog.Logger
	consume *redis.Script
	now     func() time.Time

	instrumentation *instrumentation.Instrumentation
}

var (
	_ storage.ClientStore = (*Store)(nil)
	_ storage.GrantStore  = (*Store)(nil)
)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("at least one redis address is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        cfg.Addrs,
		MasterName:   cfg.MasterName,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		TLSConfig:    cfg.TLS,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := NewWithClient(client, cfg.KeyPrefix, cfg.Logger)
	s.logger.Info("Connected to Redis storage", "addrs", cfg.Addrs, "prefix", s.prefix)
	return s, nil
}

// NewWithClient wraps a pre-configured client (for example one pointing at miniredis).
func NewWithClient(client redis.UniversalClient, keyPrefix string, logger *slog.Logger) *Store {
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
		consume: redis.NewScript(storage.ConsumeGrantScript),
		now:     time.Now,
	}
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// SetInstrumentation enables storage metrics.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
}

func (s *Store) clientKey(clientID string) string { return s.prefix + "client:" + clientID }
func (s *Store) grantKey(id string) string        { return s.prefix + "grant:" + id }
func (s *Store) tombstoneKey(id string) string    { return s.prefix + "grant:used:" + id }

// SaveClient creates or replaces a client.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	defer s.record(ctx, "save_client", &err, time.Now())

	if err = storage.ValidateClient(client); err != nil {
		return err
	}
	data, err := json.Marshal(client)
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}
	if err = s.client.Set(ctx, s.clientKey(client.ClientID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

// GetClient retrieves a client by ID.
func (s *Store) GetClient(ctx context.Context, clientID string) (_ *storage.Client, err error) {
	defer s.record(ctx, "get_client", &err, time.Now())

	data, err := s.client.Get(ctx, s.clientKey(clientID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("client %q: %w", clientID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	var c storage.Client
	if err = json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client: %w", err)
	}
	return &c, nil
}

// ValidateClientSecret compares clientSecret with the stored bcrypt hash.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		client = nil
	}
	return storage.CompareClientSecret(client, clientSecret)
}

// SaveGrant stores a grant with a TTL matching its expiry. Grant ids are never reused.
func (s *Store) SaveGrant(ctx context.Context, grant *storage.Grant) (err error) {
	defer s.record(ctx, "save_grant", &err, time.Now())

	if err = storage.ValidateGrant(grant); err != nil {
		return err
	}
	ttl := grant.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return errors.New("grant already expired")
	}

	data, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("failed to marshal grant: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.grantKey(grant.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save grant: %w", err)
	}
	if !ok {
		return errors.New("grant id already in use")
	}

	s.logger.Debug("Saved grant",
		"grant_id", util.SafeTruncate(grant.ID, grantIDLogLength),
		"client_id", grant.ClientID)
	return nil
}

// ConsumeGrant atomically deletes and returns a grant, leaving a tombstone.
func (s *Store) ConsumeGrant(ctx context.Context, id string) (_ *storage.Grant, err error) {
	defer s.record(ctx, "consume_grant", &err, time.Now())

	reply, err := s.consume.Run(ctx, s.client,
		[]string{s.grantKey(id), s.tombstoneKey(id)},
		storage.DefaultTombstoneTTL.Milliseconds(),
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to consume grant: %w", err)
	}
	if len(reply) != 2 {
		return nil, fmt.Errorf("failed to consume grant: unexpected reply length %d", len(reply))
	}
	if err = storage.ConsumeResult(reply[0]); err != nil {
		return nil, err
	}

	var g storage.Grant
	if err = json.Unmarshal([]byte(reply[1]), &g); err != nil {
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
	if err := *errp; err != nil && !errors.Is(err, storage.ErrNotFound) &&
		!errors.Is(err, storage.ErrGrantConsumed) && !errors.Is(err, storage.ErrGrantExpired) {
		result = "error"
	}
	durationMs := float64(time.Since(start).Microseconds()) / 1000
	s.instrumentation.Metrics().RecordStorageOperation(ctx, backendName, operation, result, durationMs)
}
