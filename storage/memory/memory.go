package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth2-provider/instrumentation"
	"github.com/giantswarm/oauth2-provider/internal/util"
	"github.com/giantswarm/oauth2-provider/security"
	"github.com/giantswarm/oauth2-provider/storage"
)

const (
	backendName = "memory"

	// grantIDLogLength is how much of a grant id appears in debug logs.
	grantIDLogLength = 8
)

// Store keeps clients and grants in process memory.
type Store struct {
	mu sync.RWMutex

	clients map[string]*storage.Client
	grants  map[string]*storage.Grant

	// consumed grant id -> original expiry, kept so replays are reported
	// as ErrGrantConsumed until the grant would have expired anyway
	consumed map[string]time.Time

	now func() time.Time

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	clientsCount atomic.Int64
	grantsCount  atomic.Int64

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

var (
	_ storage.ClientStore = (*Store)(nil)
	_ storage.GrantStore  = (*Store)(nil)
)

// New creates a store sweeping expired grants every minute.
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a store with a custom sweep interval.
// Non-positive intervals fall back to one minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		clients:         make(map[string]*storage.Client),
		grants:          make(map[string]*storage.Grant),
		consumed:        make(map[string]time.Time),
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger != nil {
		s.logger = logger
	}
}

// SetClock replaces the time source used for expiry checks.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetInstrumentation enables spans, storage metrics and size gauges.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
	s.clientsCount.Store(int64(len(s.clients)))
	s.grantsCount.Store(int64(len(s.grants)))
	s.mu.Unlock()

	if inst != nil {
		err := inst.RegisterStorageSizeCallbacks(
			func() int64 { return s.clientsCount.Load() },
			func() int64 { return s.grantsCount.Load() },
		)
		if err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Stop stops the sweeper. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// SaveClient creates or replaces a client.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_client")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "save_client", &err, time.Now())

	if err = storage.ValidateClient(client); err != nil {
		return err
	}

	c := *client
	c.RedirectURIs = append([]string(nil), client.RedirectURIs...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ClientID] = &c
	s.clientsCount.Store(int64(len(s.clients)))

	s.logger.Debug("Saved client", "client_id", c.ClientID)
	return nil
}

// GetClient returns a copy of the client.
func (s *Store) GetClient(ctx context.Context, clientID string) (_ *storage.Client, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "get_client", &err, time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("client %q: %w", clientID, storage.ErrNotFound)
	}
	out := *c
	out.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	return &out, nil
}

// ValidateClientSecret compares clientSecret with the stored bcrypt hash.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		client = nil
	}
	return storage.CompareClientSecret(client, clientSecret)
}

// SaveGrant stores a grant until it expires.
func (s *Store) SaveGrant(ctx context.Context, grant *storage.Grant) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_grant")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "save_grant", &err, time.Now())

	if err = storage.ValidateGrant(grant); err != nil {
		return err
	}

	g := *grant

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, used := s.consumed[g.ID]; used {
		return fmt.Errorf("grant id already used")
	}
	s.grants[g.ID] = &g
	s.grantsCount.Store(int64(len(s.grants)))

	s.logger.Debug("Saved grant",
		"grant_id", util.SafeTruncate(g.ID, grantIDLogLength),
		"client_id", g.ClientID)
	return nil
}

// ConsumeGrant removes and returns a grant. The removal happens under the
// write lock, so exactly one concurrent caller wins.
func (s *Store) ConsumeGrant(ctx context.Context, id string) (_ *storage.Grant, err error) {
	ctx, span := s.startStorageSpan(ctx, "consume_grant")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "consume_grant", &err, time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grants[id]
	if !ok {
		if _, used := s.consumed[id]; used {
			return nil, storage.ErrGrantConsumed
		}
		return nil, storage.ErrNotFound
	}

	delete(s.grants, id)
	s.consumed[id] = g.ExpiresAt
	s.grantsCount.Store(int64(len(s.grants)))

	if security.IsExpired(g.ExpiresAt, s.now(), 0) {
		return nil, storage.ErrGrantExpired
	}
	return g, nil
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup drops expired grants and tombstones. The clock skew grace period
// keeps entries around slightly longer than their nominal expiry.
func (s *Store) cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cleaned := 0

	for id, g := range s.grants {
		if security.IsExpired(g.ExpiresAt, now, security.DefaultClockSkewGracePeriod) {
			delete(s.grants, id)
			cleaned++
		}
	}
	for id, exp := range s.consumed {
		if security.IsExpired(exp, now, security.DefaultClockSkewGracePeriod) {
			delete(s.consumed, id)
			cleaned++
		}
	}
	s.grantsCount.Store(int64(len(s.grants)))

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired grants", "count", cleaned)
	}
	return cleaned
}

func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	ctx, span := s.tracer.Start(ctx, "storage."+operation)
	instrumentation.AddStorageAttributes(span, operation, backendName)
	return ctx, span
}

func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, errp *error, start time.Time) {
	if s.instrumentation == nil {
		return
	}

	result := "success"
	if *errp != nil {
		result = "error"
		instrumentation.RecordError(span, *errp)
	} else {
		instrumentation.SetSpanSuccess(span)
	}

	durationMs := float64(time.Since(start).Microseconds()) / 1000
	s.instrumentation.Metrics().RecordStorageOperation(ctx, backendName, operation, result, durationMs)
}
