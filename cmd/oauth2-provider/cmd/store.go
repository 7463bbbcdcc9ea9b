package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/giantswarm/oauth2-provider/instrumentation"
	"github.com/giantswarm/oauth2-provider/internal/config"
	"github.com/giantswarm/oauth2-provider/storage"
	"github.com/giantswarm/oauth2-provider/storage/memory"
	"github.com/giantswarm/oauth2-provider/storage/redis"
	"github.com/giantswarm/oauth2-provider/storage/valkey"
)

// backingStore is implemented by every storage backend.
type backingStore interface {
	storage.ClientStore
	storage.GrantStore
}

// openStore connects the configured backend. The returned func releases it.
func openStore(ctx context.Context, cfg config.StorageConfig, inst *instrumentation.Instrumentation, logger *slog.Logger) (backingStore, func(), error) {
	switch cfg.Backend {
	case config.StorageValkey:
		s, err := valkey.New(valkey.Config{
			Address:   cfg.ValkeyAddr,
			Password:  cfg.ValkeyPassword,
			DB:        cfg.ValkeyDB,
			KeyPrefix: cfg.KeyPrefix,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, err
		}
		s.SetInstrumentation(inst)
		return s, s.Close, nil

	case config.StorageRedis:
		s, err := redis.New(ctx, redis.Config{
			Addrs:      cfg.RedisAddrs,
			MasterName: cfg.RedisMasterName,
			Username:   cfg.RedisUsername,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			KeyPrefix:  cfg.KeyPrefix,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, err
		}
		s.SetInstrumentation(inst)
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warn("Failed to close redis store", "error", err)
			}
		}, nil

	case config.StorageMemory:
		s := memory.New()
		s.SetLogger(logger)
		s.SetInstrumentation(inst)
		return s, s.Stop, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// seedClients saves the configured client registry.
func seedClients(ctx context.Context, store storage.ClientStore, clients []*storage.Client) error {
	for _, c := range clients {
		if err := store.SaveClient(ctx, c); err != nil {
			return fmt.Errorf("failed to save client %s: %w", c.ClientID, err)
		}
	}
	return nil
}
