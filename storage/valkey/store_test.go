package valkey

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/oauth2-provider/internal/testutil"
	"github.com/giantswarm/oauth2-provider/storage"
)

// testStore connects to VALKEY_TEST_ADDR (default localhost:6379) and skips
// the test when no server answers. Each test gets its own key prefix.
func testStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("VALKEY_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	prefix := fmt.Sprintf("oauth2test:%s:", strings.ReplaceAll(t.Name(), "/", "_"))
	store, err := New(Config{Address: addr, KeyPrefix: prefix})
	if err != nil {
		t.Skipf("Skipping test: could not connect to Valkey at %s: %v", addr, err)
	}

	t.Cleanup(func() {
		cleanupTestKeys(t, store)
		store.Close()
	})
	cleanupTestKeys(t, store)
	return store
}

func cleanupTestKeys(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	var cursor uint64
	for {
		result, err := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(s.prefix+"*").Count(100).Build(),
		).AsScanEntry()
		if err != nil {
			t.Logf("Warning: failed to scan for cleanup: %v", err)
			return
		}
		for _, key := range result.Elements {
			_ = s.client.Do(ctx, s.client.B().Del().Key(key).Build())
		}
		cursor = result.Cursor
		if cursor == 0 {
			return
		}
	}
}

func TestNew_RequiresAddress(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestStore_Clients(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	client := testutil.NewTestClient(t, "1", "secret", "lala.com")
	client.Trusted = true
	require.NoError(t, store.SaveClient(ctx, client))

	got, err := store.GetClient(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, client.ClientID, got.ClientID)
	assert.Equal(t, client.RedirectURIs, got.RedirectURIs)
	assert.True(t, got.Trusted)

	_, err = store.GetClient(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.NoError(t, store.ValidateClientSecret(ctx, "1", "secret"))
	assert.ErrorIs(t, store.ValidateClientSecret(ctx, "1", "wrong"), storage.ErrInvalidClient)
	assert.ErrorIs(t, store.ValidateClientSecret(ctx, "missing", "secret"), storage.ErrInvalidClient)
}

func TestStore_ConsumeGrant(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	grant := testutil.NewTestGrant("1", "test@cnn.com", time.Minute)
	require.NoError(t, store.SaveGrant(ctx, grant))
	assert.Error(t, store.SaveGrant(ctx, grant), "duplicate grant id must be rejected")

	got, err := store.ConsumeGrant(ctx, grant.ID)
	require.NoError(t, err)
	assert.Equal(t, "test@cnn.com", got.UserID)

	_, err = store.ConsumeGrant(ctx, grant.ID)
	assert.ErrorIs(t, err, storage.ErrGrantConsumed)

	_, err = store.ConsumeGrant(ctx, "never-issued")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_SaveGrant_Expired(t *testing.T) {
	store := testStore(t)
	grant := testutil.NewTestGrant("1", "user", -time.Second)
	assert.Error(t, store.SaveGrant(context.Background(), grant))
}

func TestStore_ConsumeGrant_Concurrent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	grant := testutil.NewTestGrant("1", "user", time.Minute)
	require.NoError(t, store.SaveGrant(ctx, grant))

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ConsumeGrant(ctx, grant.ID); err == nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}
