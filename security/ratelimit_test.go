package security

import (
	"fmt"
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(1, 3, nil)
	defer rl.Stop()

	now := time.Now()

	for i := 0; i < 3; i++ {
		if !rl.allowAt("10.0.0.1", now) {
			t.Fatalf("request %d within burst was rejected", i+1)
		}
	}
	if rl.allowAt("10.0.0.1", now) {
		t.Error("request beyond burst was allowed")
	}

	// Other identifiers have their own bucket.
	if !rl.allowAt("10.0.0.2", now) {
		t.Error("independent identifier was rejected")
	}

	// One token refills after a second.
	if !rl.allowAt("10.0.0.1", now.Add(time.Second)) {
		t.Error("request after refill was rejected")
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl := NewRateLimiter(10, 10, nil)
	defer rl.Stop()

	now := time.Now()
	rl.allowAt("old", now.Add(-time.Hour))
	rl.allowAt("fresh", now)

	if removed := rl.sweep(now, 30*time.Minute); removed != 1 {
		t.Errorf("sweep() removed %d, want 1", removed)
	}
	if rl.Len() != 1 {
		t.Errorf("Len() = %d, want 1", rl.Len())
	}
}

func TestRateLimiter_EvictsOldestWhenFull(t *testing.T) {
	rl := NewRateLimiter(10, 10, nil)
	defer rl.Stop()
	rl.maxEntries = 3

	now := time.Now()
	for i := 0; i < 3; i++ {
		rl.allowAt(fmt.Sprintf("ip-%d", i), now.Add(time.Duration(i)*time.Second))
	}
	rl.allowAt("ip-new", now.Add(time.Minute))

	if rl.Len() != 3 {
		t.Errorf("Len() = %d, want 3", rl.Len())
	}
	if rl.Evictions() != 1 {
		t.Errorf("Evictions() = %d, want 1", rl.Evictions())
	}

	rl.mu.Lock()
	_, stillThere := rl.entries["ip-0"]
	rl.mu.Unlock()
	if stillThere {
		t.Error("least recently seen identifier was not evicted")
	}
}

func TestRateLimiter_StopIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	rl.Stop()
	rl.Stop()
}
