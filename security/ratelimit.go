package security

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultMaxLimiters bounds the number of identifiers tracked at once.
	DefaultMaxLimiters = 10000

	defaultLimiterIdleTimeout = 30 * time.Minute
	defaultLimiterSweepEvery  = 5 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-identifier token bucket (typically keyed by client IP).
// Idle identifiers are swept periodically; when the table is full the entry
// seen least recently is evicted.
type RateLimiter struct {
	mu         sync.Mutex
	entries    map[string]*limiterEntry
	limit      rate.Limit
	burst      int
	maxEntries int
	logger     *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once

	evictions int64
}

// NewRateLimiter creates a limiter allowing requestsPerSecond with the given
// burst per identifier and starts its sweeper. Call Stop to release it.
func NewRateLimiter(requestsPerSecond, burst int, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}

	rl := &RateLimiter{
		entries:    make(map[string]*limiterEntry),
		limit:      rate.Limit(requestsPerSecond),
		burst:      burst,
		maxEntries: DefaultMaxLimiters,
		logger:     logger,
		stop:       make(chan struct{}),
	}

	go rl.sweepLoop(defaultLimiterSweepEvery, defaultLimiterIdleTimeout)

	return rl
}

// Allow reports whether one more request from identifier fits the budget.
func (rl *RateLimiter) Allow(identifier string) bool {
	return rl.allowAt(identifier, time.Now())
}

func (rl *RateLimiter) allowAt(identifier string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, ok := rl.entries[identifier]
	if !ok {
		if rl.maxEntries > 0 && len(rl.entries) >= rl.maxEntries {
			rl.evictOldestLocked()
		}
		e = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.entries[identifier] = e
	}
	e.lastSeen = now

	return e.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) evictOldestLocked() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, e := range rl.entries {
		if oldestID == "" || e.lastSeen.Before(oldest) {
			oldestID, oldest = id, e.lastSeen
		}
	}
	if oldestID != "" {
		delete(rl.entries, oldestID)
		rl.evictions++
	}
}

func (rl *RateLimiter) sweepLoop(every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			rl.sweep(now, idle)
		case <-rl.stop:
			return
		}
	}
}

// sweep drops identifiers not seen for longer than idle.
func (rl *RateLimiter) sweep(now time.Time, idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for id, e := range rl.entries {
		if now.Sub(e.lastSeen) > idle {
			delete(rl.entries, id)
			removed++
		}
	}

	if removed > 0 {
		rl.logger.Debug("Rate limiter sweep completed",
			"removed", removed,
			"remaining", len(rl.entries))
	}
	return removed
}

// Len returns the number of tracked identifiers.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.entries)
}

// Evictions returns how many identifiers were evicted because the table was full.
func (rl *RateLimiter) Evictions() int64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.evictions
}

// Stop terminates the sweeper. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}
