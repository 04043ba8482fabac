package httpapi

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultLimiterIdleTTL      = 15 * time.Minute
	defaultLimiterCleanupEvery = 2 * time.Minute
)

// creditLimiter hands out one token bucket per user for coin credits.
type creditLimiter struct {
	mutex        sync.Mutex
	entries      map[string]*limiterEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	nowFn        func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newCreditLimiter(rps float64, burst int) *creditLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &creditLimiter{
		entries:      make(map[string]*limiterEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      defaultLimiterIdleTTL,
		cleanupEvery: defaultLimiterCleanupEvery,
		nowFn:        time.Now,
	}
}

// allow reports whether userID may credit now. A nil limiter allows everything.
func (limiter *creditLimiter) allow(userID string) bool {
	if limiter == nil {
		return true
	}
	now := limiter.nowFn()
	limiter.mutex.Lock()
	entry, ok := limiter.entries[userID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(limiter.rps, limiter.burst)}
		limiter.entries[userID] = entry
	}
	entry.lastSeen = now
	limiter.mutex.Unlock()
	return entry.limiter.AllowN(now, 1)
}

func (limiter *creditLimiter) cleanup() {
	cutoff := limiter.nowFn().Add(-limiter.idleTTL)
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	for userID, entry := range limiter.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(limiter.entries, userID)
		}
	}
}

// startJanitor drops idle buckets until ctx is cancelled.
func (limiter *creditLimiter) startJanitor(ctx context.Context) {
	if limiter == nil || limiter.cleanupEvery <= 0 {
		return
	}
	ticker := time.NewTicker(limiter.cleanupEvery)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.cleanup()
			}
		}
	}()
}
