package ratelimit

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucketLimiter is an in-process per-key limiter used when no Redis is
// configured (single-instance deployments and tests). Idle entries are
// evicted by a background loop.
type TokenBucketLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*keyLimiter

	stopOnce sync.Once
	stopCh   chan struct{}
}

type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

const bucketCleanupInterval = 5 * time.Minute

// NewTokenBucketLimiter creates an in-memory limiter allowing limit requests
// per window with a burst of the same size.
func NewTokenBucketLimiter(limit int, window time.Duration) (*TokenBucketLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	l := &TokenBucketLimiter{
		limit:    rate.Limit(float64(limit) / window.Seconds()),
		burst:    limit,
		limiters: make(map[string]*keyLimiter),
		stopCh:   make(chan struct{}),
	}
	go l.cleanupLoop()
	return l, nil
}

// Allow reports whether the key has budget left.
func (l *TokenBucketLimiter) Allow(key string) bool {
	if l == nil {
		return false
	}
	return l.get(key).Allow()
}

// Stop terminates the cleanup goroutine.
func (l *TokenBucketLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *TokenBucketLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if kl, ok := l.limiters[key]; ok {
		kl.lastAccess = time.Now()
		return kl.limiter
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	l.limiters[key] = &keyLimiter{limiter: limiter, lastAccess: time.Now()}
	return limiter
}

func (l *TokenBucketLimiter) cleanupLoop() {
	ticker := time.NewTicker(bucketCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCh:
			return
		}
	}
}

func (l *TokenBucketLimiter) cleanup() {
	ttl := 2 * bucketCleanupInterval
	now := time.Now()
	l.mu.Lock()
	for key, kl := range l.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(l.limiters, key)
		}
	}
	l.mu.Unlock()
}
