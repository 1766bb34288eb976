package ratelimit

import (
	"testing"
	"time"
)

func TestTokenBucketLimiterBlocksAfterBurst(t *testing.T) {
	limiter, err := NewTokenBucketLimiter(2, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	defer limiter.Stop()

	if !limiter.Allow("user-1") || !limiter.Allow("user-1") {
		t.Fatalf("requests within burst should pass")
	}
	if limiter.Allow("user-1") {
		t.Fatalf("request over burst should be blocked")
	}
	if !limiter.Allow("user-2") {
		t.Fatalf("other keys must be unaffected")
	}
}

func TestTokenBucketLimiterRejectsBadConfig(t *testing.T) {
	if _, err := NewTokenBucketLimiter(0, time.Minute); err == nil {
		t.Fatalf("expected error for zero limit")
	}
	if _, err := NewTokenBucketLimiter(1, 0); err == nil {
		t.Fatalf("expected error for zero window")
	}
}

func TestTokenBucketLimiterCleanup(t *testing.T) {
	limiter, err := NewTokenBucketLimiter(1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	defer limiter.Stop()

	limiter.Allow("user-1")
	limiter.mu.Lock()
	limiter.limiters["user-1"].lastAccess = time.Now().Add(-time.Hour)
	limiter.mu.Unlock()

	limiter.cleanup()

	limiter.mu.Lock()
	_, stillThere := limiter.limiters["user-1"]
	limiter.mu.Unlock()
	if stillThere {
		t.Fatalf("idle entry should be evicted")
	}
}
