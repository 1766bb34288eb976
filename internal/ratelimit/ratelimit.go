package ratelimit

// Limiter reports whether a request identified by key is within quota.
type Limiter interface {
	Allow(key string) bool
}
