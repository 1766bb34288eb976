package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIPIgnoresForwardedHeaderFromUntrustedPeer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:4455"
	req.Header.Set("X-Forwarded-For", "198.51.100.9")

	if got := ClientIP(req, nil); got != "203.0.113.7" {
		t.Fatalf("client ip = %q, want direct peer", got)
	}
}

func TestClientIPUsesForwardedChainBehindTrustedProxy(t *testing.T) {
	trusted, err := NewTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("new trusted proxies: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:4455"
	req.Header.Set("X-Forwarded-For", "198.51.100.9, 10.9.9.9")

	if got := ClientIP(req, trusted); got != "198.51.100.9" {
		t.Fatalf("client ip = %q, want first untrusted hop", got)
	}
}

func TestNewTrustedProxiesRejectsGarbage(t *testing.T) {
	if _, err := NewTrustedProxies([]string{"not-an-ip"}); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestNewTrustedProxiesEmptyMeansTrustNone(t *testing.T) {
	trusted, err := NewTrustedProxies(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trusted != nil {
		t.Fatalf("expected nil allowlist for empty input")
	}
}
