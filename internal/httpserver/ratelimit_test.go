package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllowsUpToMaxThenRejects(t *testing.T) {
	rl := newRateLimiter()
	defer rl.Stop()

	cfg := rateLimitConfig{MaxRequests: 3, Window: time.Minute}
	for i := 0; i < 3; i++ {
		allowed, remaining, _ := rl.allow("client-a", cfg)
		if !allowed {
			t.Fatalf("request %d: expected allow, got rejected", i)
		}
		if remaining != cfg.MaxRequests-1-i {
			t.Fatalf("request %d: unexpected remaining %d", i, remaining)
		}
	}
	if allowed, _, _ := rl.allow("client-a", cfg); allowed {
		t.Fatal("expected the 4th request in the window to be rejected")
	}
}

func TestRateLimiterTracksKeysIndependently(t *testing.T) {
	rl := newRateLimiter()
	defer rl.Stop()

	cfg := rateLimitConfig{MaxRequests: 1, Window: time.Minute}
	if allowed, _, _ := rl.allow("client-a", cfg); !allowed {
		t.Fatal("expected first request from client-a to be allowed")
	}
	if allowed, _, _ := rl.allow("client-b", cfg); !allowed {
		t.Fatal("client-b should not be throttled by client-a's usage")
	}
	if allowed, _, _ := rl.allow("client-a", cfg); allowed {
		t.Fatal("client-a should now be over budget")
	}
}

func TestRateLimiterHandlerReturns429WithHeaders(t *testing.T) {
	rl := newRateLimiter()
	defer rl.Stop()

	cfg := rateLimitConfig{MaxRequests: 1, Window: time.Minute}
	h := rl.handler(cfg, func(*http.Request) string { return "only-client" }, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)

	rec1 := httptest.NewRecorder()
	h(rec1, req)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected first request through, got %d", rec1.Code)
	}

	rec2 := httptest.NewRecorder()
	h(rec2, req)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec2.Code)
	}
	if rec2.Header().Get("Retry-After") == "" {
		t.Fatal("expected a Retry-After header on rejection")
	}
}

func TestClientIPPrefersForwardedForThenRealIPThenRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	if ip := clientIP(req); ip != "10.0.0.1" {
		t.Fatalf("expected RemoteAddr fallback, got %q", ip)
	}

	req.Header.Set("X-Real-IP", "192.168.1.5")
	if ip := clientIP(req); ip != "192.168.1.5" {
		t.Fatalf("expected X-Real-IP to win over RemoteAddr, got %q", ip)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.2")
	if ip := clientIP(req); ip != "203.0.113.9" {
		t.Fatalf("expected first X-Forwarded-For hop to win, got %q", ip)
	}
}
