package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var bg = context.Background()

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(ctx context.Context, h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequestWithContext(ctx, http.MethodGet, "/api/v1/consultations", http.NoBody)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterAllowsBurst(t *testing.T) {
	handler := NewRateLimiter(10, 10).Handler(okHandler())

	for i := range 10 {
		if rec := doRequest(bg, handler, "192.168.1.1:4000"); rec.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimiterRejectsOverLimit(t *testing.T) {
	handler := NewRateLimiter(10, 5).Handler(okHandler())

	for range 5 {
		doRequest(bg, handler, "192.168.1.1:4000")
	}
	rec := doRequest(bg, handler, "192.168.1.1:4000")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q, want 1", rec.Header().Get("Retry-After"))
	}

	// Another client has its own bucket.
	if rec := doRequest(bg, handler, "10.0.0.2:4000"); rec.Code != http.StatusOK {
		t.Errorf("other client limited: %d", rec.Code)
	}
}

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(2, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	handler := rl.Handler(okHandler())

	if rec := doRequest(bg, handler, "1.1.1.1:1"); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	if rec := doRequest(bg, handler, "1.1.1.1:1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be limited: %d", rec.Code)
	}
	now = now.Add(600 * time.Millisecond)
	if rec := doRequest(bg, handler, "1.1.1.1:1"); rec.Code != http.StatusOK {
		t.Fatalf("request after refill: %d", rec.Code)
	}
}

func TestRateLimiterKeysByPrincipal(t *testing.T) {
	handler := NewRateLimiter(1, 1).Handler(okHandler())
	ctx := WithPrincipal(context.Background(), "key-0")

	if rec := doRequest(ctx, handler, "1.1.1.1:1"); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	// Same key from a different address shares the bucket.
	if rec := doRequest(ctx, handler, "2.2.2.2:1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for same principal, got %d", rec.Code)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	now := time.Now()
	rl.now = func() time.Time { return now }
	handler := rl.Handler(okHandler())
	doRequest(bg, handler, "1.1.1.1:1")
	doRequest(bg, handler, "2.2.2.2:1")

	now = now.Add(time.Hour)
	rl.cleanup(10 * time.Minute)
	if rl.Len() != 0 {
		t.Fatalf("expected idle buckets removed, got %d", rl.Len())
	}
}
