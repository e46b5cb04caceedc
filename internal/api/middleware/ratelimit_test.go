package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimitRejectsBurst(t *testing.T) {
	limiter := NewIPRateLimiter(RateLimitConfig{
		RequestsPerSecond: 1,
		Burst:             2,
		CleanupInterval:   time.Minute,
		EntryTTL:          time.Minute,
	})
	defer limiter.Stop()

	handler := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.1:5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}

	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Fatalf("first two requests = %v, want 200s", statuses[:2])
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want %d", statuses[2], http.StatusTooManyRequests)
	}
}

func TestRateLimitPerIP(t *testing.T) {
	limiter := NewIPRateLimiter(RateLimitConfig{
		RequestsPerSecond: 1,
		Burst:             1,
		CleanupInterval:   time.Minute,
		EntryTTL:          time.Minute,
	})
	defer limiter.Stop()

	if !limiter.Allow("192.0.2.1") {
		t.Fatal("first request from first IP blocked")
	}
	if limiter.Allow("192.0.2.1") {
		t.Fatal("second request from first IP allowed")
	}
	if !limiter.Allow("192.0.2.2") {
		t.Fatal("request from second IP blocked by first IP's bucket")
	}
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:41234"
	if got := extractIP(req); got != "203.0.113.7" {
		t.Errorf("extractIP = %q, want 203.0.113.7", got)
	}

	req.RemoteAddr = "203.0.113.8"
	if got := extractIP(req); got != "203.0.113.8" {
		t.Errorf("extractIP without port = %q, want 203.0.113.8", got)
	}
}
