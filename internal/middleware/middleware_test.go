package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashureev/timem/internal/identity"
)

func TestRateLimiterPerIdentity(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	base := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return base }

	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(id string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
		req = req.WithContext(identity.WithUserID(req.Context(), id))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if do("a") != http.StatusOK || do("a") != http.StatusOK {
		t.Fatal("first two requests should pass")
	}
	if code := do("a"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := do("b"); code != http.StatusOK {
		t.Fatalf("other identity should not be limited, got %d", code)
	}

	base = base.Add(time.Minute)
	if code := do("a"); code != http.StatusOK {
		t.Fatalf("bucket should refill after the window, got %d", code)
	}
}

func TestRateLimiterEvictsIdle(t *testing.T) {
	rl := NewRateLimiter(1, time.Second)
	base := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return base }

	rl.Allow("old")
	base = base.Add(time.Hour)
	rl.Allow("new")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.limiters["old"]; ok {
		t.Fatal("idle limiter should be evicted")
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("preflight should return 200, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Fatalf("missing allow-origin header")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTeapot {
		t.Fatalf("request should pass through, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected allow-origin for disallowed origin")
	}
}
