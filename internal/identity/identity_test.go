package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddlewareReadsHeaderThenQuery(t *testing.T) {
	var seen string
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/tasks?chat_id=from-query", nil)
	req.Header.Set(HeaderName, "123456789")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || seen != "123456789" {
		t.Fatalf("expected header identity, got code=%d id=%q", rec.Code, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/ws/notifications?chat_id=from-query", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || seen != "from-query" {
		t.Fatalf("expected query identity, got code=%d id=%q", rec.Code, seen)
	}
}

func TestMiddlewareRejectsMissingOrInvalid(t *testing.T) {
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler should not be called")
	}))

	for _, id := range []string{"", "has space", "semi;colon"} {
		req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
		if id != "" {
			req.Header.Set(HeaderName, id)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("id %q: expected 401, got %d", id, rec.Code)
		}
	}
}

func TestUserIDFromContextEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := UserIDFromContext(req.Context()); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
}

func TestIPFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := IPFromRequest(req); got != "10.0.0.1" {
		t.Fatalf("expected 10.0.0.1, got %s", got)
	}
}
