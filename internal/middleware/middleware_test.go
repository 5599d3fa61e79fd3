package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mmeshcher/checkout-saga/internal/logger"
	"github.com/mmeshcher/checkout-saga/internal/model"
)

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFrom(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" {
		t.Fatalf("request id not generated")
	}
	if got := w.Header().Get(RequestIDHeader); got != seen {
		t.Fatalf("response header = %q, want %q", got, seen)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "abc-123")
	h.ServeHTTP(httptest.NewRecorder(), r)
	if seen != "abc-123" {
		t.Fatalf("request id = %q, want client value", seen)
	}
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	h := RequestID(Logger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	r := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	r = r.WithContext(WithPrincipal(r.Context(), model.Principal{UserID: 5}))
	h.ServeHTTP(httptest.NewRecorder(), r)

	entries := logs.FilterMessage("http request").All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) {
		t.Fatalf("status field = %v", fields["status"])
	}
	if fields["path"] != "/api/orders" {
		t.Fatalf("path field = %v", fields["path"])
	}
	if fields["user_id"] != int64(5) {
		t.Fatalf("user_id field = %v", fields["user_id"])
	}
	if fields["request_id"] == "" || fields["request_id"] == nil {
		t.Fatalf("request_id field missing")
	}
}

func TestMetrics_PassesThrough(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/api/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders/1", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(1, 2)
	now := time.Now()
	l.now = func() time.Time { return now }

	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	do := func(remote string, p *model.Principal) int {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = remote
		if p != nil {
			r = r.WithContext(WithPrincipal(r.Context(), *p))
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := do("10.0.0.1:1000", nil); code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, code)
		}
	}
	if code := do("10.0.0.1:1001", nil); code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", code)
	}
	if code := do("10.0.0.2:1000", nil); code != http.StatusOK {
		t.Fatalf("other ip: status = %d, want 200", code)
	}
	if code := do("10.0.0.1:1000", &model.Principal{UserID: 3}); code != http.StatusOK {
		t.Fatalf("authenticated user: status = %d, want 200", code)
	}

	now = now.Add(10 * time.Minute)
	if code := do("10.0.0.1:1000", nil); code != http.StatusOK {
		t.Fatalf("after idle: status = %d, want 200", code)
	}
}
