package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ebogdum/vizgate/config"
)

func TestRequestIDMiddleware(t *testing.T) {
	existing := uuid.NewString()

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated when missing", "", false},
		{"kept when valid", existing, true},
		{"replaced when malformed", "not-a-uuid", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := V1RequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			if got != seen {
				t.Errorf("header %q and context %q differ", got, seen)
			}
			if tt.keep && got != tt.incoming {
				t.Errorf("expected incoming id to be kept, got %q", got)
			}
			if !tt.keep {
				if got == tt.incoming {
					t.Error("expected a new id")
				}
				if _, err := uuid.Parse(got); err != nil {
					t.Errorf("expected a uuid, got %q", got)
				}
			}
		})
	}
}

func TestClientRateLimiter(t *testing.T) {
	l := NewClientRateLimiter(config.LimiterConfig{RequestsPerSecond: 1, Burst: 2, CleanupInterval: time.Minute})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if !l.Allow("10.0.0.1") || !l.Allow("10.0.0.1") {
		t.Fatal("expected burst to be allowed")
	}
	if l.Allow("10.0.0.1") {
		t.Fatal("expected third request to be limited")
	}
	if !l.Allow("10.0.0.2") {
		t.Fatal("expected other clients to have their own bucket")
	}

	now = now.Add(time.Second)
	if !l.Allow("10.0.0.1") {
		t.Fatal("expected a token after one second")
	}

	now = now.Add(2 * time.Minute)
	if removed := l.Cleanup(); removed != 2 {
		t.Fatalf("expected 2 idle clients removed, got %d", removed)
	}
	if len(l.clients) != 0 {
		t.Errorf("expected no clients left, got %d", len(l.clients))
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	l := NewClientRateLimiter(config.LimiterConfig{RequestsPerSecond: 0.001, Burst: 1})
	h := V1RateLimitMiddleware(l, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for _, addr := range []string{"192.0.2.1:1000", "192.0.2.1:2000", "192.0.2.2:1000"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	want := []int{http.StatusNoContent, http.StatusTooManyRequests, http.StatusNoContent}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d: expected %d, got %d", i, want[i], codes[i])
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := V1SecurityHeaders()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s: expected %q, got %q", header, want, got)
		}
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("expected no HSTS over plain HTTP")
	}
}

func TestBodyLimitMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		limit   int64
		size    int
		wantErr bool
	}{
		{"under limit", 16, 8, false},
		{"over limit", 16, 32, true},
		{"disabled", 0, 64, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var readErr error
			handler := V1BodyLimitMiddleware(tt.limit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, readErr = io.ReadAll(r.Body)
			}))

			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", tt.size)))
			handler.ServeHTTP(httptest.NewRecorder(), req)

			var maxErr *http.MaxBytesError
			if got := errors.As(readErr, &maxErr); got != tt.wantErr {
				t.Errorf("expected limit error %v, got %v", tt.wantErr, readErr)
			}
		})
	}
}
