package auth

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ebogdum/vizgate/store"
)

type fakeStore struct {
	platforms   map[string][]*store.Platform
	users       map[string]*store.User
	platformErr error
	userErr     error
}

func (f *fakeStore) GetPlatformsByCode(ctx context.Context, code string) ([]*store.Platform, error) {
	if f.platformErr != nil {
		return nil, f.platformErr
	}
	return f.platforms[code], nil
}

func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	if f.userErr != nil {
		return nil, f.userErr
	}
	u, ok := f.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

type fakeTokens struct {
	usernames map[string]string
}

func (f *fakeTokens) Username(header string) (string, error) {
	username, ok := f.usernames[header]
	if !ok {
		return "", ErrInvalidToken
	}
	return username, nil
}

type fakeStrategy struct {
	user   *store.User
	err    error
	params url.Values
}

func (f *fakeStrategy) CheckUser(ctx context.Context, platform *store.Platform, params url.Values) (*store.User, error) {
	f.params = params
	return f.user, f.err
}

const customType store.PlatformType = "custom"

func newTestGate(strategy *fakeStrategy) (*Gate, *fakeStore) {
	alice := &store.User{ID: 1, Username: "alice", Active: true}
	credentials := &fakeStore{
		platforms: map[string][]*store.Platform{
			"abc": {
				{ID: 1, Name: "crm", Type: customType, Code: "abc"},
				{ID: 2, Name: "crm-copy", Type: customType, Code: "abc"},
			},
			"orphan": {{ID: 3, Name: "legacy", Type: "unregistered", Code: "orphan"}},
		},
		users: map[string]*store.User{"alice": alice},
	}
	tokens := &fakeTokens{usernames: map[string]string{
		"Bearer good":  "alice",
		"Bearer ghost": "nobody",
	}}

	registry := NewStrategyRegistry()
	registry.Register(customType, strategy)

	return NewGate(credentials, tokens, registry, zap.NewNop()), credentials
}

func TestGateEvaluate(t *testing.T) {
	bob := &store.User{ID: 2, Username: "bob"}

	tests := []struct {
		name         string
		mode         AccessMode
		target       string
		authHeader   string
		strategy     *fakeStrategy
		wantDecision Decision
		wantStatus   int
		wantMessage  string
		wantErr      error
		wantUser     string
		wantPlatform int64
	}{
		{
			name:         "ignored route skips everything",
			mode:         AccessIgnore,
			target:       "/",
			wantDecision: Allow,
		},
		{
			name:        "missing auth code",
			mode:        AccessStandard,
			target:      "/",
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "authentication error",
			wantErr:     ErrMissingCredential,
		},
		{
			name:        "empty auth code",
			mode:        AccessShared,
			target:      "/?auth_code=",
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "authentication error",
			wantErr:     ErrMissingCredential,
		},
		{
			name:        "unknown platform",
			mode:        AccessStandard,
			target:      "/?auth_code=nope",
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "authentication error",
			wantErr:     ErrUnknownPlatform,
		},
		{
			name:         "shared without header",
			mode:         AccessShared,
			target:       "/?auth_code=abc",
			wantDecision: Allow,
			wantPlatform: 1,
		},
		{
			name:         "shared with non bearer header",
			mode:         AccessShared,
			target:       "/?auth_code=abc",
			authHeader:   "Basic dXNlcjpwYXNz",
			wantDecision: Allow,
			wantPlatform: 1,
		},
		{
			name:         "shared with valid token",
			mode:         AccessShared,
			target:       "/?auth_code=abc",
			authHeader:   "Bearer good",
			wantDecision: Allow,
			wantUser:     "alice",
			wantPlatform: 1,
		},
		{
			name:        "shared with invalid token",
			mode:        AccessShared,
			target:      "/?auth_code=abc",
			authHeader:  "Bearer forged",
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "authentication error",
			wantErr:     ErrInvalidToken,
		},
		{
			name:        "shared token for unknown user",
			mode:        AccessShared,
			target:      "/?auth_code=abc",
			authHeader:  "Bearer ghost",
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "authentication error",
			wantErr:     ErrUnknownUser,
		},
		{
			name:         "standard strategy returns user",
			mode:         AccessStandard,
			target:       "/?auth_code=abc&username=bob",
			strategy:     &fakeStrategy{user: bob},
			wantDecision: Allow,
			wantUser:     "bob",
			wantPlatform: 1,
		},
		{
			name:        "standard strategy returns nothing",
			mode:        AccessStandard,
			target:      "/?auth_code=abc",
			strategy:    &fakeStrategy{},
			wantStatus:  http.StatusForbidden,
			wantMessage: "permission error",
			wantErr:     ErrStrategyDenied,
		},
		{
			name:        "standard strategy fails",
			mode:        AccessStandard,
			target:      "/?auth_code=abc",
			strategy:    &fakeStrategy{err: errors.New("upstream unavailable")},
			wantStatus:  http.StatusForbidden,
			wantMessage: "permission error",
			wantErr:     ErrStrategyFailed,
		},
		{
			name:        "standard with unregistered platform type",
			mode:        AccessStandard,
			target:      "/?auth_code=orphan",
			strategy:    &fakeStrategy{user: bob},
			wantStatus:  http.StatusForbidden,
			wantMessage: "permission error",
			wantErr:     ErrStrategyFailed,
		},
		{
			name:         "standard ignores bearer token",
			mode:         AccessStandard,
			target:       "/?auth_code=abc",
			authHeader:   "Bearer forged",
			strategy:     &fakeStrategy{user: bob},
			wantDecision: Allow,
			wantUser:     "bob",
			wantPlatform: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy := tt.strategy
			if strategy == nil {
				strategy = &fakeStrategy{}
			}
			gate, _ := newTestGate(strategy)

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			outcome := gate.Evaluate(req.Context(), tt.mode, req)

			if tt.wantErr != nil {
				if outcome.Allowed() {
					t.Fatalf("expected deny, got allow")
				}
				if !errors.Is(outcome.Err, tt.wantErr) {
					t.Errorf("expected error %v, got %v", tt.wantErr, outcome.Err)
				}
				if outcome.Status != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, outcome.Status)
				}
				if outcome.Message != tt.wantMessage {
					t.Errorf("expected message %q, got %q", tt.wantMessage, outcome.Message)
				}
				if outcome.Platform != nil || outcome.User != nil {
					t.Error("denied outcome must not carry identity")
				}
				return
			}

			if outcome.Decision != tt.wantDecision {
				t.Fatalf("expected decision %v, got %v (err %v)", tt.wantDecision, outcome.Decision, outcome.Err)
			}
			if tt.wantPlatform == 0 && outcome.Platform != nil {
				t.Errorf("expected no platform, got %d", outcome.Platform.ID)
			}
			if tt.wantPlatform != 0 && (outcome.Platform == nil || outcome.Platform.ID != tt.wantPlatform) {
				t.Errorf("expected platform %d, got %+v", tt.wantPlatform, outcome.Platform)
			}
			switch {
			case tt.wantUser == "" && outcome.User != nil:
				t.Errorf("expected no user, got %s", outcome.User.Username)
			case tt.wantUser != "" && (outcome.User == nil || outcome.User.Username != tt.wantUser):
				t.Errorf("expected user %s, got %+v", tt.wantUser, outcome.User)
			}
		})
	}
}

func TestGateStoreFailure(t *testing.T) {
	gate, credentials := newTestGate(&fakeStrategy{})
	credentials.platformErr = errors.New("connection refused")

	req := httptest.NewRequest(http.MethodGet, "/?auth_code=abc", nil)
	outcome := gate.Evaluate(req.Context(), AccessStandard, req)

	if outcome.Allowed() {
		t.Fatal("expected deny")
	}
	if outcome.Status != http.StatusInternalServerError || outcome.Message != "internal error" {
		t.Errorf("expected 500 internal error, got %d %q", outcome.Status, outcome.Message)
	}
}

func TestGateReadsFormBody(t *testing.T) {
	strategy := &fakeStrategy{user: &store.User{Username: "bob"}}
	gate, _ := newTestGate(strategy)

	body := strings.NewReader(url.Values{"auth_code": {"abc"}, "username": {"bob"}}.Encode())
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	outcome := gate.Evaluate(req.Context(), AccessStandard, req)
	if !outcome.Allowed() {
		t.Fatalf("expected allow, got %d %v", outcome.Status, outcome.Err)
	}
	if strategy.params.Get("username") != "bob" {
		t.Errorf("expected strategy to receive form params, got %v", strategy.params)
	}
}

func TestGateReadsMultipartBody(t *testing.T) {
	strategy := &fakeStrategy{user: &store.User{Username: "bob"}}
	gate, _ := newTestGate(strategy)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("auth_code", "abc")
	mw.WriteField("username", "bob")
	part, err := mw.CreateFormFile("file", "a.csv")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("1,2\n"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	outcome := gate.Evaluate(req.Context(), AccessStandard, req)
	if !outcome.Allowed() {
		t.Fatalf("expected allow, got %d %v", outcome.Status, outcome.Err)
	}
	if strategy.params.Get("username") != "bob" {
		t.Errorf("expected strategy to receive multipart fields, got %v", strategy.params)
	}
	if req.MultipartForm == nil || len(req.MultipartForm.File["file"]) != 1 {
		t.Error("expected file part to stay available to the handler")
	}
}

func TestGateOversizedBody(t *testing.T) {
	gate, _ := newTestGate(&fakeStrategy{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("auth_code", "abc")
	mw.WriteField("blob", strings.Repeat("x", 4096))
	mw.Close()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Body = http.MaxBytesReader(rec, req.Body, 1024)

	outcome := gate.Evaluate(req.Context(), AccessStandard, req)
	if outcome.Status != http.StatusRequestEntityTooLarge || outcome.Message != MessageTooLarge {
		t.Errorf("expected 413 %q, got %d %q", MessageTooLarge, outcome.Status, outcome.Message)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrMissingCredential, http.StatusUnauthorized},
		{ErrUnknownPlatform, http.StatusUnauthorized},
		{ErrInvalidToken, http.StatusUnauthorized},
		{ErrUnknownUser, http.StatusUnauthorized},
		{ErrStrategyDenied, http.StatusForbidden},
		{ErrStrategyFailed, http.StatusForbidden},
		{ErrRequestTooLarge, http.StatusRequestEntityTooLarge},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
