package auth

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/ebogdum/vizgate/core/log"
	"github.com/ebogdum/vizgate/metrics"
	"github.com/ebogdum/vizgate/store"
)

// AuthCodeParam is the request parameter naming the calling platform
const AuthCodeParam = "auth_code"

// MultipartMemory is the part of a multipart body kept in memory while parsing
const MultipartMemory = 32 << 20

// Decision is the verdict of the gate
type Decision int

const (
	Allow Decision = iota
	Deny
)

// Outcome describes how the gate handled a request. Denied outcomes carry
// the HTTP status and body message to respond with.
type Outcome struct {
	Decision Decision
	Platform *store.Platform
	User     *store.User
	Status   int
	Message  string
	Err      error
}

// Allowed reports whether the request may proceed
func (o Outcome) Allowed() bool {
	return o.Decision == Allow
}

// Gate authenticates requests against the credential store
type Gate struct {
	store      CredentialStore
	tokens     TokenParser
	strategies *StrategyRegistry
	logger     *zap.Logger
}

// NewGate creates a request gate
func NewGate(credentials CredentialStore, tokens TokenParser, strategies *StrategyRegistry, logger *zap.Logger) *Gate {
	return &Gate{
		store:      credentials,
		tokens:     tokens,
		strategies: strategies,
		logger:     logger,
	}
}

// Evaluate runs the gate for a request under the given access mode
func (g *Gate) Evaluate(ctx context.Context, mode AccessMode, r *http.Request) Outcome {
	outcome := g.evaluate(ctx, mode, r)
	metrics.GateDecisionsTotal.WithLabelValues(mode.String(), outcomeLabel(outcome)).Inc()
	return outcome
}

func (g *Gate) evaluate(ctx context.Context, mode AccessMode, r *http.Request) Outcome {
	if mode == AccessIgnore {
		return Outcome{Decision: Allow}
	}

	params, err := requestParams(r)
	if err != nil {
		g.logger.Debug("Failed to parse request parameters", zap.Error(err))
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return deny(fmt.Errorf("%w: %v", ErrRequestTooLarge, err))
		}
		return deny(fmt.Errorf("%w: %v", ErrMissingCredential, err))
	}

	codes, ok := params[AuthCodeParam]
	if !ok || len(codes) == 0 || codes[0] == "" {
		return deny(ErrMissingCredential)
	}
	code := codes[0]

	platforms, err := g.store.GetPlatformsByCode(ctx, code)
	if err != nil {
		g.logger.Error("Failed to look up platform", log.AuthCode(code), zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("gate", "store").Inc()
		return deny(fmt.Errorf("failed to look up platform: %w", err))
	}
	if len(platforms) == 0 {
		g.logger.Debug("No platform for auth code", log.AuthCode(code))
		return deny(ErrUnknownPlatform)
	}
	if len(platforms) > 1 {
		g.logger.Warn("Auth code shared by several platforms, using the first",
			log.AuthCode(code), zap.Int("count", len(platforms)))
	}
	platform := platforms[0]

	var user *store.User
	switch mode {
	case AccessShared:
		user, err = g.sharedUser(ctx, r.Header.Get("Authorization"))
	default:
		user, err = g.platformUser(ctx, platform, params)
	}
	if err != nil {
		return deny(err)
	}

	return Outcome{Decision: Allow, Platform: platform, User: user}
}

// sharedUser resolves the optional bearer token of a shared-access request
func (g *Gate) sharedUser(ctx context.Context, header string) (*store.User, error) {
	if !HasBearer(header) {
		return nil, nil
	}

	username, err := g.tokens.Username(header)
	if err != nil {
		g.logger.Debug("Rejected shared token", zap.Error(err))
		if errors.Is(err, ErrInvalidToken) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	user, err := g.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.logger.Debug("Shared token names unknown user", log.Username(username))
			return nil, ErrUnknownUser
		}
		g.logger.Error("Failed to look up user", log.Username(username), zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("gate", "store").Inc()
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return user, nil
}

// platformUser delegates to the strategy registered for the platform type.
// Every failure of the strategy is reported as a permission error.
func (g *Gate) platformUser(ctx context.Context, platform *store.Platform, params url.Values) (*store.User, error) {
	strategy, ok := g.strategies.Lookup(platform.Type)
	if !ok {
		g.logger.Warn("No strategy registered for platform type",
			zap.String("platform_type", string(platform.Type)), zap.Int64("platform_id", platform.ID))
		return nil, fmt.Errorf("%w: no strategy for %q", ErrStrategyFailed, platform.Type)
	}

	user, err := strategy.CheckUser(ctx, platform, params)
	if err != nil {
		g.logger.Info("Platform strategy failed",
			zap.Int64("platform_id", platform.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStrategyFailed, err)
	}
	if user == nil {
		return nil, ErrStrategyDenied
	}
	return user, nil
}

// requestParams returns query and form values, parsing the body once.
// Multipart bodies are parsed too so form fields reach the strategies.
func requestParams(r *http.Request) (url.Values, error) {
	if isMultipart(r) {
		if r.MultipartForm == nil {
			if err := r.ParseMultipartForm(MultipartMemory); err != nil {
				return nil, err
			}
		}
		return r.Form, nil
	}
	if r.Form == nil {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
	}
	return r.Form, nil
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

func deny(err error) Outcome {
	status := StatusFor(err)
	return Outcome{
		Decision: Deny,
		Status:   status,
		Message:  messageFor(status),
		Err:      err,
	}
}

func outcomeLabel(o Outcome) string {
	switch {
	case o.Allowed():
		return "allow"
	case o.Status == http.StatusUnauthorized:
		return "unauthenticated"
	case o.Status == http.StatusForbidden:
		return "forbidden"
	case o.Status == http.StatusRequestEntityTooLarge:
		return "too_large"
	default:
		return "error"
	}
}
