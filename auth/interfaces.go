// Package auth decides whether an inbound request may proceed. A request is
// identified by the platform that owns its auth code and, optionally, by a user
// resolved either from a shared bearer token or from the platform's own
// authentication strategy.
package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/ebogdum/vizgate/store"
)

// AccessMode declares how strictly a route is gated
type AccessMode int

const (
	// AccessStandard requires a platform and a user accepted by the platform strategy
	AccessStandard AccessMode = iota
	// AccessShared requires a platform; a bearer token, when present, must name a known user
	AccessShared
	// AccessIgnore bypasses the gate entirely
	AccessIgnore
)

func (m AccessMode) String() string {
	switch m {
	case AccessShared:
		return "shared"
	case AccessIgnore:
		return "ignore"
	default:
		return "standard"
	}
}

// Response messages for denied requests
const (
	MessageAuthentication = "authentication error"
	MessagePermission     = "permission error"
	MessageInternal       = "internal error"
	MessageTooLarge       = "request too large"
)

// Gate errors
var (
	ErrMissingCredential = errors.New("missing auth code")
	ErrUnknownPlatform   = errors.New("unknown platform")
	ErrInvalidToken      = errors.New("invalid token")
	ErrUnknownUser       = errors.New("unknown user")
	ErrStrategyDenied    = errors.New("platform strategy returned no user")
	ErrStrategyFailed    = errors.New("platform strategy failed")
	ErrRequestTooLarge   = errors.New("request body too large")
)

// PlatformAuthenticator resolves the calling user for a platform from the
// request parameters. A nil user with a nil error means the caller is not allowed.
type PlatformAuthenticator interface {
	CheckUser(ctx context.Context, platform *store.Platform, params url.Values) (*store.User, error)
}

// TokenParser extracts the username carried by an Authorization header value
type TokenParser interface {
	Username(header string) (string, error)
}

// CredentialStore is the subset of store.Store the gate reads
type CredentialStore interface {
	GetPlatformsByCode(ctx context.Context, code string) ([]*store.Platform, error)
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
}

// StatusFor maps a gate error to its HTTP status
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMissingCredential),
		errors.Is(err, ErrUnknownPlatform),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrUnknownUser):
		return http.StatusUnauthorized
	case errors.Is(err, ErrStrategyDenied), errors.Is(err, ErrStrategyFailed):
		return http.StatusForbidden
	case errors.Is(err, ErrRequestTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the response body message for a status
func messageFor(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return MessageAuthentication
	case http.StatusForbidden:
		return MessagePermission
	case http.StatusRequestEntityTooLarge:
		return MessageTooLarge
	default:
		return MessageInternal
	}
}
