package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/ebogdum/vizgate/store"
)

// StrategyRegistry maps platform types to their authentication strategy
type StrategyRegistry struct {
	strategies map[store.PlatformType]PlatformAuthenticator
}

// NewStrategyRegistry creates an empty registry
func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{strategies: make(map[store.PlatformType]PlatformAuthenticator)}
}

// NewDefaultRegistry registers the built-in trusted and signed strategies
func NewDefaultRegistry(users UserLookup, skew time.Duration) *StrategyRegistry {
	r := NewStrategyRegistry()
	r.Register(store.PlatformTrusted, NewTrustedStrategy(users))
	r.Register(store.PlatformSigned, NewSignedStrategy(users, skew))
	return r
}

// Register binds a strategy to a platform type, replacing any previous one
func (r *StrategyRegistry) Register(t store.PlatformType, s PlatformAuthenticator) {
	r.strategies[t] = s
}

// Lookup returns the strategy for a platform type
func (r *StrategyRegistry) Lookup(t store.PlatformType) (PlatformAuthenticator, bool) {
	s, ok := r.strategies[t]
	return s, ok
}

// UserLookup loads users by username
type UserLookup interface {
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
}

// TrustedStrategy accepts the username asserted by the platform
type TrustedStrategy struct {
	users UserLookup
}

func NewTrustedStrategy(users UserLookup) *TrustedStrategy {
	return &TrustedStrategy{users: users}
}

// CheckUser loads the user named by the username parameter
func (s *TrustedStrategy) CheckUser(ctx context.Context, platform *store.Platform, params url.Values) (*store.User, error) {
	return loadUser(ctx, s.users, params.Get("username"))
}

// SignedStrategy requires the platform to sign username and timestamp with its check code
type SignedStrategy struct {
	users UserLookup
	skew  time.Duration
	now   func() time.Time
}

func NewSignedStrategy(users UserLookup, skew time.Duration) *SignedStrategy {
	if skew <= 0 {
		skew = 5 * time.Minute
	}
	return &SignedStrategy{users: users, skew: skew, now: time.Now}
}

// CheckUser verifies the signature parameter and loads the signed user
func (s *SignedStrategy) CheckUser(ctx context.Context, platform *store.Platform, params url.Values) (*store.User, error) {
	username := params.Get("username")
	timestamp := params.Get("timestamp")
	signature := params.Get("signature")
	if username == "" || timestamp == "" || signature == "" {
		return nil, nil
	}
	if platform.CheckCode == "" {
		return nil, errors.New("platform has no check code")
	}

	issued, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp: %w", err)
	}
	age := s.now().Sub(time.Unix(issued, 0))
	if age > s.skew || age < -s.skew {
		return nil, errors.New("signature timestamp outside allowed window")
	}

	given, err := hex.DecodeString(signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if !hmac.Equal(given, Sign(platform.CheckCode, username, timestamp)) {
		return nil, errors.New("signature mismatch")
	}

	return loadUser(ctx, s.users, username)
}

// Sign computes HMAC-SHA256(checkCode, username+timestamp)
func Sign(checkCode, username, timestamp string) []byte {
	mac := hmac.New(sha256.New, []byte(checkCode))
	mac.Write([]byte(username + timestamp))
	return mac.Sum(nil)
}

func loadUser(ctx context.Context, users UserLookup, username string) (*store.User, error) {
	if username == "" {
		return nil, nil
	}
	u, err := users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}
