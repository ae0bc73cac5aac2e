package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// BearerPrefix is the Authorization scheme used for shared tokens
const BearerPrefix = "Bearer"

// TokenService issues and validates HS256 bearer tokens whose subject is a username
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a token service
func NewTokenService(secret, issuer string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate signs a token for username
func (s *TokenService) Generate(username string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Username validates an Authorization header value and returns its subject
func (s *TokenService) Username(header string) (string, error) {
	claims, err := s.parse(header)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Refresh re-issues the token in header with a fresh expiry
func (s *TokenService) Refresh(header string) (string, error) {
	claims, err := s.parse(header)
	if err != nil {
		return "", err
	}
	return s.Generate(claims.Subject)
}

func (s *TokenService) parse(header string) (*jwt.RegisteredClaims, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(header), BearerPrefix))
	if raw == "" {
		return nil, ErrInvalidToken
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: expired", ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HasBearer reports whether an Authorization header value uses the bearer scheme
func HasBearer(header string) bool {
	return header != "" && strings.HasPrefix(header, BearerPrefix)
}
