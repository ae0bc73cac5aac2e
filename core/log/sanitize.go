// Package log provides secure logging utilities with data sanitization capabilities.
package log

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// SanitizationMode controls how sensitive data is handled in logs
type SanitizationMode int32

const (
	// ProductionMode hashes sensitive data for production use
	ProductionMode SanitizationMode = iota
	// DevelopmentMode shows truncated sensitive data for debugging
	DevelopmentMode
	// DebugMode shows full sensitive data (only for development)
	DebugMode
)

var currentMode atomic.Int32

func (m SanitizationMode) String() string {
	switch m {
	case DevelopmentMode:
		return "development"
	case DebugMode:
		return "debug"
	default:
		return "production"
	}
}

// ParseMode maps a configured mode name to a SanitizationMode, defaulting to production
func ParseMode(name string) SanitizationMode {
	switch strings.ToLower(name) {
	case "development":
		return DevelopmentMode
	case "debug":
		return DebugMode
	default:
		return ProductionMode
	}
}

// SetMode changes the sanitization mode for the process
func SetMode(mode SanitizationMode) {
	currentMode.Store(int32(mode))
}

// Mode returns the current sanitization mode
func Mode() SanitizationMode {
	return SanitizationMode(currentMode.Load())
}

// SanitizePath sanitizes file paths for logging based on the current mode
func SanitizePath(path string) string {
	return sanitize(path, "hash", 8, 20)
}

// SanitizeUsername sanitizes usernames for logging
func SanitizeUsername(username string) string {
	return sanitize(username, "user_hash", 6, 8)
}

// SanitizeAuthCode sanitizes platform auth codes; they are credentials and never
// logged in full outside debug mode.
func SanitizeAuthCode(code string) string {
	return sanitize(code, "code_hash", 6, 0)
}

func sanitize(value, label string, hashBytes, keep int) string {
	if value == "" {
		return ""
	}

	switch Mode() {
	case DebugMode:
		return value
	case DevelopmentMode:
		if len(value) <= keep {
			return value
		}
		if keep == 0 || len(value) < 8 {
			return "****"
		}
		return value[:4] + "****"
	default:
		hash := sha256.Sum256([]byte(value))
		return fmt.Sprintf("%s:%x", label, hash[:hashBytes])
	}
}

// Path returns a zap field carrying a sanitized path
func Path(path string) zap.Field {
	return zap.String("path", SanitizePath(path))
}

// Username returns a zap field carrying a sanitized username
func Username(username string) zap.Field {
	return zap.String("username", SanitizeUsername(username))
}

// AuthCode returns a zap field carrying a sanitized auth code
func AuthCode(code string) zap.Field {
	return zap.String("auth_code", SanitizeAuthCode(code))
}
