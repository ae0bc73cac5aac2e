// Package pathutil resolves base-relative file paths without letting them
// escape the configured base directory.
package pathutil

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrOutsideBase is returned for paths that resolve above the base directory
var ErrOutsideBase = errors.New("path escapes base directory")

// ErrInvalidPath is returned for empty paths or paths with control characters
var ErrInvalidPath = errors.New("invalid path")

// Clean normalizes a base-relative path. A leading separator refers to the base
// itself, so "/a//b/" and "a/b" both clean to "/a/b". Traversal above the base
// is rejected even when a later segment would come back down.
func Clean(rel string) (string, error) {
	if strings.ContainsRune(rel, 0) {
		return "", ErrInvalidPath
	}

	depth := 0
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		switch part {
		case "", ".":
		case "..":
			depth--
			if depth < 0 {
				return "", ErrOutsideBase
			}
		default:
			depth++
		}
	}

	return filepath.Clean("/" + strings.TrimPrefix(filepath.ToSlash(rel), "/")), nil
}

// SafeJoin joins base with a base-relative path and checks, after resolving
// symlinks where possible, that the result stays under base.
func SafeJoin(base, rel string) (string, error) {
	cleanBase := filepath.Clean(base)

	cleanRel, err := Clean(rel)
	if err != nil {
		return "", err
	}

	joined := filepath.Join(cleanBase, strings.TrimPrefix(cleanRel, "/"))

	// the target may not exist yet; fall back to its nearest existing parent
	probe := joined
	for {
		resolved, err := filepath.EvalSymlinks(probe)
		if err == nil {
			resolvedBase, baseErr := filepath.EvalSymlinks(cleanBase)
			if baseErr != nil {
				resolvedBase = cleanBase
			}
			if !Within(resolvedBase, resolved) {
				return "", ErrOutsideBase
			}
			break
		}
		parent := filepath.Dir(probe)
		if parent == probe || !Within(cleanBase, parent) {
			break
		}
		probe = parent
	}

	if !Within(cleanBase, joined) {
		return "", ErrOutsideBase
	}
	return joined, nil
}

// Within reports whether path is base or lies below it
func Within(base, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(base), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// ValidatePath rejects empty paths, control characters and traversal above the base
func ValidatePath(path string) error {
	if path == "" {
		return ErrInvalidPath
	}

	for _, char := range path {
		if char < 32 && char != '\t' {
			return ErrInvalidPath
		}
	}

	_, err := Clean(path)
	return err
}
