// Package utils provides path-safety helpers shared by the classifier, the
// physical store and the template source.
package utils

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// IsHidden reports whether a path segment is dot-prefixed.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// ValidateSegment checks one path segment for patterns that could escape
// the confining root: the parent-directory token, embedded separators,
// absolute or drive-prefixed forms, and their URL-encoded spellings.
// Hidden (dot-prefixed) names are a policy decision left to the caller.
//
// The check runs before any physical-path computation; a segment that fails
// here must never reach the store.
func ValidateSegment(name string) error {
	if name == "" {
		return fmt.Errorf("empty segment")
	}
	if name == "." || name == ".." {
		return fmt.Errorf("directory reference segment: %q", name)
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("segment contains separator: %q", name)
	}
	if len(name) >= 2 && name[1] == ':' {
		return fmt.Errorf("drive-prefixed segment: %q", name)
	}
	// Re-check the percent-decoded spelling so encoded traversal
	// (%2e%2e, %2f, %5c) cannot slip through. Segments that are not
	// valid escapes are taken literally.
	if decoded, err := url.PathUnescape(name); err == nil && decoded != name {
		if decoded == "." || decoded == ".." || strings.ContainsAny(decoded, "/\\") {
			return fmt.Errorf("encoded traversal segment: %q", name)
		}
	}
	return nil
}

// SplitPath splits a slash-separated path into validated segments. A single
// leading or trailing separator is tolerated (kernel bridges deliver paths
// both ways); empty interior segments and traversal segments fail.
// The empty path and "/" split to nil.
func SplitPath(p string) ([]string, error) {
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return nil, nil
	}
	parts := strings.Split(p, "/")
	for _, s := range parts {
		if err := ValidateSegment(s); err != nil {
			return nil, err
		}
	}
	return parts, nil
}

// SecureJoin joins path elements under base and guarantees the result stays
// inside base. Unlike filepath.Join alone, the joined result is re-checked
// against the base prefix, so a hostile element cannot escape through
// traversal that survived earlier checks.
func SecureJoin(base string, elements ...string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("base path cannot be empty")
	}

	cleanBase := filepath.Clean(base)
	fullPath := filepath.Join(append([]string{cleanBase}, elements...)...)

	if fullPath != cleanBase &&
		!strings.HasPrefix(fullPath, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes base directory")
	}
	return fullPath, nil
}
