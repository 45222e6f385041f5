// Package project resolves project roots and template directories. The
// overlay consumes already-parsed configuration; everything here deals in
// markers, directories and modes, never in configuration file syntax.
package project

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// Locator finds the nearest project root by walking up from a starting path
// until the marker entry is found. The walk never leaves the boundary
// directory, so unrelated directories above the store can never be claimed
// as projects.
type Locator struct {
	marker   string
	boundary string
}

// NewLocator returns a Locator for the given marker, a slash-separated path
// relative to each candidate root. The boundary is the absolute directory
// the walk must stay inside.
func NewLocator(marker, boundary string) *Locator {
	return &Locator{marker: filepath.FromSlash(marker), boundary: filepath.Clean(boundary)}
}

// Find walks up from startPath and returns the first directory carrying the
// marker. The boolean reports whether one was found.
func (l *Locator) Find(ctx context.Context, startPath string) (string, bool) {
	current := filepath.Clean(startPath)
	for {
		if err := ctx.Err(); err != nil {
			return "", false
		}
		if !l.inside(current) {
			return "", false
		}
		if l.hasMarker(current) {
			return current, true
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", false
		}
		current = parent
	}
}

func (l *Locator) hasMarker(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, l.marker))
	return err == nil && !info.IsDir()
}

func (l *Locator) inside(dir string) bool {
	if dir == l.boundary {
		return true
	}
	return strings.HasPrefix(dir, l.boundary+string(filepath.Separator))
}
