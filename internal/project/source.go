package project

import (
	"context"
	"os"
	"path/filepath"

	bperrors "github.com/blueprintfs/blueprintfs/pkg/errors"
	"github.com/blueprintfs/blueprintfs/pkg/utils"
)

// DirSource implements types.TemplateSource over one directory of templates:
// each template identifier names a direct subdirectory of the root.
type DirSource struct {
	root string
}

// NewDirSource returns a DirSource rooted at the given directory.
func NewDirSource(root string) (*DirSource, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &DirSource{root: abs}, nil
}

// Root returns the absolute templates directory.
func (s *DirSource) Root() string { return s.root }

// TemplateDir resolves a template identifier to its directory. Identifiers
// are validated as single segments before any path is computed; hidden names
// are rejected outright. A missing or non-directory template reports
// not-found.
func (s *DirSource) TemplateDir(ctx context.Context, id string) (string, error) {
	if err := utils.ValidateSegment(id); err != nil {
		return "", bperrors.InvalidPath("template", id, err.Error())
	}
	if utils.IsHidden(id) {
		return "", bperrors.InvalidPath("template", id, "hidden template name")
	}
	dir, err := utils.SecureJoin(s.root, id)
	if err != nil {
		return "", bperrors.InvalidPath("template", id, err.Error())
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", bperrors.NotFound("template", id)
	}
	return dir, nil
}
