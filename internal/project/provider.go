package project

import (
	"context"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/blueprintfs/blueprintfs/internal/logging"
	"github.com/blueprintfs/blueprintfs/pkg/types"
)

// StaticProvider implements types.ConfigProvider from a fixed, already
// parsed template list. Every project found under the boundary declares the
// same templates; per-template modes come from the section table, defaulting
// to dynamic.
type StaticProvider struct {
	locator   *Locator
	templates []string
	sections  map[string]types.InheritMode
	logger    *logrus.Entry
}

// NewStaticProvider returns a provider that locates projects by marker under
// boundary and reports the given template identifiers. Modes beyond dynamic
// are declared per template in sections.
func NewStaticProvider(marker, boundary string, templates []string, sections map[string]types.InheritMode, logger *logging.Logger) *StaticProvider {
	if logger == nil {
		logger = logging.Discard()
	}
	if sections == nil {
		sections = make(map[string]types.InheritMode)
	}
	return &StaticProvider{
		locator:   NewLocator(marker, boundary),
		templates: append([]string(nil), templates...),
		sections:  sections,
		logger:    logger.Component("provider"),
	}
}

// Resolve walks up from startPath and returns the nearest ProjectRoot, or
// nil when no marker is found. The returned template list carries the mode
// for each template.
func (p *StaticProvider) Resolve(ctx context.Context, startPath string) (*types.ProjectRoot, error) {
	dir, found := p.locator.Find(ctx, startPath)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	root := &types.ProjectRoot{
		Name: filepath.Base(dir),
		Path: dir,
	}
	root.Templates = make([]types.TemplateRef, 0, len(p.templates))
	for _, id := range p.templates {
		root.Templates = append(root.Templates, types.TemplateRef{
			ID:   id,
			Mode: p.InheritMode(ctx, root, id),
		})
	}
	p.logger.WithFields(logrus.Fields{
		"project":   root.Name,
		"templates": len(root.Templates),
	}).Debug("project resolved")
	return root, nil
}

// InheritMode returns the mode declared for a section, defaulting to
// dynamic when unspecified.
func (p *StaticProvider) InheritMode(ctx context.Context, root *types.ProjectRoot, section string) types.InheritMode {
	if mode, ok := p.sections[section]; ok {
		return mode
	}
	return types.InheritDynamic
}
