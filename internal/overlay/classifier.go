package overlay

import (
	"context"
	"path"

	"github.com/blueprintfs/blueprintfs/internal/blueprint"
	bperrors "github.com/blueprintfs/blueprintfs/pkg/errors"
	"github.com/blueprintfs/blueprintfs/pkg/types"
	"github.com/blueprintfs/blueprintfs/pkg/utils"
)

// TreeSource yields the published potential tree for a project. A project
// with no physical directory reports not-found.
type TreeSource interface {
	TreeFor(ctx context.Context, project string) (*blueprint.Tree, error)
}

// Classifier assigns each caller path to a namespace zone and, for
// project-relative paths, marks every segment physical or virtual. Path
// validation runs in full before the store is touched, so a rejected path
// never causes disk access; only the segment walk of an accepted
// project-relative path probes physical existence.
type Classifier struct {
	collection string
	viewport   string
	store      types.Store
	trees      TreeSource
	metrics    types.Metrics
}

// NewClassifier returns a Classifier for the given collection and viewport
// names.
func NewClassifier(collection, viewport string, store types.Store, trees TreeSource, metrics types.Metrics) *Classifier {
	if metrics == nil {
		metrics = types.NopMetrics{}
	}
	return &Classifier{
		collection: collection,
		viewport:   viewport,
		store:      store,
		trees:      trees,
		metrics:    metrics,
	}
}

// viewportIndex is the only segment position where the reserved viewport
// name may appear: directly under a project root.
const viewportIndex = 2

// Classify resolves name into a Classification. The result is stateless and
// recomputed per call; nothing about it may be cached across operations.
func (c *Classifier) Classify(ctx context.Context, op, name string) (types.Classification, error) {
	segments, err := utils.SplitPath(name)
	if err != nil {
		c.metrics.RecordRejectedPath("syntax")
		return types.Classification{}, bperrors.InvalidPath(op, name, err.Error())
	}

	// Hidden names are rejected everywhere except the viewport in its
	// reserved position. This keeps dotfiles, including the project
	// configuration directory itself, out of the overlay namespace.
	for i, seg := range segments {
		if !utils.IsHidden(seg) {
			continue
		}
		if i == viewportIndex && seg == c.viewport && segments[0] == c.collection {
			continue
		}
		c.metrics.RecordRejectedPath("hidden")
		return types.Classification{}, bperrors.InvalidPath(op, name, "hidden segment: "+seg)
	}

	if len(segments) == 0 {
		return types.Classification{Zone: types.ZoneRoot}, nil
	}
	if segments[0] != c.collection {
		// Nothing exists beside the collection at the mount root.
		return types.Classification{}, bperrors.NotFound(op, name)
	}
	if len(segments) == 1 {
		return types.Classification{Zone: types.ZoneProjectList}, nil
	}

	project := segments[1]
	rel := segments[2:]
	if len(rel) > 0 && rel[0] == c.viewport {
		return c.classifyViewport(ctx, op, name, project, rel[1:])
	}
	return c.classifyRelative(ctx, op, name, project, rel)
}

// classifyViewport matches the remaining segments against the potential tree
// alone. The viewport is a window, not a directory: physical existence never
// enters the picture and the store is never consulted. Segments the tree
// declares are marked virtual; an undeclared suffix stays unmarked and each
// operation decides what a name outside the window means.
func (c *Classifier) classifyViewport(ctx context.Context, op, name, project string, rel []string) (types.Classification, error) {
	tree, err := c.trees.TreeFor(ctx, project)
	if err != nil {
		return types.Classification{}, err
	}

	cls := types.Classification{
		Zone:     types.ZoneViewport,
		Project:  project,
		Rel:      path.Join(rel...),
		Segments: make([]types.Segment, 0, len(rel)),
	}
	node, matched := tree, true
	for _, seg := range rel {
		if matched {
			node, matched = node.Descend(seg)
		}
		cls.Segments = append(cls.Segments, types.Segment{Name: seg, Virtual: matched})
	}
	return cls, nil
}

// classifyRelative walks the remaining segments, deciding physical or
// virtual per depth. Physical reality always wins: a physically present
// segment is never virtual, whatever the tree declares. A segment is virtual
// only while its whole physical prefix exists short of it and the tree
// declares its name at that depth.
func (c *Classifier) classifyRelative(ctx context.Context, op, name, project string, rel []string) (types.Classification, error) {
	cls := types.Classification{
		Zone:    types.ZoneProjectRelative,
		Project: project,
		Rel:     path.Join(rel...),
	}
	if len(rel) == 0 {
		return cls, nil
	}

	tree, err := c.trees.TreeFor(ctx, project)
	if err != nil {
		return types.Classification{}, err
	}

	cls.Segments = make([]types.Segment, 0, len(rel))
	node := tree
	prefix := path.Join(c.collection, project)
	prefixPhysical := true
	for _, seg := range rel {
		var inTree bool
		node, inTree = node.Descend(seg)

		current := prefix + "/" + seg
		physical := false
		if prefixPhysical {
			if _, serr := c.store.Stat(ctx, current); serr == nil {
				physical = true
			}
		}

		virtual := false
		if !physical {
			prefixPhysical = false
			virtual = inTree
		}
		cls.Segments = append(cls.Segments, types.Segment{Name: seg, Virtual: virtual})
		prefix = current
	}
	return cls, nil
}
