package blueprint

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/blueprintfs/blueprintfs/internal/logging"
	bperrors "github.com/blueprintfs/blueprintfs/pkg/errors"
	"github.com/blueprintfs/blueprintfs/pkg/types"
	"github.com/blueprintfs/blueprintfs/pkg/utils"
)

// scanConcurrency bounds the number of template directories scanned at once.
const scanConcurrency = 4

// Builder scans template directories and merges their declared structure
// into one tree per build. Templates in fixed mode are scanned once and the
// snapshot reused on later builds; dynamic templates are rescanned every
// time; excluded templates contribute nothing.
type Builder struct {
	source  types.TemplateSource
	logger  *logrus.Entry
	metrics types.Metrics

	mu        sync.Mutex
	snapshots map[string]*Tree
}

// NewBuilder returns a Builder reading template directories from source.
func NewBuilder(source types.TemplateSource, logger *logging.Logger, metrics types.Metrics) *Builder {
	if logger == nil {
		logger = logging.Discard()
	}
	if metrics == nil {
		metrics = types.NopMetrics{}
	}
	return &Builder{
		source:    source,
		logger:    logger.Component("builder"),
		metrics:   metrics,
		snapshots: make(map[string]*Tree),
	}
}

// Build scans every referenced template and returns the merged tree. Scans
// run concurrently; a missing template is logged and skipped so one broken
// reference cannot take the whole project down, while any other scan failure
// aborts the build.
func (b *Builder) Build(ctx context.Context, refs []types.TemplateRef) (*Tree, error) {
	trees := make([]*Tree, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for i, ref := range refs {
		if ref.Mode == types.InheritExcluded {
			continue
		}
		if ref.Mode == types.InheritFixed {
			if snap, ok := b.snapshot(ref.ID); ok {
				trees[i] = snap
				continue
			}
		}
		i, ref := i, ref
		g.Go(func() error {
			tree, err := b.scan(gctx, ref.ID)
			if err != nil {
				return err
			}
			trees[i] = tree
			if ref.Mode == types.InheritFixed && tree != nil {
				b.storeSnapshot(ref.ID, tree)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := Merge(trees...)
	b.logger.WithFields(logrus.Fields{
		"templates": len(refs),
		"nodes":     merged.Nodes(),
	}).Debug("potential tree built")
	return merged, nil
}

// DropSnapshots discards every fixed-mode snapshot so the next build rescans
// from disk.
func (b *Builder) DropSnapshots() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots = make(map[string]*Tree)
}

func (b *Builder) snapshot(id string) (*Tree, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap, ok := b.snapshots[id]
	return snap, ok
}

func (b *Builder) storeSnapshot(id string, tree *Tree) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots[id] = tree
}

// scan reads one template's directory structure. A missing template returns
// a nil tree after recording the failure; merging skips nil trees.
func (b *Builder) scan(ctx context.Context, id string) (*Tree, error) {
	dir, err := b.source.TemplateDir(ctx, id)
	if err != nil {
		if bperrors.IsNotFound(err) || errors.Is(err, fs.ErrNotExist) {
			b.skip(id, err)
			return nil, nil
		}
		return nil, bperrors.IOFailure("scan", id, err)
	}

	tree := NewTree()
	if err := b.walk(ctx, dir, tree); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// The directory vanished between resolution and the walk.
			b.skip(id, err)
			return nil, nil
		}
		return nil, bperrors.IOFailure("scan", id, err)
	}
	return tree, nil
}

func (b *Builder) skip(id string, err error) {
	b.logger.WithFields(logrus.Fields{
		"template": id,
		"error":    err,
	}).Warn("template not found, skipped")
	b.metrics.RecordTemplateScanFailure(id)
}

// walk collects directory names beneath dir into node. Files carry no
// structure and are ignored; hidden names and names that fail segment
// validation never become tree keys.
func (b *Builder) walk(ctx context.Context, dir string, node *Tree) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if utils.IsHidden(name) || utils.ValidateSegment(name) != nil {
			continue
		}
		child := node.Add(name)
		if err := b.walk(ctx, filepath.Join(dir, name), child); err != nil {
			return err
		}
	}
	return nil
}
