package overlay

import (
	"context"
	"path"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/blueprintfs/blueprintfs/internal/logging"
	bperrors "github.com/blueprintfs/blueprintfs/pkg/errors"
	"github.com/blueprintfs/blueprintfs/pkg/types"
	"github.com/blueprintfs/blueprintfs/pkg/utils"
)

// Materializer turns virtual paths into physical ones. Concurrent requests
// for the same path are collapsed into one store walk; requests for
// different paths proceed independently, there is no global lock. Each walk
// creates the missing ancestor chain with create-if-absent semantics, so a
// path that a racing caller has already made physical is success, not a
// conflict.
type Materializer struct {
	store   types.Store
	memo    types.Memo
	metrics types.Metrics
	logger  *logrus.Entry
	group   singleflight.Group
}

// NewMaterializer returns a Materializer over the store. memo may be nil.
func NewMaterializer(store types.Store, memo types.Memo, metrics types.Metrics, logger *logging.Logger) *Materializer {
	if metrics == nil {
		metrics = types.NopMetrics{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Materializer{
		store:   store,
		memo:    memo,
		metrics: metrics,
		logger:  logger.Component("materializer"),
	}
}

// EnsureDir materializes rel as a directory, creating missing ancestors.
func (m *Materializer) EnsureDir(ctx context.Context, rel string) error {
	return m.ensure(ctx, rel, true)
}

// EnsureFile materializes rel as an empty file, creating missing ancestor
// directories.
func (m *Materializer) EnsureFile(ctx context.Context, rel string) error {
	return m.ensure(ctx, rel, false)
}

// EnsureParents materializes the ancestor directories of rel without
// touching rel itself.
func (m *Materializer) EnsureParents(ctx context.Context, rel string) error {
	parent := path.Dir(rel)
	if parent == "." || parent == "/" || parent == rel {
		return nil
	}
	return m.ensure(ctx, parent, true)
}

// Materialize materializes rel, deciding the leaf kind by its shape: a name
// with an extension becomes an empty file, anything else a directory.
// Callers that know the kind use EnsureDir or EnsureFile directly.
func (m *Materializer) Materialize(ctx context.Context, rel string) error {
	if path.Ext(rel) != "" {
		return m.EnsureFile(ctx, rel)
	}
	return m.EnsureDir(ctx, rel)
}

func (m *Materializer) ensure(ctx context.Context, rel string, dir bool) error {
	kind := "file"
	if dir {
		kind = "dir"
	}

	// The memo is a hint, never an authority: a remembered path is
	// re-verified against the store, and a stale entry is dropped.
	if m.memo != nil {
		if m.memo.Seen(rel) {
			if info, err := m.store.Stat(ctx, rel); err == nil && info.IsDir == dir {
				m.metrics.RecordMemo(true)
				return nil
			}
			m.memo.Forget(rel)
		}
		m.metrics.RecordMemo(false)
	}

	_, err, shared := m.group.Do(kind+":"+rel, func() (interface{}, error) {
		return nil, m.materialize(ctx, rel, dir)
	})
	if err != nil {
		m.metrics.RecordMaterialization(strings.ToLower(string(bperrors.CodeOf(err))))
		return err
	}
	if shared {
		m.logger.WithField("path", rel).Debug("materialization shared with concurrent caller")
	}
	m.metrics.RecordMaterialization("ok")
	return nil
}

// materialize walks the segment chain, ensuring each level. Every level uses
// create-if-absent semantics: an already-present directory is success, so
// each call is idempotent and racing callers converge on one physical
// outcome. A level present as the wrong kind surfaces as already-exists.
func (m *Materializer) materialize(ctx context.Context, rel string, dir bool) error {
	segments, err := utils.SplitPath(rel)
	if err != nil {
		return bperrors.InvalidPath("materialize", rel, err.Error())
	}
	if len(segments) == 0 {
		return bperrors.InvalidPath("materialize", rel, "empty path")
	}

	for i := range segments {
		sub := strings.Join(segments[:i+1], "/")
		leaf := i == len(segments)-1

		var serr error
		if leaf && !dir {
			serr = m.store.EnsureFile(ctx, sub, 0644)
		} else {
			serr = m.store.EnsureDir(ctx, sub, 0755)
		}
		if serr != nil {
			return bperrors.FromStore("materialize", sub, serr)
		}
		if m.memo != nil {
			m.memo.Record(sub)
		}
	}

	kind := "file"
	if dir {
		kind = "dir"
	}
	m.logger.WithFields(logrus.Fields{
		"path": rel,
		"kind": kind,
	}).Info("path materialized")
	return nil
}
