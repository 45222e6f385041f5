package overlay

import (
	"context"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"go.uber.org/goleak"

	"github.com/blueprintfs/blueprintfs/internal/cache"
	"github.com/blueprintfs/blueprintfs/internal/storage/local"
	bperrors "github.com/blueprintfs/blueprintfs/pkg/errors"
)

func newMaterializerHarness(t *testing.T) (*Materializer, *local.Store, *cache.Memo, *recordingMetrics) {
	t.Helper()
	store := local.NewWithFs("/store", afero.NewMemMapFs(), nil)
	memo := cache.NewMemo(cache.DefaultMemoConfig())
	metrics := newRecordingMetrics()
	return NewMaterializer(store, memo, metrics, nil), store, memo, metrics
}

func TestMaterializerEnsureDirChain(t *testing.T) {
	t.Parallel()

	mat, store, _, _ := newMaterializerHarness(t)
	ctx := context.Background()

	if err := mat.EnsureDir(ctx, "projects/alpha/finance/reports"); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	for _, rel := range []string{
		"projects",
		"projects/alpha",
		"projects/alpha/finance",
		"projects/alpha/finance/reports",
	} {
		info, err := store.Stat(ctx, rel)
		if err != nil {
			t.Fatalf("Stat(%q) error = %v", rel, err)
		}
		if !info.IsDir {
			t.Errorf("Stat(%q).IsDir = false, want directory", rel)
		}
	}
}

func TestMaterializerEnsureFile(t *testing.T) {
	t.Parallel()

	mat, store, _, _ := newMaterializerHarness(t)
	ctx := context.Background()

	if err := mat.EnsureFile(ctx, "projects/alpha/finance/budget.txt"); err != nil {
		t.Fatalf("EnsureFile() error = %v", err)
	}
	info, err := store.Stat(ctx, "projects/alpha/finance/budget.txt")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.IsDir {
		t.Errorf("materialized leaf is a directory, want file")
	}
	if info.Size != 0 {
		t.Errorf("materialized file size = %d, want empty", info.Size)
	}
	parent, err := store.Stat(ctx, "projects/alpha/finance")
	if err != nil {
		t.Fatalf("Stat(parent) error = %v", err)
	}
	if !parent.IsDir {
		t.Errorf("ancestor is not a directory")
	}
}

func TestMaterializerIdempotent(t *testing.T) {
	t.Parallel()

	mat, store, _, metrics := newMaterializerHarness(t)
	ctx := context.Background()

	if err := mat.EnsureFile(ctx, "projects/alpha/finance/budget.txt"); err != nil {
		t.Fatalf("EnsureFile() first error = %v", err)
	}
	if err := mat.EnsureFile(ctx, "projects/alpha/finance/budget.txt"); err != nil {
		t.Fatalf("EnsureFile() second error = %v", err)
	}

	entries, err := store.List(ctx, "projects/alpha/finance")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("List() = %d entries, want 1", len(entries))
	}

	// The repeat was answered by the verified memo, not a second walk.
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.materializations["ok"] != 1 {
		t.Errorf("materializations[ok] = %d, want 1", metrics.materializations["ok"])
	}
	if metrics.memoHits == 0 {
		t.Errorf("memo hit not recorded on repeat")
	}
}

func TestMaterializerWrongKind(t *testing.T) {
	t.Parallel()

	mat, store, _, metrics := newMaterializerHarness(t)
	ctx := context.Background()

	if err := store.EnsureDir(ctx, "projects/alpha", 0755); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	if err := store.EnsureFile(ctx, "projects/alpha/notes", 0644); err != nil {
		t.Fatalf("EnsureFile() error = %v", err)
	}

	if err := mat.EnsureDir(ctx, "projects/alpha/notes"); !bperrors.IsAlreadyExists(err) {
		t.Errorf("EnsureDir(over file) error = %v, want already-exists", err)
	}
	if err := mat.EnsureFile(ctx, "projects/alpha"); !bperrors.IsAlreadyExists(err) {
		t.Errorf("EnsureFile(over dir) error = %v, want already-exists", err)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.materializations["already_exists"] != 2 {
		t.Errorf("materializations[already_exists] = %d, want 2", metrics.materializations["already_exists"])
	}
}

func TestMaterializerMemoIsNotAuthority(t *testing.T) {
	t.Parallel()

	mat, store, memo, _ := newMaterializerHarness(t)
	ctx := context.Background()

	if err := mat.EnsureDir(ctx, "projects/alpha/finance"); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	if !memo.Seen("projects/alpha/finance") {
		t.Fatalf("memo did not record the materialized path")
	}

	// The directory disappears behind the overlay's back. The hot memo
	// entry must not stop re-materialization.
	if err := store.Remove(ctx, "projects/alpha/finance"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := mat.EnsureDir(ctx, "projects/alpha/finance"); err != nil {
		t.Fatalf("EnsureDir() after out-of-band delete error = %v", err)
	}
	info, err := store.Stat(ctx, "projects/alpha/finance")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if !info.IsDir {
		t.Errorf("re-materialized entry is not a directory")
	}
}

func TestMaterializerConcurrentSamePath(t *testing.T) {
	defer goleak.VerifyNone(t)

	mat, store, _, _ := newMaterializerHarness(t)
	ctx := context.Background()
	const workers = 32

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = mat.EnsureFile(ctx, "projects/alpha/finance/shared.txt")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("worker %d error = %v", i, err)
		}
	}
	entries, err := store.List(ctx, "projects/alpha/finance")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "shared.txt" {
		t.Errorf("List() = %v, want exactly [shared.txt]", entryNames(entries))
	}
}

func TestMaterializerEnsureParents(t *testing.T) {
	t.Parallel()

	mat, store, _, _ := newMaterializerHarness(t)
	ctx := context.Background()

	if err := mat.EnsureParents(ctx, "projects/alpha/finance/budget.txt"); err != nil {
		t.Fatalf("EnsureParents() error = %v", err)
	}
	if _, err := store.Stat(ctx, "projects/alpha/finance"); err != nil {
		t.Errorf("Stat(parent) error = %v, want created", err)
	}
	if _, err := store.Stat(ctx, "projects/alpha/finance/budget.txt"); err == nil {
		t.Errorf("EnsureParents() created the leaf")
	}

	// A single segment has no parent to create.
	if err := mat.EnsureParents(ctx, "projects"); err != nil {
		t.Errorf("EnsureParents(top level) error = %v", err)
	}
	if _, err := store.Stat(ctx, "projects"); err == nil {
		t.Errorf("EnsureParents(top level) created the path itself")
	}
}

func TestMaterializerShapeHeuristic(t *testing.T) {
	t.Parallel()

	mat, store, _, _ := newMaterializerHarness(t)
	ctx := context.Background()

	if err := mat.Materialize(ctx, "projects/alpha/finance/budget.txt"); err != nil {
		t.Fatalf("Materialize(file-shaped) error = %v", err)
	}
	info, err := store.Stat(ctx, "projects/alpha/finance/budget.txt")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.IsDir {
		t.Errorf("file-shaped name materialized as a directory")
	}

	if err := mat.Materialize(ctx, "projects/alpha/reports"); err != nil {
		t.Fatalf("Materialize(dir-shaped) error = %v", err)
	}
	info, err = store.Stat(ctx, "projects/alpha/reports")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if !info.IsDir {
		t.Errorf("extensionless name materialized as a file")
	}
}

func TestMaterializerRejectsBadPaths(t *testing.T) {
	t.Parallel()

	mat, _, _, _ := newMaterializerHarness(t)
	ctx := context.Background()

	if err := mat.EnsureDir(ctx, ""); !bperrors.IsInvalidPath(err) {
		t.Errorf("EnsureDir(empty) error = %v, want invalid-path", err)
	}
	if err := mat.EnsureDir(ctx, "projects/../escape"); !bperrors.IsInvalidPath(err) {
		t.Errorf("EnsureDir(traversal) error = %v, want invalid-path", err)
	}
}
