package blueprint

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	bperrors "github.com/blueprintfs/blueprintfs/pkg/errors"
	"github.com/blueprintfs/blueprintfs/pkg/types"
)

// fakeSource maps template identifiers to directories.
type fakeSource struct {
	dirs map[string]string
}

func (s *fakeSource) TemplateDir(ctx context.Context, id string) (string, error) {
	dir, ok := s.dirs[id]
	if !ok {
		return "", bperrors.NotFound("template", id)
	}
	return dir, nil
}

// captureMetrics records template scan failures.
type captureMetrics struct {
	types.NopMetrics
	mu       sync.Mutex
	failures []string
}

func (m *captureMetrics) RecordTemplateScanFailure(template string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, template)
}

func (m *captureMetrics) failed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.failures...)
}

func mkdirs(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, dir := range dirs {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			t.Fatalf("MkdirAll(%q) error = %v", dir, err)
		}
	}
}

func TestBuilderBuildMergesTemplates(t *testing.T) {
	t.Parallel()

	deptDir := t.TempDir()
	mkdirs(t, deptDir, "admin", "finance/reports")
	legalDir := t.TempDir()
	mkdirs(t, legalDir, "finance", "legal")
	// Files and hidden entries never become keys.
	if err := os.WriteFile(filepath.Join(deptDir, "readme.md"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	mkdirs(t, deptDir, ".git/objects")

	source := &fakeSource{dirs: map[string]string{"departments": deptDir, "legal": legalDir}}
	b := NewBuilder(source, nil, nil)

	tree, err := b.Build(context.Background(), []types.TemplateRef{
		{ID: "departments", Mode: types.InheritDynamic},
		{ID: "legal", Mode: types.InheritDynamic},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := []string{"admin", "finance", "legal"}
	if got := tree.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Build().Keys() = %v, want %v", got, want)
	}
	if _, ok := tree.At([]string{"finance", "reports"}); !ok {
		t.Errorf("Build() lost nested directory finance/reports")
	}
	if _, ok := tree.Descend(".git"); ok {
		t.Errorf("Build() kept a hidden directory as a key")
	}
}

func TestBuilderMissingTemplateSkipped(t *testing.T) {
	t.Parallel()

	deptDir := t.TempDir()
	mkdirs(t, deptDir, "admin")

	source := &fakeSource{dirs: map[string]string{"departments": deptDir}}
	metrics := &captureMetrics{}
	b := NewBuilder(source, nil, metrics)

	tree, err := b.Build(context.Background(), []types.TemplateRef{
		{ID: "departments", Mode: types.InheritDynamic},
		{ID: "ghost", Mode: types.InheritDynamic},
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got := tree.Keys(); !reflect.DeepEqual(got, []string{"admin"}) {
		t.Errorf("Build().Keys() = %v, want [admin]", got)
	}
	if got := metrics.failed(); !reflect.DeepEqual(got, []string{"ghost"}) {
		t.Errorf("scan failures = %v, want [ghost]", got)
	}
}

func TestBuilderInheritModes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	mkdirs(t, dir, "original")
	source := &fakeSource{dirs: map[string]string{"tpl": dir}}
	b := NewBuilder(source, nil, nil)

	fixedRef := []types.TemplateRef{{ID: "tpl", Mode: types.InheritFixed}}
	dynamicRef := []types.TemplateRef{{ID: "tpl", Mode: types.InheritDynamic}}
	excludedRef := []types.TemplateRef{{ID: "tpl", Mode: types.InheritExcluded}}

	first, err := b.Build(ctx, fixedRef)
	if err != nil {
		t.Fatalf("Build() fixed error = %v", err)
	}
	if got := first.Keys(); !reflect.DeepEqual(got, []string{"original"}) {
		t.Fatalf("fixed first build keys = %v, want [original]", got)
	}

	// The template gains a directory after the snapshot was taken.
	mkdirs(t, dir, "added")

	again, err := b.Build(ctx, fixedRef)
	if err != nil {
		t.Fatalf("Build() fixed rebuild error = %v", err)
	}
	if got := again.Keys(); !reflect.DeepEqual(got, []string{"original"}) {
		t.Errorf("fixed rebuild keys = %v, want snapshot [original]", got)
	}

	dynamic, err := b.Build(ctx, dynamicRef)
	if err != nil {
		t.Fatalf("Build() dynamic error = %v", err)
	}
	if got := dynamic.Keys(); !reflect.DeepEqual(got, []string{"added", "original"}) {
		t.Errorf("dynamic rebuild keys = %v, want [added original]", got)
	}

	excluded, err := b.Build(ctx, excludedRef)
	if err != nil {
		t.Fatalf("Build() excluded error = %v", err)
	}
	if excluded.Len() != 0 {
		t.Errorf("excluded build keys = %v, want none", excluded.Keys())
	}

	// Dropping snapshots makes fixed templates rescan.
	b.DropSnapshots()
	refreshed, err := b.Build(ctx, fixedRef)
	if err != nil {
		t.Fatalf("Build() after DropSnapshots error = %v", err)
	}
	if got := refreshed.Keys(); !reflect.DeepEqual(got, []string{"added", "original"}) {
		t.Errorf("fixed rescan keys = %v, want [added original]", got)
	}
}

func TestBuilderContextCancellation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mkdirs(t, dir, "a/b/c")
	source := &fakeSource{dirs: map[string]string{"tpl": dir}}
	b := NewBuilder(source, nil, nil)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	if _, err := b.Build(ctx, []types.TemplateRef{{ID: "tpl", Mode: types.InheritDynamic}}); err == nil {
		t.Errorf("Build() with expired context did not fail")
	}
}
