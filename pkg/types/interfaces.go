package types

import (
	"context"
	"os"
	"time"
)

// Store abstracts physical file I/O under one root directory. All paths are
// slash-separated and relative to the root; implementations must confine
// every operation to the root. The filesystem is the source of truth:
// implementations never cache existence.
type Store interface {
	// Root returns the absolute physical root directory.
	Root() string

	// Resolve translates a relative path to the concrete on-disk path
	// without touching the disk.
	Resolve(rel string) (string, error)

	// Stat returns metadata for the entry at rel (lstat semantics).
	Stat(ctx context.Context, rel string) (*EntryInfo, error)

	// List returns the entries of the directory at rel.
	List(ctx context.Context, rel string) ([]EntryInfo, error)

	// EnsureDir creates the directory at rel if absent. An existing
	// directory is success; an existing non-directory is an error.
	EnsureDir(ctx context.Context, rel string, mode os.FileMode) error

	// Mkdir creates exactly one directory level; an existing target
	// surfaces as an error.
	Mkdir(ctx context.Context, rel string, mode os.FileMode) error

	// EnsureFile creates an empty file at rel if absent. An existing
	// regular file is success; an existing directory is an error.
	EnsureFile(ctx context.Context, rel string, mode os.FileMode) error

	// OpenFile opens the file at rel with POSIX flags.
	OpenFile(ctx context.Context, rel string, flags int, mode os.FileMode) (File, error)

	// Remove removes the file or empty directory at rel.
	Remove(ctx context.Context, rel string) error

	// Rename moves oldRel to newRel.
	Rename(ctx context.Context, oldRel, newRel string) error

	// Truncate changes the size of the file at rel.
	Truncate(ctx context.Context, rel string, size int64) error

	// Statfs reports filesystem statistics for the root.
	Statfs(ctx context.Context) (*FSStats, error)
}

// File is an open physical file. afero.File satisfies it.
type File interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Truncate(size int64) error
	Sync() error
	Close() error
}

// ConfigProvider supplies already-parsed project configuration. Parsing of
// the on-disk configuration format is outside the overlay.
type ConfigProvider interface {
	// Resolve walks up from startPath until the project marker is found
	// and returns the nearest ProjectRoot, or nil when none exists.
	Resolve(ctx context.Context, startPath string) (*ProjectRoot, error)

	// InheritMode returns the mode declared for a named section of the
	// project configuration, defaulting to InheritDynamic.
	InheritMode(ctx context.Context, root *ProjectRoot, section string) InheritMode
}

// TemplateSource exposes a template's physical directory for scanning.
type TemplateSource interface {
	// TemplateDir returns the directory for the template identifier.
	// A missing template reports a not-found error.
	TemplateDir(ctx context.Context, id string) (string, error)
}

// PermissionOracle decides whether an operation is allowed. The overlay
// consults it before any materializing write; a nil oracle means allow-all.
type PermissionOracle interface {
	Allow(ctx context.Context, role, path, op string) bool
}

// Memo records paths observed as materialized this session. It is a
// performance hint only: consumers must re-verify against the Store before
// relying on an entry, and must never use it to assert virtuality.
type Memo interface {
	// Seen reports whether path was recorded as materialized.
	Seen(path string) bool

	// Record marks path as observed materialized.
	Record(path string)

	// Forget drops the entry for path, if any.
	Forget(path string)

	// Stats reports hit/miss counters.
	Stats() MemoStats
}

// Metrics receives the overlay's observability events. The prometheus
// collector implements it; a no-op implementation serves tests.
type Metrics interface {
	RecordOperation(op string, duration time.Duration, outcome string)
	RecordMaterialization(outcome string)
	RecordRejectedPath(reason string)
	RecordTemplateScanFailure(template string)
	RecordMemo(hit bool)
	SetTreeNodes(project string, nodes float64)
}

// AllowAllOracle is the stub oracle: every operation is permitted.
type AllowAllOracle struct{}

// Allow implements PermissionOracle.
func (AllowAllOracle) Allow(ctx context.Context, role, path, op string) bool { return true }

// NopMetrics discards all events.
type NopMetrics struct{}

func (NopMetrics) RecordOperation(op string, duration time.Duration, outcome string) {}
func (NopMetrics) RecordMaterialization(outcome string)                              {}
func (NopMetrics) RecordRejectedPath(reason string)                                  {}
func (NopMetrics) RecordTemplateScanFailure(template string)                         {}
func (NopMetrics) RecordMemo(hit bool)                                               {}
func (NopMetrics) SetTreeNodes(project string, nodes float64)                        {}
