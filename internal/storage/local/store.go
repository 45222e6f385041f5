// Package local implements the physical store on a local directory tree.
package local

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/blueprintfs/blueprintfs/internal/logging"
	"github.com/blueprintfs/blueprintfs/pkg/types"
	"github.com/blueprintfs/blueprintfs/pkg/utils"
)

// Synthetic statistics reported when the host refuses a statfs call, for
// example when the store is backed by an in-memory filesystem in tests.
const (
	fallbackBlockSize  = 4096
	fallbackBlocks     = 1000000
	fallbackBlocksFree = 500000
	fallbackFiles      = 100000
	fallbackFilesFree  = 50000
	fallbackNameMax    = 255
)

// Store implements types.Store on a local directory. Every operation is
// jailed to the root through an afero BasePathFs, and every relative path is
// validated segment by segment before it is joined, so no caller-supplied
// path can address anything outside the root.
type Store struct {
	root   string
	fs     afero.Fs
	logger *logrus.Entry
}

// New returns a Store rooted at the given directory, which must exist.
func New(root string, logger *logging.Logger) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving store root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("store root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store root %s is not a directory", abs)
	}
	return newStore(abs, afero.NewBasePathFs(afero.NewOsFs(), abs), logger), nil
}

// NewWithFs returns a Store jailed to root on the provided backing
// filesystem. Tests use it with an in-memory filesystem.
func NewWithFs(root string, backing afero.Fs, logger *logging.Logger) *Store {
	return newStore(root, afero.NewBasePathFs(backing, root), logger)
}

func newStore(root string, jailed afero.Fs, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{
		root:   root,
		fs:     jailed,
		logger: logger.Component("store"),
	}
}

// Root returns the absolute physical root directory.
func (s *Store) Root() string { return s.root }

// Resolve translates rel to the on-disk path without touching the disk.
func (s *Store) Resolve(rel string) (string, error) {
	segments, err := utils.SplitPath(rel)
	if err != nil {
		return "", err
	}
	return utils.SecureJoin(s.root, segments...)
}

// rel validates a relative path and rejoins its segments for the jailed
// filesystem. The empty path addresses the root itself.
func (s *Store) rel(rel string) (string, error) {
	segments, err := utils.SplitPath(rel)
	if err != nil {
		return "", err
	}
	if len(segments) == 0 {
		return ".", nil
	}
	return filepath.Join(segments...), nil
}

// Stat returns metadata for the entry at rel.
func (s *Store) Stat(ctx context.Context, path string) (*types.EntryInfo, error) {
	p, err := s.rel(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := s.lstat(p)
	if err != nil {
		return nil, err
	}
	entry := entryFromInfo(info)
	return &entry, nil
}

// lstat avoids following symlinks where the backing filesystem supports it,
// so a link pointing outside the root is reported as a link, not followed.
func (s *Store) lstat(p string) (os.FileInfo, error) {
	if lfs, ok := s.fs.(afero.Lstater); ok {
		info, _, err := lfs.LstatIfPossible(p)
		return info, err
	}
	return s.fs.Stat(p)
}

// List returns the entries of the directory at rel, sorted by name.
func (s *Store) List(ctx context.Context, path string) ([]types.EntryInfo, error) {
	p, err := s.rel(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(s.fs, p)
	if err != nil {
		return nil, err
	}
	entries := make([]types.EntryInfo, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, entryFromInfo(info))
	}
	return entries, nil
}

// EnsureDir creates the directory at rel if absent, along with any missing
// parents. An existing directory is success, so concurrent callers racing on
// the same path all succeed; an existing non-directory is fs.ErrExist.
func (s *Store) EnsureDir(ctx context.Context, path string, mode os.FileMode) error {
	p, err := s.rel(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if info, err := s.fs.Stat(p); err == nil {
		if info.IsDir() {
			return nil
		}
		return &os.PathError{Op: "mkdir", Path: path, Err: fs.ErrExist}
	}
	if err := s.fs.MkdirAll(p, mode); err != nil {
		// A racing creator may have won; the result is what matters.
		if info, serr := s.fs.Stat(p); serr == nil && info.IsDir() {
			return nil
		}
		return err
	}
	s.logger.WithField("path", path).Debug("directory ensured")
	return nil
}

// Mkdir creates exactly one directory level. An existing target of any kind
// is an error, so duplicate-create intent surfaces to the caller.
func (s *Store) Mkdir(ctx context.Context, path string, mode os.FileMode) error {
	p, err := s.rel(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.Mkdir(p, mode); err != nil {
		return err
	}
	s.logger.WithField("path", path).Debug("directory created")
	return nil
}

// EnsureFile creates an empty file at rel if absent. Creation omits O_EXCL,
// so a racing creator of the same file is absorbed; an existing directory is
// fs.ErrExist.
func (s *Store) EnsureFile(ctx context.Context, path string, mode os.FileMode) error {
	p, err := s.rel(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if info, err := s.fs.Stat(p); err == nil {
		if info.IsDir() {
			return &os.PathError{Op: "create", Path: path, Err: fs.ErrExist}
		}
		return nil
	}
	f, err := s.fs.OpenFile(p, os.O_CREATE|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	s.logger.WithField("path", path).Debug("file ensured")
	return nil
}

// OpenFile opens the file at rel with POSIX flags.
func (s *Store) OpenFile(ctx context.Context, path string, flags int, mode os.FileMode) (types.File, error) {
	p, err := s.rel(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.fs.OpenFile(p, flags, mode)
}

// Remove removes the file or empty directory at rel.
func (s *Store) Remove(ctx context.Context, path string) error {
	p, err := s.rel(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil {
		return err
	}
	s.logger.WithField("path", path).Debug("entry removed")
	return nil
}

// Rename moves oldRel to newRel. Both ends are validated before any disk
// access.
func (s *Store) Rename(ctx context.Context, oldRel, newRel string) error {
	oldP, err := s.rel(oldRel)
	if err != nil {
		return err
	}
	newP, err := s.rel(newRel)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.Rename(oldP, newP); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"from": oldRel, "to": newRel}).Debug("entry renamed")
	return nil
}

// Truncate changes the size of the file at rel.
func (s *Store) Truncate(ctx context.Context, path string, size int64) error {
	p, err := s.rel(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := s.fs.OpenFile(p, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(size)
}

// Statfs reports filesystem statistics for the root. When the host call is
// unavailable (unsupported platform, or a test store with no on-disk root)
// fixed synthetic values are reported instead, so callers always receive a
// usable answer.
func (s *Store) Statfs(ctx context.Context) (*types.FSStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if stats, err := statfsFromSystem(s.root); err == nil {
		return stats, nil
	}
	return &types.FSStats{
		BlockSize:   fallbackBlockSize,
		Blocks:      fallbackBlocks,
		BlocksFree:  fallbackBlocksFree,
		BlocksAvail: fallbackBlocksFree,
		Files:       fallbackFiles,
		FilesFree:   fallbackFilesFree,
		NameMax:     fallbackNameMax,
	}, nil
}

func entryFromInfo(info os.FileInfo) types.EntryInfo {
	mod := info.ModTime()
	if mod.IsZero() {
		mod = time.Unix(0, 0)
	}
	return types.EntryInfo{
		Name:    info.Name(),
		Size:    info.Size(),
		Mode:    info.Mode(),
		ModTime: mod,
		IsDir:   info.IsDir(),
	}
}
