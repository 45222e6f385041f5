//go:build cgofuse
// +build cgofuse

package fuse

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/winfsp/cgofuse/fuse"

	"github.com/blueprintfs/blueprintfs/internal/overlay"
	bperrors "github.com/blueprintfs/blueprintfs/pkg/errors"
	"github.com/blueprintfs/blueprintfs/pkg/types"
)

// noHandle is the sentinel cgofuse passes when an operation arrives without
// an open file handle.
const noHandle = ^uint64(0)

// CgoFuseFS serves the overlay through cgofuse for platforms without the
// in-process go-fuse binding, Windows via WinFsp in particular. The binding
// is path-based, which maps directly onto the overlay's path-based API.
type CgoFuseFS struct {
	fuse.FileSystemBase

	overlay *overlay.Overlay
	uid     uint32
	gid     uint32
}

// NewCgoFuseFS creates a cgofuse bridge over the given overlay.
func NewCgoFuseFS(ov *overlay.Overlay) *CgoFuseFS {
	return &CgoFuseFS{
		overlay: ov,
		uid:     safeIntToUint32(os.Getuid()),
		gid:     safeIntToUint32(os.Getgid()),
	}
}

// reqCtx tags a fresh context with the kernel caller identity.
func (c *CgoFuseFS) reqCtx() context.Context {
	uid, _, _ := fuse.Getcontext()
	return overlay.WithCaller(context.Background(), fmt.Sprintf("uid:%d", uid))
}

// trimPath converts a cgofuse path, always rooted at "/", into an overlay
// path, where the mount root is the empty string.
func trimPath(p string) string {
	return strings.TrimPrefix(p, "/")
}

// errc translates a taxonomy error into a negative cgofuse errno. The
// mapping uses cgofuse's own constants so the values match the host FUSE
// ABI on every platform.
func errc(err error) int {
	if err == nil {
		return 0
	}
	switch bperrors.CodeOf(err) {
	case bperrors.CodeInvalidPath:
		return -fuse.EINVAL
	case bperrors.CodeNotFound:
		return -fuse.ENOENT
	case bperrors.CodeAlreadyExists:
		return -fuse.EEXIST
	case bperrors.CodePermissionDenied:
		return -fuse.EACCES
	}
	switch {
	case errors.Is(err, syscall.EISDIR):
		return -fuse.EISDIR
	case errors.Is(err, syscall.ENOTDIR):
		return -fuse.ENOTDIR
	case errors.Is(err, syscall.ENOTEMPTY):
		return -fuse.ENOTEMPTY
	}
	return -fuse.EIO
}

// osFlags converts cgofuse open flags to os package flags. The access mode
// shares the low bits on every platform; the modifier bits are translated
// explicitly because their values differ per FUSE ABI.
func osFlags(flags int) int {
	out := flags & 0x3
	if flags&fuse.O_APPEND != 0 {
		out |= os.O_APPEND
	}
	if flags&fuse.O_CREAT != 0 {
		out |= os.O_CREATE
	}
	if flags&fuse.O_EXCL != 0 {
		out |= os.O_EXCL
	}
	if flags&fuse.O_TRUNC != 0 {
		out |= os.O_TRUNC
	}
	return out
}

// fillStat converts overlay entry attributes into a cgofuse stat.
func (c *CgoFuseFS) fillStat(stat *fuse.Stat_t, info *types.EntryInfo) {
	perm := uint32(info.Mode.Perm())
	if info.IsDir {
		stat.Mode = fuse.S_IFDIR | perm
		stat.Nlink = 2
	} else {
		stat.Mode = fuse.S_IFREG | perm
		stat.Nlink = 1
	}
	stat.Size = info.Size
	stat.Uid = c.uid
	stat.Gid = c.gid
	stat.Blksize = attrBlockSize
	stat.Blocks = (info.Size + 511) / 512
	ts := fuse.NewTimespec(info.ModTime)
	stat.Mtim = ts
	stat.Atim = ts
	stat.Ctim = ts
}

// Getattr gets file attributes.
func (c *CgoFuseFS) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	info, err := c.overlay.Getattr(c.reqCtx(), trimPath(path))
	if err != nil {
		return errc(err)
	}
	c.fillStat(stat, info)
	return 0
}

// Readdir reads directory contents.
func (c *CgoFuseFS) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	infos, err := c.overlay.Readdir(c.reqCtx(), trimPath(path))
	if err != nil {
		return errc(err)
	}

	fill(".", nil, 0)
	fill("..", nil, 0)
	for i := range infos {
		stat := &fuse.Stat_t{}
		c.fillStat(stat, &infos[i])
		if !fill(infos[i].Name, stat, 0) {
			break
		}
	}
	return 0
}

// Mkdir creates a directory, materializing any virtual ancestors.
func (c *CgoFuseFS) Mkdir(path string, mode uint32) int {
	return errc(c.overlay.Mkdir(c.reqCtx(), trimPath(path), os.FileMode(mode&0777)))
}

// Unlink removes a file.
func (c *CgoFuseFS) Unlink(path string) int {
	return errc(c.overlay.Unlink(c.reqCtx(), trimPath(path)))
}

// Rmdir removes a directory.
func (c *CgoFuseFS) Rmdir(path string) int {
	return errc(c.overlay.Rmdir(c.reqCtx(), trimPath(path)))
}

// Rename moves an entry.
func (c *CgoFuseFS) Rename(oldpath, newpath string) int {
	return errc(c.overlay.Rename(c.reqCtx(), trimPath(oldpath), trimPath(newpath)))
}

// Truncate changes a file's size, through the handle when one is open.
func (c *CgoFuseFS) Truncate(path string, size int64, fh uint64) int {
	if fh != noHandle {
		return errc(c.overlay.TruncateHandle(c.reqCtx(), fh, size))
	}
	return errc(c.overlay.Truncate(c.reqCtx(), trimPath(path), size))
}

// Create creates and opens a file, materializing any virtual ancestors.
func (c *CgoFuseFS) Create(path string, flags int, mode uint32) (int, uint64) {
	handle, err := c.overlay.Create(c.reqCtx(), trimPath(path), osFlags(flags), os.FileMode(mode&0777))
	if err != nil {
		return errc(err), noHandle
	}
	return 0, handle
}

// Open opens an existing file.
func (c *CgoFuseFS) Open(path string, flags int) (int, uint64) {
	handle, err := c.overlay.Open(c.reqCtx(), trimPath(path), osFlags(flags))
	if err != nil {
		return errc(err), noHandle
	}
	return 0, handle
}

// Read reads from an open file.
func (c *CgoFuseFS) Read(path string, buff []byte, ofst int64, fh uint64) int {
	n, err := c.overlay.Read(c.reqCtx(), fh, buff, ofst)
	if err != nil {
		return errc(err)
	}
	return n
}

// Write writes to an open file.
func (c *CgoFuseFS) Write(path string, buff []byte, ofst int64, fh uint64) int {
	n, err := c.overlay.Write(c.reqCtx(), fh, buff, ofst)
	if err != nil {
		return errc(err)
	}
	return n
}

// Flush syncs pending writes when a descriptor closes.
func (c *CgoFuseFS) Flush(path string, fh uint64) int {
	return errc(c.overlay.Flush(c.reqCtx(), fh))
}

// Fsync forces file data to stable storage.
func (c *CgoFuseFS) Fsync(path string, datasync bool, fh uint64) int {
	return errc(c.overlay.Fsync(c.reqCtx(), fh))
}

// Release closes an open file.
func (c *CgoFuseFS) Release(path string, fh uint64) int {
	return errc(c.overlay.Release(c.reqCtx(), fh))
}

// Access answers permission probes through the overlay.
func (c *CgoFuseFS) Access(path string, mask uint32) int {
	return errc(c.overlay.Access(c.reqCtx(), trimPath(path), mask))
}

// Statfs reports statistics from the physical store.
func (c *CgoFuseFS) Statfs(path string, stat *fuse.Statfs_t) int {
	stats, err := c.overlay.Statfs(c.reqCtx())
	if err != nil {
		return errc(err)
	}
	stat.Bsize = uint64(stats.BlockSize)
	stat.Frsize = uint64(stats.BlockSize)
	stat.Blocks = stats.Blocks
	stat.Bfree = stats.BlocksFree
	stat.Bavail = stats.BlocksAvail
	stat.Files = stats.Files
	stat.Ffree = stats.FilesFree
	stat.Favail = stats.FilesFree
	stat.Namemax = uint64(stats.NameMax)
	return 0
}
