//go:build !windows
// +build !windows

package fuse

import (
	"context"
	"fmt"
	"os"
	"path"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/blueprintfs/blueprintfs/internal/overlay"
	bperrors "github.com/blueprintfs/blueprintfs/pkg/errors"
	"github.com/blueprintfs/blueprintfs/pkg/types"
)

// FileSystem bridges the kernel FUSE protocol onto an Overlay. Path logic,
// materialization and the error taxonomy live in the overlay; the bridge
// only converts between kernel structures and overlay calls. Entries are
// reported as owned by the mounting user.
type FileSystem struct {
	overlay *overlay.Overlay
	uid     uint32
	gid     uint32
}

// NewFileSystem creates a FUSE bridge over the given overlay.
func NewFileSystem(ov *overlay.Overlay) *FileSystem {
	return &FileSystem{
		overlay: ov,
		uid:     safeIntToUint32(os.Getuid()),
		gid:     safeIntToUint32(os.Getgid()),
	}
}

// Root returns the root inode embedder for mounting.
func (f *FileSystem) Root() fs.InodeEmbedder {
	return &DirectoryNode{fs: f, path: ""}
}

// Overlay exposes the wrapped overlay.
func (f *FileSystem) Overlay() *overlay.Overlay {
	return f.overlay
}

// reqCtx tags the request context with the kernel caller identity so the
// permission oracle can see who is asking. Requests without caller data run
// as the mounting user.
func (f *FileSystem) reqCtx(ctx context.Context) context.Context {
	if caller, ok := fuse.FromContext(ctx); ok {
		return overlay.WithCaller(ctx, fmt.Sprintf("uid:%d", caller.Uid))
	}
	return overlay.WithCaller(ctx, fmt.Sprintf("uid:%d", f.uid))
}

// fillAttr converts overlay entry attributes into kernel attributes.
func (f *FileSystem) fillAttr(info *types.EntryInfo, attr *fuse.Attr) {
	attr.Mode = entryMode(info)
	attr.Size = safeInt64ToUint64(info.Size)
	attr.Blocks = (attr.Size + 511) / 512
	attr.Blksize = attrBlockSize
	attr.Uid = f.uid
	attr.Gid = f.gid
	if info.IsDir {
		attr.Nlink = 2
	} else {
		attr.Nlink = 1
	}
	mtime := info.ModTime
	attr.SetTimes(&mtime, &mtime, &mtime)
}

func (f *FileSystem) getattr(ctx context.Context, name string, out *fuse.AttrOut) syscall.Errno {
	info, err := f.overlay.Getattr(ctx, name)
	if err != nil {
		return bperrors.ToErrno(err)
	}
	f.fillAttr(info, &out.Attr)
	return 0
}

func (f *FileSystem) statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	stats, err := f.overlay.Statfs(ctx)
	if err != nil {
		return bperrors.ToErrno(err)
	}
	out.Blocks = stats.Blocks
	out.Bfree = stats.BlocksFree
	out.Bavail = stats.BlocksAvail
	out.Files = stats.Files
	out.Ffree = stats.FilesFree
	out.Bsize = stats.BlockSize
	out.Frsize = stats.BlockSize
	out.NameLen = stats.NameMax
	return 0
}

// entryMode converts an overlay mode into kernel mode bits. The overlay
// deals only in directories and regular files.
func entryMode(info *types.EntryInfo) uint32 {
	perm := uint32(info.Mode.Perm())
	if info.IsDir {
		return perm | fuse.S_IFDIR
	}
	return perm | fuse.S_IFREG
}

// DirectoryNode is a directory entry in the mounted view. The zero path is
// the mount root; every other node carries its full overlay path.
type DirectoryNode struct {
	fs.Inode
	fs   *FileSystem
	path string
}

var _ = (fs.NodeLookuper)((*DirectoryNode)(nil))
var _ = (fs.NodeGetattrer)((*DirectoryNode)(nil))
var _ = (fs.NodeReaddirer)((*DirectoryNode)(nil))
var _ = (fs.NodeMkdirer)((*DirectoryNode)(nil))
var _ = (fs.NodeCreater)((*DirectoryNode)(nil))
var _ = (fs.NodeUnlinker)((*DirectoryNode)(nil))
var _ = (fs.NodeRmdirer)((*DirectoryNode)(nil))
var _ = (fs.NodeRenamer)((*DirectoryNode)(nil))
var _ = (fs.NodeSetattrer)((*DirectoryNode)(nil))
var _ = (fs.NodeAccesser)((*DirectoryNode)(nil))
var _ = (fs.NodeStatfser)((*DirectoryNode)(nil))

// Lookup resolves a child by name, producing a directory or file node
// depending on what the overlay reports.
func (n *DirectoryNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	ctx = n.fs.reqCtx(ctx)
	childPath := n.joinPath(name)

	info, err := n.fs.overlay.Getattr(ctx, childPath)
	if err != nil {
		return nil, bperrors.ToErrno(err)
	}
	n.fs.fillAttr(info, &out.Attr)
	return n.newChild(ctx, childPath, info.IsDir), 0
}

// Getattr reports the attributes of this directory.
func (n *DirectoryNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	return n.fs.getattr(n.fs.reqCtx(ctx), n.path, out)
}

// Readdir lists the directory. Virtual names arrive from the overlay merged
// with the physical entries, so the stream needs no deduplication here.
func (n *DirectoryNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	ctx = n.fs.reqCtx(ctx)
	infos, err := n.fs.overlay.Readdir(ctx, n.path)
	if err != nil {
		return nil, bperrors.ToErrno(err)
	}
	entries := make([]fuse.DirEntry, 0, len(infos))
	for i := range infos {
		entries = append(entries, fuse.DirEntry{
			Name: infos[i].Name,
			Mode: entryMode(&infos[i]),
		})
	}
	return fs.NewListDirStream(entries), 0
}

// Mkdir creates a directory, materializing any virtual ancestors.
func (n *DirectoryNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	ctx = n.fs.reqCtx(ctx)
	childPath := n.joinPath(name)

	if err := n.fs.overlay.Mkdir(ctx, childPath, os.FileMode(mode&0777)); err != nil {
		return nil, bperrors.ToErrno(err)
	}
	info, err := n.fs.overlay.Getattr(ctx, childPath)
	if err != nil {
		return nil, bperrors.ToErrno(err)
	}
	n.fs.fillAttr(info, &out.Attr)
	return n.newChild(ctx, childPath, true), 0
}

// Create creates and opens a file, materializing any virtual ancestors.
func (n *DirectoryNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	ctx = n.fs.reqCtx(ctx)
	childPath := n.joinPath(name)

	handle, err := n.fs.overlay.Create(ctx, childPath, int(flags), os.FileMode(mode&0777))
	if err != nil {
		return nil, nil, 0, bperrors.ToErrno(err)
	}
	info, err := n.fs.overlay.Getattr(ctx, childPath)
	if err != nil {
		_ = n.fs.overlay.Release(ctx, handle)
		return nil, nil, 0, bperrors.ToErrno(err)
	}
	n.fs.fillAttr(info, &out.Attr)

	node := n.newChild(ctx, childPath, false)
	fh := &FileHandle{fs: n.fs, id: handle, path: childPath}
	return node, fh, 0, 0
}

// Unlink removes a file.
func (n *DirectoryNode) Unlink(ctx context.Context, name string) syscall.Errno {
	ctx = n.fs.reqCtx(ctx)
	if err := n.fs.overlay.Unlink(ctx, n.joinPath(name)); err != nil {
		return bperrors.ToErrno(err)
	}
	return 0
}

// Rmdir removes a directory.
func (n *DirectoryNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	ctx = n.fs.reqCtx(ctx)
	if err := n.fs.overlay.Rmdir(ctx, n.joinPath(name)); err != nil {
		return bperrors.ToErrno(err)
	}
	return 0
}

// Rename moves an entry. Only plain renames are supported; exchange and
// no-replace variants are refused.
func (n *DirectoryNode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	if flags != 0 {
		return syscall.EINVAL
	}
	np, ok := newParent.(*DirectoryNode)
	if !ok {
		return syscall.EXDEV
	}
	ctx = n.fs.reqCtx(ctx)
	if err := n.fs.overlay.Rename(ctx, n.joinPath(name), np.joinPath(newName)); err != nil {
		return bperrors.ToErrno(err)
	}
	return 0
}

// Setattr acknowledges attribute changes. Directories have no truncatable
// size; mode, owner and time updates are accepted without effect because the
// store owns physical attributes and synthetic entries have fixed ones.
func (n *DirectoryNode) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	return n.fs.getattr(n.fs.reqCtx(ctx), n.path, out)
}

// Access answers permission probes through the overlay.
func (n *DirectoryNode) Access(ctx context.Context, mask uint32) syscall.Errno {
	ctx = n.fs.reqCtx(ctx)
	if err := n.fs.overlay.Access(ctx, n.path, mask); err != nil {
		return bperrors.ToErrno(err)
	}
	return 0
}

// Statfs reports statistics from the physical store.
func (n *DirectoryNode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	return n.fs.statfs(n.fs.reqCtx(ctx), out)
}

func (n *DirectoryNode) joinPath(name string) string {
	if n.path == "" {
		return name
	}
	return path.Join(n.path, name)
}

func (n *DirectoryNode) newChild(ctx context.Context, childPath string, isDir bool) *fs.Inode {
	if isDir {
		return n.NewInode(ctx, &DirectoryNode{fs: n.fs, path: childPath}, fs.StableAttr{
			Mode: fuse.S_IFDIR,
		})
	}
	return n.NewInode(ctx, &FileNode{fs: n.fs, path: childPath}, fs.StableAttr{
		Mode: fuse.S_IFREG,
	})
}

// FileNode is a regular file entry in the mounted view.
type FileNode struct {
	fs.Inode
	fs   *FileSystem
	path string
}

var _ = (fs.NodeOpener)((*FileNode)(nil))
var _ = (fs.NodeGetattrer)((*FileNode)(nil))
var _ = (fs.NodeSetattrer)((*FileNode)(nil))
var _ = (fs.NodeAccesser)((*FileNode)(nil))
var _ = (fs.NodeStatfser)((*FileNode)(nil))

// Open opens the file. Creation never comes through here; the kernel sends
// it to the parent directory as Create.
func (f *FileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	ctx = f.fs.reqCtx(ctx)
	handle, err := f.fs.overlay.Open(ctx, f.path, int(flags))
	if err != nil {
		return nil, 0, bperrors.ToErrno(err)
	}
	return &FileHandle{fs: f.fs, id: handle, path: f.path}, 0, 0
}

// Getattr reports the file's attributes.
func (f *FileNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	return f.fs.getattr(f.fs.reqCtx(ctx), f.path, out)
}

// Setattr applies a size change through the overlay. An open handle
// truncates through its descriptor, otherwise the truncate goes by name.
// Other attribute changes are accepted without effect.
func (f *FileNode) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	ctx = f.fs.reqCtx(ctx)
	if size, ok := in.GetSize(); ok {
		var err error
		if h, ok := fh.(*FileHandle); ok {
			err = f.fs.overlay.TruncateHandle(ctx, h.id, int64(size))
		} else {
			err = f.fs.overlay.Truncate(ctx, f.path, int64(size))
		}
		if err != nil {
			return bperrors.ToErrno(err)
		}
	}
	return f.fs.getattr(ctx, f.path, out)
}

// Access answers permission probes through the overlay.
func (f *FileNode) Access(ctx context.Context, mask uint32) syscall.Errno {
	ctx = f.fs.reqCtx(ctx)
	if err := f.fs.overlay.Access(ctx, f.path, mask); err != nil {
		return bperrors.ToErrno(err)
	}
	return 0
}

// Statfs reports statistics from the physical store.
func (f *FileNode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	return f.fs.statfs(f.fs.reqCtx(ctx), out)
}

// FileHandle is an open descriptor bound to an overlay handle.
type FileHandle struct {
	fs   *FileSystem
	id   uint64
	path string
}

var _ = (fs.FileReader)((*FileHandle)(nil))
var _ = (fs.FileWriter)((*FileHandle)(nil))
var _ = (fs.FileFlusher)((*FileHandle)(nil))
var _ = (fs.FileFsyncer)((*FileHandle)(nil))
var _ = (fs.FileReleaser)((*FileHandle)(nil))

// Read reads from the open handle.
func (fh *FileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	ctx = fh.fs.reqCtx(ctx)
	n, err := fh.fs.overlay.Read(ctx, fh.id, dest, off)
	if err != nil {
		return nil, bperrors.ToErrno(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

// Write writes to the open handle.
func (fh *FileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	ctx = fh.fs.reqCtx(ctx)
	n, err := fh.fs.overlay.Write(ctx, fh.id, data, off)
	if err != nil {
		return safeIntToUint32(n), bperrors.ToErrno(err)
	}
	return safeIntToUint32(n), 0
}

// Flush syncs pending writes when a descriptor closes.
func (fh *FileHandle) Flush(ctx context.Context) syscall.Errno {
	ctx = fh.fs.reqCtx(ctx)
	if err := fh.fs.overlay.Flush(ctx, fh.id); err != nil {
		return bperrors.ToErrno(err)
	}
	return 0
}

// Fsync forces the handle's data to stable storage.
func (fh *FileHandle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	ctx = fh.fs.reqCtx(ctx)
	if err := fh.fs.overlay.Fsync(ctx, fh.id); err != nil {
		return bperrors.ToErrno(err)
	}
	return 0
}

// Release closes the handle. The kernel sends Release exactly once per open
// descriptor, after the final flush.
func (fh *FileHandle) Release(ctx context.Context) syscall.Errno {
	ctx = fh.fs.reqCtx(ctx)
	if err := fh.fs.overlay.Release(ctx, fh.id); err != nil {
		return bperrors.ToErrno(err)
	}
	return 0
}
