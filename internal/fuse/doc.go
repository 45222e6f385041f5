/*
Package fuse bridges the blueprintfs overlay to the kernel.

Two bindings serve the same overlay behind one PlatformFileSystem interface,
selected with build constraints:

Default build (go-fuse):
  - Target: Linux and macOS
  - Implementation: github.com/hanwen/go-fuse/v2 inode API
  - In-process serving, no external library needed

CGO build (-tags cgofuse):
  - Target: platforms served by libfuse or WinFsp, Windows included
  - Implementation: github.com/winfsp/cgofuse path API
  - Required on Windows, where the default binding does not build

# Translation

The bridge owns no filesystem semantics. Every operation trims kernel path
conventions, tags the request context with the caller identity, delegates to
the overlay and converts the result: entry metadata into kernel attribute
structures, taxonomy errors into errnos. The mapping is uniform across
bindings:

	invalid path       EINVAL
	not found          ENOENT
	already exists     EEXIST
	permission denied  EACCES
	I/O failure        the wrapped errno when present, else EIO

# Mount lifecycle

MountManager (go-fuse) and CgoFuseMountManager (cgofuse) validate the mount
point, serve in the background, and unmount on request with a lazy-unmount
fallback when the regular path is refused. MountWatcher periodically checks
the kernel mount table and logs when a mount the manager believes is live
has disappeared, which usually means an external fusermount -u.
*/
package fuse
