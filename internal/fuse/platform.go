//go:build !cgofuse && !windows
// +build !cgofuse,!windows

package fuse

import (
	"context"

	"github.com/blueprintfs/blueprintfs/internal/logging"
	"github.com/blueprintfs/blueprintfs/internal/overlay"
)

// PlatformFileSystem is the mount lifecycle exposed to the adapter,
// independent of which FUSE binding serves the kernel.
type PlatformFileSystem interface {
	Mount(ctx context.Context) error
	Unmount() error
	IsMounted() bool
	MountPoint() string
	Wait()
}

// CreatePlatformMountManager creates the mount manager for this platform,
// serving the overlay through the in-process go-fuse binding.
func CreatePlatformMountManager(ov *overlay.Overlay, config *MountConfig, logger *logging.Logger) PlatformFileSystem {
	return NewMountManager(NewFileSystem(ov), config, logger)
}
