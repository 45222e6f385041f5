//go:build cgofuse
// +build cgofuse

package fuse

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/winfsp/cgofuse/fuse"

	"github.com/blueprintfs/blueprintfs/internal/logging"
	"github.com/blueprintfs/blueprintfs/internal/overlay"
)

// CgoFuseMountManager owns the cgofuse host lifecycle for one mount point.
type CgoFuseMountManager struct {
	filesystem *CgoFuseFS
	config     *MountConfig
	logger     *logrus.Entry

	mu      sync.Mutex
	host    *fuse.FileSystemHost
	done    chan struct{}
	mounted bool
}

// NewCgoFuseMountManager creates a cgofuse mount manager over the overlay.
func NewCgoFuseMountManager(ov *overlay.Overlay, config *MountConfig, logger *logging.Logger) *CgoFuseMountManager {
	if config == nil {
		config = DefaultMountConfig("")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &CgoFuseMountManager{
		filesystem: NewCgoFuseFS(ov),
		config:     config,
		logger:     logger.Component("fuse"),
	}
}

// Mount mounts the filesystem. The cgofuse host serves from its own
// goroutine; an immediate mount failure is reported, later failures end the
// serve loop and are visible through IsMounted.
func (m *CgoFuseMountManager) Mount(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mounted {
		return fmt.Errorf("filesystem is already mounted")
	}

	host := fuse.NewFileSystemHost(m.filesystem)
	done := make(chan struct{})

	go func() {
		defer close(done)
		if ok := host.Mount(m.config.Point, m.buildOptions()); !ok {
			m.logger.WithField("mount_point", m.config.Point).Error("cgofuse mount exited with failure")
		}
		m.mu.Lock()
		m.mounted = false
		m.mu.Unlock()
	}()

	// cgofuse reports mount failures by returning from Mount; give the
	// host a moment so immediate failures surface as errors here.
	select {
	case <-done:
		return fmt.Errorf("failed to mount filesystem at %s", m.config.Point)
	case <-time.After(100 * time.Millisecond):
	}

	m.host = host
	m.done = done
	m.mounted = true
	m.logger.WithField("mount_point", m.config.Point).Info("filesystem mounted")
	return nil
}

// Unmount detaches the filesystem and waits for the host to exit.
func (m *CgoFuseMountManager) Unmount() error {
	m.mu.Lock()
	if !m.mounted || m.host == nil {
		m.mu.Unlock()
		return fmt.Errorf("filesystem is not mounted")
	}
	host, done := m.host, m.done
	m.mu.Unlock()

	m.logger.WithField("mount_point", m.config.Point).Info("unmounting filesystem")
	if ok := host.Unmount(); !ok {
		return fmt.Errorf("unmount failed for %s", m.config.Point)
	}
	<-done

	m.mu.Lock()
	m.host = nil
	m.done = nil
	m.mounted = false
	m.mu.Unlock()
	return nil
}

// IsMounted reports whether the filesystem is currently mounted.
func (m *CgoFuseMountManager) IsMounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounted
}

// MountPoint returns the configured mount point.
func (m *CgoFuseMountManager) MountPoint() string {
	return m.config.Point
}

// Wait blocks until the host exits.
func (m *CgoFuseMountManager) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (m *CgoFuseMountManager) buildOptions() []string {
	opts := []string{"-o", "fsname=" + m.config.FSName}
	if m.config.AllowOther {
		opts = append(opts, "-o", "allow_other")
	}
	if m.config.ReadOnly {
		opts = append(opts, "-o", "ro")
	}
	switch runtime.GOOS {
	case "linux":
		if m.config.Subtype != "" {
			opts = append(opts, "-o", "subtype="+m.config.Subtype)
		}
	case "darwin":
		opts = append(opts, "-o", "volname="+m.config.FSName)
	case "windows":
		opts = append(opts, "-o", "FileSystemName="+m.config.FSName)
	}
	return opts
}
