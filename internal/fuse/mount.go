//go:build !windows
// +build !windows

package fuse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"

	"github.com/blueprintfs/blueprintfs/internal/logging"
)

// Unmount flags for the fallback path when the regular unmount fails.
const (
	unmountForce  = 0x1 // MNT_FORCE
	unmountDetach = 0x2 // MNT_DETACH
)

// watchInterval is how often a live mount is checked against the kernel
// mount table.
const watchInterval = 30 * time.Second

// MountManager owns the FUSE server lifecycle for one mount point.
type MountManager struct {
	filesystem *FileSystem
	config     *MountConfig
	logger     *logrus.Entry

	mu      sync.Mutex
	server  *fuse.Server
	watcher *MountWatcher
	mounted bool
}

// NewMountManager creates a mount manager for the given bridge.
func NewMountManager(filesystem *FileSystem, config *MountConfig, logger *logging.Logger) *MountManager {
	if config == nil {
		config = DefaultMountConfig("")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &MountManager{
		filesystem: filesystem,
		config:     config,
		logger:     logger.Component("fuse"),
	}
}

// Mount mounts the filesystem and starts serving kernel requests in the
// background. It returns once the kernel handshake completes.
func (m *MountManager) Mount(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mounted {
		return fmt.Errorf("filesystem is already mounted")
	}
	if err := m.validateMountPoint(); err != nil {
		return fmt.Errorf("invalid mount point: %w", err)
	}

	server, err := fs.Mount(m.config.Point, m.filesystem.Root(), m.buildFUSEOptions())
	if err != nil {
		return fmt.Errorf("failed to mount filesystem: %w", err)
	}

	m.server = server
	m.mounted = true
	m.watcher = NewMountWatcher(m, watchInterval)
	m.watcher.Start()
	m.logger.WithField("mount_point", m.config.Point).Info("filesystem mounted")

	go func() {
		server.Wait()
		m.mu.Lock()
		m.mounted = false
		watcher := m.watcher
		m.watcher = nil
		m.mu.Unlock()
		if watcher != nil {
			watcher.Stop()
		}
		m.logger.WithField("mount_point", m.config.Point).Info("fuse server stopped")
	}()

	return nil
}

// Unmount detaches the filesystem. When the regular unmount is refused, for
// example because a process still holds a file open, a lazy unmount detaches
// the mount point and lets the kernel finish when the last user goes away.
func (m *MountManager) Unmount() error {
	// Stop the watcher outside the lock; its checks take the same lock.
	m.mu.Lock()
	watcher := m.watcher
	m.watcher = nil
	m.mu.Unlock()
	if watcher != nil {
		watcher.Stop()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.mounted {
		return fmt.Errorf("filesystem is not mounted")
	}
	if m.server == nil {
		return fmt.Errorf("no active server to unmount")
	}

	m.logger.WithField("mount_point", m.config.Point).Info("unmounting filesystem")

	if err := m.server.Unmount(); err != nil {
		m.logger.WithField("error", err).Warn("unmount refused, trying lazy unmount")
		if forceErr := m.forceUnmount(); forceErr != nil {
			return fmt.Errorf("unmount failed: %w (forced unmount also failed: %v)", err, forceErr)
		}
	}

	m.mounted = false
	m.server = nil
	return nil
}

// IsMounted reports whether the filesystem is currently mounted.
func (m *MountManager) IsMounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounted
}

// MountPoint returns the configured mount point.
func (m *MountManager) MountPoint() string {
	return m.config.Point
}

// Wait blocks until the FUSE server exits.
func (m *MountManager) Wait() {
	m.mu.Lock()
	server := m.server
	m.mu.Unlock()
	if server != nil {
		server.Wait()
	}
}

func (m *MountManager) validateMountPoint() error {
	if m.config.Point == "" {
		return fmt.Errorf("mount point cannot be empty")
	}

	info, err := os.Stat(m.config.Point)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("mount point does not exist: %s", m.config.Point)
		}
		return fmt.Errorf("cannot access mount point: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mount point is not a directory: %s", m.config.Point)
	}

	entries, err := os.ReadDir(m.config.Point)
	if err != nil {
		return fmt.Errorf("cannot read mount point directory: %w", err)
	}
	if len(entries) > 0 {
		m.logger.WithField("mount_point", m.config.Point).Warn("mount point is not empty")
	}

	if mounted, ok := m.inMountTable(); ok && mounted {
		return fmt.Errorf("mount point %s is already mounted", m.config.Point)
	}
	return nil
}

func (m *MountManager) buildFUSEOptions() *fs.Options {
	attrTimeout := m.config.AttrTimeout
	entryTimeout := m.config.EntryTimeout

	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			Name:       m.config.Subtype,
			FsName:     m.config.FSName,
			Debug:      m.config.Debug,
			AllowOther: m.config.AllowOther,
			MaxWrite:   m.config.MaxWrite,
		},
		AttrTimeout:  &attrTimeout,
		EntryTimeout: &entryTimeout,

		// Entry modes come fully formed from the overlay.
		NullPermissions: true,
	}

	if m.config.ReadOnly {
		opts.MountOptions.Options = append(opts.MountOptions.Options, "ro")
	}
	if m.config.AllowRoot {
		opts.MountOptions.Options = append(opts.MountOptions.Options, "allow_root")
	}
	return opts
}

// inMountTable consults the kernel mount table for the mount point. The
// second result reports whether the table could be read at all; hosts
// without /proc/mounts cannot answer either way.
func (m *MountManager) inMountTable() (mounted, ok bool) {
	data, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return false, false
	}
	target := filepath.Clean(m.config.Point)
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == target {
			return true, true
		}
	}
	return false, true
}

func (m *MountManager) forceUnmount() error {
	if err := syscall.Unmount(m.config.Point, unmountDetach); err == nil {
		return nil
	}
	return syscall.Unmount(m.config.Point, unmountForce)
}

// MountWatcher periodically verifies that a mount the manager believes is
// live still appears in the kernel mount table, and logs when it does not.
// An external fusermount -u is the usual cause.
type MountWatcher struct {
	manager  *MountManager
	interval time.Duration
	logger   *logrus.Entry
	stopCh   chan struct{}
	stopped  chan struct{}
	started  bool
}

// NewMountWatcher creates a watcher over the manager's mount point.
func NewMountWatcher(manager *MountManager, interval time.Duration) *MountWatcher {
	if interval == 0 {
		interval = watchInterval
	}
	return &MountWatcher{
		manager:  manager,
		interval: interval,
		logger:   manager.logger,
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start begins watching in the background.
func (w *MountWatcher) Start() {
	if w.started {
		return
	}
	w.started = true
	go w.run()
}

// Stop halts the watcher and waits for it to finish.
func (w *MountWatcher) Stop() {
	if !w.started {
		return
	}
	close(w.stopCh)
	<-w.stopped
	w.started = false
}

func (w *MountWatcher) run() {
	defer close(w.stopped)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.checkMount()
		}
	}
}

func (w *MountWatcher) checkMount() {
	if !w.manager.IsMounted() {
		return
	}
	mounted, ok := w.manager.inMountTable()
	if ok && !mounted {
		w.logger.WithField("mount_point", w.manager.MountPoint()).
			Warn("mount point missing from kernel mount table; possibly unmounted externally")
	}
}
