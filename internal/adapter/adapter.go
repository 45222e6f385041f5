package adapter

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/blueprintfs/blueprintfs/internal/blueprint"
	"github.com/blueprintfs/blueprintfs/internal/cache"
	"github.com/blueprintfs/blueprintfs/internal/config"
	"github.com/blueprintfs/blueprintfs/internal/fuse"
	"github.com/blueprintfs/blueprintfs/internal/logging"
	"github.com/blueprintfs/blueprintfs/internal/metrics"
	"github.com/blueprintfs/blueprintfs/internal/overlay"
	"github.com/blueprintfs/blueprintfs/internal/project"
	"github.com/blueprintfs/blueprintfs/internal/storage/local"
	"github.com/blueprintfs/blueprintfs/pkg/types"
)

// Adapter assembles the full blueprintfs stack: physical store, project
// provider, template builder, overlay and FUSE mount, plus the logging and
// metrics they share. One adapter serves one store root on one mount point
// for the life of the process.
type Adapter struct {
	config  *config.Configuration
	logger  *logging.Logger
	log     *logrus.Entry
	store   *local.Store
	builder *blueprint.Builder
	overlay *overlay.Overlay
	metrics *metrics.Collector
	mount   fuse.PlatformFileSystem

	mu      sync.Mutex
	started bool
}

// New assembles an adapter from configuration. Non-empty storeRoot and
// mountPoint override the corresponding configuration fields, matching the
// command line's positional arguments. The configuration is validated before
// any component is built.
func New(ctx context.Context, storeRoot, mountPoint string, cfg *config.Configuration) (*Adapter, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if storeRoot != "" {
		cfg.Store.Root = storeRoot
	}
	if mountPoint != "" {
		cfg.Mount.Point = mountPoint
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	assembled := false
	defer func() {
		if !assembled {
			_ = logger.Close()
		}
	}()

	store, err := local.New(cfg.Store.Root, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	metricsCfg := metrics.DefaultConfig()
	metricsCfg.Enabled = cfg.Metrics.Enabled
	metricsCfg.Address = cfg.Metrics.Address
	collector, err := metrics.NewCollector(metricsCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	refs, err := cfg.TemplateRefs()
	if err != nil {
		return nil, fmt.Errorf("invalid template configuration: %w", err)
	}
	names := make([]string, 0, len(refs))
	sections := make(map[string]types.InheritMode, len(refs))
	for _, ref := range refs {
		names = append(names, ref.ID)
		sections[ref.ID] = ref.Mode
	}
	provider := project.NewStaticProvider(
		cfg.Store.Marker,
		filepath.Join(cfg.Store.Root, cfg.Store.Collection),
		names,
		sections,
		logger,
	)

	// Validation guarantees a templates root whenever templates are
	// configured, so a nil source is only ever paired with empty builds.
	var source types.TemplateSource
	if cfg.Templates.Root != "" {
		source, err = project.NewDirSource(cfg.Templates.Root)
		if err != nil {
			return nil, fmt.Errorf("invalid templates root: %w", err)
		}
	}
	builder := blueprint.NewBuilder(source, logger, collector)

	ov, err := overlay.New(overlay.Options{
		Store:      store,
		Provider:   provider,
		Builder:    builder,
		Collection: cfg.Store.Collection,
		Viewport:   cfg.Mount.Viewport,
		Memo:       cache.NewMemo(cache.DefaultMemoConfig()),
		Metrics:    collector,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to assemble overlay: %w", err)
	}

	mountCfg := fuse.DefaultMountConfig(cfg.Mount.Point)
	mountCfg.AllowOther = cfg.Mount.AllowOther

	assembled = true
	return &Adapter{
		config:  cfg,
		logger:  logger,
		log:     logger.Component("adapter"),
		store:   store,
		builder: builder,
		overlay: ov,
		metrics: collector,
		mount:   fuse.CreatePlatformMountManager(ov, mountCfg, logger),
	}, nil
}

// Start builds the potential trees of the projects already in the
// collection, serves the metrics endpoint and mounts the filesystem. It
// returns once the mount is live; kernel requests are served in the
// background.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return fmt.Errorf("adapter is already started")
	}

	if err := a.overlay.WarmTrees(ctx); err != nil {
		return fmt.Errorf("failed to build potential trees: %w", err)
	}
	if err := a.metrics.Start(ctx); err != nil {
		return fmt.Errorf("failed to start metrics: %w", err)
	}
	if err := a.mount.Mount(ctx); err != nil {
		_ = a.metrics.Stop(ctx)
		return fmt.Errorf("failed to mount filesystem: %w", err)
	}

	a.started = true
	a.log.WithFields(logrus.Fields{
		"store_root":  a.config.Store.Root,
		"mount_point": a.config.Mount.Point,
		"collection":  a.config.Store.Collection,
		"templates":   len(a.config.Templates.Use),
	}).Info("blueprintfs started")
	return nil
}

// Stop unmounts the filesystem and releases every component. Open handles
// are closed through the overlay so no descriptor outlives the mount. The
// adapter is one-shot; a stopped adapter cannot be started again.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}

	var firstErr error
	if a.mount.IsMounted() {
		if err := a.mount.Unmount(); err != nil {
			a.log.WithField("error", err).Error("unmount failed")
			firstErr = fmt.Errorf("unmount: %w", err)
		}
	}
	if err := a.overlay.Close(ctx); err != nil {
		a.log.WithField("error", err).Error("overlay close failed")
		if firstErr == nil {
			firstErr = fmt.Errorf("overlay close: %w", err)
		}
	}
	if err := a.metrics.Stop(ctx); err != nil {
		a.log.WithField("error", err).Error("metrics stop failed")
		if firstErr == nil {
			firstErr = fmt.Errorf("metrics stop: %w", err)
		}
	}

	a.started = false
	a.log.Info("blueprintfs stopped")
	if err := a.logger.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("logger close: %w", err)
	}
	return firstErr
}

// Rebuild discards template snapshots, fixed-mode ones included, and
// rebuilds the potential tree of every known project. Operators trigger it
// with SIGHUP after editing templates.
func (a *Adapter) Rebuild(ctx context.Context) error {
	a.builder.DropSnapshots()
	return a.overlay.Rebuild(ctx)
}

// Wait blocks until the mounted filesystem is unmounted.
func (a *Adapter) Wait() {
	a.mount.Wait()
}

// Overlay exposes the assembled overlay.
func (a *Adapter) Overlay() *overlay.Overlay {
	return a.overlay
}

// Config returns the validated configuration the adapter runs with.
func (a *Adapter) Config() *config.Configuration {
	return a.config
}

// Logger returns the process logger so callers can log through the same
// sink the components use.
func (a *Adapter) Logger() *logging.Logger {
	return a.logger
}
