package overlay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blueprintfs/blueprintfs/internal/blueprint"
	"github.com/blueprintfs/blueprintfs/internal/logging"
	bperrors "github.com/blueprintfs/blueprintfs/pkg/errors"
	"github.com/blueprintfs/blueprintfs/pkg/types"
	"github.com/blueprintfs/blueprintfs/pkg/utils"
)

// callerKey tags a context with the calling identity for oracle decisions.
type callerKey struct{}

// WithCaller returns ctx tagged with the caller identity, e.g. "uid:1000".
// Bridges attach it from the kernel request context.
func WithCaller(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, callerKey{}, role)
}

func callerRole(ctx context.Context) string {
	role, _ := ctx.Value(callerKey{}).(string)
	return role
}

// Options wires an Overlay. Store, Provider, Builder, Collection and
// Viewport are required; the rest default to inert implementations.
type Options struct {
	Store      types.Store
	Provider   types.ConfigProvider
	Builder    *blueprint.Builder
	Collection string
	Viewport   string
	Oracle     types.PermissionOracle
	Memo       types.Memo
	Metrics    types.Metrics
	Logger     *logging.Logger
}

// Overlay merges each project's potential tree over its physical subtree and
// adapts filesystem operations onto the result. Reads never create anything;
// write-intent operations materialize the virtual ancestors they touch, then
// perform the physical operation. Every failure leaving the Overlay carries
// one of the five taxonomy codes.
type Overlay struct {
	store      types.Store
	provider   types.ConfigProvider
	builder    *blueprint.Builder
	classifier *Classifier
	mat        *Materializer
	oracle     types.PermissionOracle
	memo       types.Memo
	metrics    types.Metrics
	logger     *logrus.Entry
	collection string
	viewport   string
	mountTime  time.Time
	handles    *handleTable

	mu    sync.RWMutex
	trees map[string]*blueprint.Tree
}

// New validates opts and returns a ready Overlay.
func New(opts Options) (*Overlay, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("overlay: store is required")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("overlay: config provider is required")
	}
	if opts.Builder == nil {
		return nil, fmt.Errorf("overlay: builder is required")
	}
	if opts.Collection == "" || opts.Viewport == "" {
		return nil, fmt.Errorf("overlay: collection and viewport names are required")
	}
	if opts.Oracle == nil {
		opts.Oracle = types.AllowAllOracle{}
	}
	if opts.Metrics == nil {
		opts.Metrics = types.NopMetrics{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	o := &Overlay{
		store:      opts.Store,
		provider:   opts.Provider,
		builder:    opts.Builder,
		oracle:     opts.Oracle,
		memo:       opts.Memo,
		metrics:    opts.Metrics,
		logger:     opts.Logger.Component("overlay"),
		collection: opts.Collection,
		viewport:   opts.Viewport,
		mountTime:  time.Now(),
		handles:    newHandleTable(),
		trees:      make(map[string]*blueprint.Tree),
	}
	o.classifier = NewClassifier(opts.Collection, opts.Viewport, opts.Store, o, opts.Metrics)
	o.mat = NewMaterializer(opts.Store, opts.Memo, opts.Metrics, opts.Logger)
	return o, nil
}

// TreeFor returns the published potential tree for project, building it on
// first touch. The project must exist as a physical directory; the tree is
// rebuilt only through Rebuild.
func (o *Overlay) TreeFor(ctx context.Context, project string) (*blueprint.Tree, error) {
	o.mu.RLock()
	tree, ok := o.trees[project]
	o.mu.RUnlock()
	if ok {
		return tree, nil
	}

	projectRel := path.Join(o.collection, project)
	info, err := o.store.Stat(ctx, projectRel)
	if err != nil {
		return nil, bperrors.FromStore("project", project, err)
	}
	if !info.IsDir {
		return nil, bperrors.NotFound("project", project)
	}

	tree, err = o.buildTree(ctx, project)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	if published, ok := o.trees[project]; ok {
		// A racing build won; its tree is the published one.
		tree = published
	} else {
		o.trees[project] = tree
	}
	o.mu.Unlock()

	o.metrics.SetTreeNodes(project, float64(tree.Nodes()))
	return tree, nil
}

func (o *Overlay) buildTree(ctx context.Context, project string) (*blueprint.Tree, error) {
	phys, err := o.store.Resolve(path.Join(o.collection, project))
	if err != nil {
		return nil, bperrors.InvalidPath("project", project, err.Error())
	}
	root, err := o.provider.Resolve(ctx, phys)
	if err != nil {
		return nil, bperrors.IOFailure("project", project, err)
	}
	var refs []types.TemplateRef
	if root != nil {
		refs = root.Templates
	}
	return o.builder.Build(ctx, refs)
}

// WarmTrees builds the potential tree of every project currently in the
// collection, so the first kernel request does not pay for template scans.
// Projects created later build lazily on first touch.
func (o *Overlay) WarmTrees(ctx context.Context) error {
	entries, serr := o.store.List(ctx, o.collection)
	if serr != nil {
		if errors.Is(serr, fs.ErrNotExist) {
			return nil
		}
		return bperrors.FromStore("warm", o.collection, serr)
	}
	for _, e := range entries {
		if !e.IsDir || strings.HasPrefix(e.Name, ".") {
			continue
		}
		if _, err := o.TreeFor(ctx, e.Name); err != nil {
			return err
		}
	}
	return nil
}

// Rebuild rescans templates for every known project and atomically swaps in
// the fresh trees. Fixed-mode templates keep their snapshots; projects whose
// physical directory is gone are dropped.
func (o *Overlay) Rebuild(ctx context.Context) error {
	o.mu.RLock()
	projects := make([]string, 0, len(o.trees))
	for name := range o.trees {
		projects = append(projects, name)
	}
	o.mu.RUnlock()

	for _, project := range projects {
		if _, err := o.store.Stat(ctx, path.Join(o.collection, project)); err != nil {
			o.mu.Lock()
			delete(o.trees, project)
			o.mu.Unlock()
			o.metrics.SetTreeNodes(project, 0)
			o.logger.WithField("project", project).Info("project gone, tree dropped")
			continue
		}
		tree, err := o.buildTree(ctx, project)
		if err != nil {
			return err
		}
		o.mu.Lock()
		o.trees[project] = tree
		o.mu.Unlock()
		o.metrics.SetTreeNodes(project, float64(tree.Nodes()))
	}
	o.logger.WithField("projects", len(projects)).Info("potential trees rebuilt")
	return nil
}

// Close releases every live handle. Files still open at unmount are closed
// so no descriptor outlives the overlay.
func (o *Overlay) Close(ctx context.Context) error {
	files := o.handles.drain()
	for _, f := range files {
		if err := f.file.Close(); err != nil {
			o.logger.WithFields(logrus.Fields{"path": f.path, "error": err}).Warn("close at shutdown failed")
		}
	}
	if len(files) > 0 {
		o.logger.WithField("handles", len(files)).Info("released handles at shutdown")
	}
	return nil
}

// OpenHandles reports the number of live file handles.
func (o *Overlay) OpenHandles() int { return o.handles.count() }

// guard pairs panic containment with operation metrics. A panic inside an
// operation becomes an I/O failure on that one call; the mount keeps
// serving.
func (o *Overlay) guard(op, name string, err *error) func() {
	start := time.Now()
	return func() {
		if r := recover(); r != nil {
			o.logger.WithFields(logrus.Fields{"op": op, "path": name, "panic": r}).Error("operation panic recovered")
			*err = bperrors.IOFailure(op, name, fmt.Errorf("internal fault: %v", r))
		}
		outcome := "ok"
		if *err != nil {
			outcome = strings.ToLower(string(bperrors.CodeOf(*err)))
		}
		o.metrics.RecordOperation(op, time.Since(start), outcome)
	}
}

func (o *Overlay) storePath(cls types.Classification) string {
	return path.Join(o.collection, cls.Project, cls.Rel)
}

func (o *Overlay) syntheticDir(name string) types.EntryInfo {
	return types.EntryInfo{
		Name:    name,
		Size:    4096,
		Mode:    os.ModeDir | 0555,
		ModTime: o.mountTime,
		IsDir:   true,
	}
}

func segmentNames(cls types.Classification) []string {
	names := make([]string, len(cls.Segments))
	for i, s := range cls.Segments {
		names[i] = s.Name
	}
	return names
}

// allow consults the permission oracle for a materializing write.
func (o *Overlay) allow(ctx context.Context, op, name string) error {
	if o.oracle.Allow(ctx, callerRole(ctx), name, op) {
		return nil
	}
	o.metrics.RecordMaterialization("denied")
	return bperrors.PermissionDenied(op, name, "denied by permission oracle")
}

// readOnlyZone rejects mutations outside project-relative territory and
// mutations of project roots themselves.
func (o *Overlay) readOnlyZone(op, name string, cls types.Classification) error {
	if cls.Zone != types.ZoneProjectRelative {
		return bperrors.PermissionDenied(op, name, "read-only zone: "+cls.Zone.String())
	}
	if cls.Rel == "" {
		return bperrors.PermissionDenied(op, name, "projects are managed outside the mount")
	}
	return nil
}

// rootZoneError converts a classification miss for a direct child of the
// mount root into the root zone's read-only policy. Creation operations call
// it so that mkdir of a new top-level name is denied rather than not-found;
// everything deeper keeps its original result.
func rootZoneError(op, name string, err error) error {
	if !bperrors.IsNotFound(err) {
		return err
	}
	if segments, serr := utils.SplitPath(name); serr == nil && len(segments) == 1 {
		return bperrors.PermissionDenied(op, name, "read-only zone: "+types.ZoneRoot.String())
	}
	return err
}

// viewportGhost reports a viewport path whose relative part the tree does
// not declare. Such a name does not exist in any sense.
func viewportGhost(cls types.Classification) bool {
	return cls.Zone == types.ZoneViewport && len(cls.Segments) > 0 && !cls.LeafVirtual()
}

// Getattr resolves attributes for name. Physical entries report real
// attributes; virtual entries report synthetic read-only directory
// attributes; everything else is not-found.
func (o *Overlay) Getattr(ctx context.Context, name string) (_ *types.EntryInfo, err error) {
	defer o.guard("getattr", name, &err)()

	cls, err := o.classifier.Classify(ctx, "getattr", name)
	if err != nil {
		return nil, err
	}

	switch cls.Zone {
	case types.ZoneRoot:
		info := o.syntheticDir("")
		return &info, nil
	case types.ZoneProjectList:
		info := o.syntheticDir(o.collection)
		return &info, nil
	case types.ZoneViewport:
		if viewportGhost(cls) {
			return nil, bperrors.NotFound("getattr", name)
		}
		base := o.viewport
		if names := segmentNames(cls); len(names) > 0 {
			base = names[len(names)-1]
		}
		info := o.syntheticDir(base)
		return &info, nil
	}

	rel := o.storePath(cls)
	info, serr := o.store.Stat(ctx, rel)
	if serr == nil {
		return info, nil
	}
	if !errors.Is(serr, fs.ErrNotExist) {
		return nil, bperrors.FromStore("getattr", name, serr)
	}
	if cls.LeafVirtual() {
		info := o.syntheticDir(path.Base(rel))
		return &info, nil
	}
	return nil, bperrors.NotFound("getattr", name)
}

// Readdir lists a directory. Project-relative listings union the physical
// entries with the still-virtual tree names at that depth, each virtual name
// shown once as a synthetic directory. Hidden physical entries stay hidden,
// and the viewport never appears in listings: it resolves by name only.
func (o *Overlay) Readdir(ctx context.Context, name string) (_ []types.EntryInfo, err error) {
	defer o.guard("readdir", name, &err)()

	cls, err := o.classifier.Classify(ctx, "readdir", name)
	if err != nil {
		return nil, err
	}

	switch cls.Zone {
	case types.ZoneRoot:
		return []types.EntryInfo{o.syntheticDir(o.collection)}, nil
	case types.ZoneProjectList:
		return o.readProjectList(ctx, name)
	case types.ZoneViewport:
		return o.readViewport(ctx, name, cls)
	}
	return o.readProjectRelative(ctx, name, cls)
}

func (o *Overlay) readProjectList(ctx context.Context, name string) ([]types.EntryInfo, error) {
	entries, serr := o.store.List(ctx, o.collection)
	if serr != nil {
		if errors.Is(serr, fs.ErrNotExist) {
			// The collection directory has not been created yet.
			return []types.EntryInfo{}, nil
		}
		return nil, bperrors.FromStore("readdir", name, serr)
	}
	out := make([]types.EntryInfo, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir || strings.HasPrefix(e.Name, ".") {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (o *Overlay) readViewport(ctx context.Context, name string, cls types.Classification) ([]types.EntryInfo, error) {
	tree, err := o.TreeFor(ctx, cls.Project)
	if err != nil {
		return nil, err
	}
	node, ok := tree.At(segmentNames(cls))
	if !ok {
		return nil, bperrors.NotFound("readdir", name)
	}
	keys := node.Keys()
	out := make([]types.EntryInfo, 0, len(keys))
	for _, key := range keys {
		out = append(out, o.syntheticDir(key))
	}
	return out, nil
}

func (o *Overlay) readProjectRelative(ctx context.Context, name string, cls types.Classification) ([]types.EntryInfo, error) {
	tree, err := o.TreeFor(ctx, cls.Project)
	if err != nil {
		return nil, err
	}
	node, nodeOK := tree.At(segmentNames(cls))

	rel := o.storePath(cls)
	physical, serr := o.store.List(ctx, rel)
	switch {
	case serr == nil:
		// Merge physical and virtual below.
	case errors.Is(serr, fs.ErrNotExist):
		if !cls.LeafVirtual() {
			return nil, bperrors.NotFound("readdir", name)
		}
		// A purely virtual directory lists its subtree alone: nothing
		// physical can live under an unmaterialized directory.
		keys := node.Keys()
		out := make([]types.EntryInfo, 0, len(keys))
		for _, key := range keys {
			out = append(out, o.syntheticDir(key))
		}
		return out, nil
	default:
		return nil, bperrors.FromStore("readdir", name, serr)
	}

	out := make([]types.EntryInfo, 0, len(physical)+node.Len())
	seen := make(map[string]bool, len(physical))
	for _, e := range physical {
		if strings.HasPrefix(e.Name, ".") {
			continue
		}
		out = append(out, e)
		seen[e.Name] = true
	}
	if nodeOK {
		for _, key := range node.Keys() {
			if !seen[key] {
				out = append(out, o.syntheticDir(key))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Mkdir creates a directory. A name the tree declares is a materialization
// request and is created with create-if-absent semantics, so racing callers
// converge on one directory and all succeed; an undeclared name is created
// strictly, so a genuine duplicate surfaces as already-exists.
func (o *Overlay) Mkdir(ctx context.Context, name string, mode os.FileMode) (err error) {
	defer o.guard("mkdir", name, &err)()

	cls, err := o.classifier.Classify(ctx, "mkdir", name)
	if err != nil {
		return rootZoneError("mkdir", name, err)
	}
	if err := o.readOnlyZone("mkdir", name, cls); err != nil {
		return err
	}
	if err := o.allow(ctx, "mkdir", name); err != nil {
		return err
	}

	rel := o.storePath(cls)
	if cls.AncestorVirtual() {
		if err := o.mat.EnsureParents(ctx, rel); err != nil {
			return err
		}
	}
	tree, err := o.TreeFor(ctx, cls.Project)
	if err != nil {
		return err
	}
	if _, declared := tree.At(segmentNames(cls)); declared {
		return o.mat.EnsureDir(ctx, rel)
	}
	if serr := o.store.Mkdir(ctx, rel, mode); serr != nil {
		return bperrors.FromStore("mkdir", name, serr)
	}
	if o.memo != nil {
		o.memo.Record(rel)
	}
	return nil
}

// Create creates and opens a file, materializing virtual ancestors first.
// O_EXCL is honored: an existing physical target fails already-exists.
func (o *Overlay) Create(ctx context.Context, name string, flags int, mode os.FileMode) (_ uint64, err error) {
	defer o.guard("create", name, &err)()

	cls, err := o.classifier.Classify(ctx, "create", name)
	if err != nil {
		return 0, rootZoneError("create", name, err)
	}
	if err := o.readOnlyZone("create", name, cls); err != nil {
		return 0, err
	}
	if err := o.allow(ctx, "create", name); err != nil {
		return 0, err
	}

	rel := o.storePath(cls)
	if cls.AncestorVirtual() {
		if err := o.mat.EnsureParents(ctx, rel); err != nil {
			return 0, err
		}
	}
	f, serr := o.store.OpenFile(ctx, rel, flags|os.O_CREATE, mode)
	if serr != nil {
		return 0, bperrors.FromStore("create", name, serr)
	}
	if o.memo != nil {
		o.memo.Record(rel)
	}
	o.logger.WithField("path", name).Debug("file created")
	return o.handles.insert(f, name, flags), nil
}

// Open opens an existing physical file. Virtual and absent paths are
// not-found: open never materializes, creation flows through Create.
func (o *Overlay) Open(ctx context.Context, name string, flags int) (_ uint64, err error) {
	defer o.guard("open", name, &err)()

	cls, err := o.classifier.Classify(ctx, "open", name)
	if err != nil {
		return 0, err
	}
	if viewportGhost(cls) {
		return 0, bperrors.NotFound("open", name)
	}
	if cls.Zone != types.ZoneProjectRelative || cls.Rel == "" {
		return 0, bperrors.IOFailure("open", name, syscall.EISDIR)
	}

	rel := o.storePath(cls)
	info, serr := o.store.Stat(ctx, rel)
	if serr != nil {
		if errors.Is(serr, fs.ErrNotExist) {
			return 0, bperrors.NotFound("open", name)
		}
		return 0, bperrors.FromStore("open", name, serr)
	}
	if info.IsDir {
		return 0, bperrors.IOFailure("open", name, syscall.EISDIR)
	}

	// Open never creates, even if a racing delete makes the stat stale.
	flags &^= os.O_CREATE
	f, serr := o.store.OpenFile(ctx, rel, flags, 0)
	if serr != nil {
		return 0, bperrors.FromStore("open", name, serr)
	}
	return o.handles.insert(f, name, flags), nil
}

// Read reads from an open handle.
func (o *Overlay) Read(ctx context.Context, handle uint64, dest []byte, off int64) (_ int, err error) {
	defer o.guard("read", "", &err)()

	f, ok := o.handles.get(handle)
	if !ok {
		return 0, bperrors.NotFound("read", "")
	}
	n, rerr := f.file.ReadAt(dest, off)
	if rerr != nil && rerr != io.EOF {
		return 0, bperrors.IOFailure("read", f.path, rerr)
	}
	return n, nil
}

// Write writes to an open handle.
func (o *Overlay) Write(ctx context.Context, handle uint64, data []byte, off int64) (_ int, err error) {
	defer o.guard("write", "", &err)()

	f, ok := o.handles.get(handle)
	if !ok {
		return 0, bperrors.NotFound("write", "")
	}
	n, werr := f.file.WriteAt(data, off)
	if werr != nil {
		return n, bperrors.IOFailure("write", f.path, werr)
	}
	return n, nil
}

// Flush syncs an open handle at close-of-descriptor time.
func (o *Overlay) Flush(ctx context.Context, handle uint64) (err error) {
	defer o.guard("flush", "", &err)()

	f, ok := o.handles.get(handle)
	if !ok {
		return bperrors.NotFound("flush", "")
	}
	if serr := f.file.Sync(); serr != nil {
		return bperrors.IOFailure("flush", f.path, serr)
	}
	return nil
}

// Fsync forces an open handle to stable storage.
func (o *Overlay) Fsync(ctx context.Context, handle uint64) (err error) {
	defer o.guard("fsync", "", &err)()

	f, ok := o.handles.get(handle)
	if !ok {
		return bperrors.NotFound("fsync", "")
	}
	if serr := f.file.Sync(); serr != nil {
		return bperrors.IOFailure("fsync", f.path, serr)
	}
	return nil
}

// Release closes an open handle.
func (o *Overlay) Release(ctx context.Context, handle uint64) (err error) {
	defer o.guard("release", "", &err)()

	f, ok := o.handles.remove(handle)
	if !ok {
		return bperrors.NotFound("release", "")
	}
	if serr := f.file.Close(); serr != nil {
		return bperrors.IOFailure("release", f.path, serr)
	}
	return nil
}

// Truncate changes the size of a physical file by path. Virtual and absent
// paths cannot be truncated.
func (o *Overlay) Truncate(ctx context.Context, name string, size int64) (err error) {
	defer o.guard("truncate", name, &err)()

	cls, err := o.classifier.Classify(ctx, "truncate", name)
	if err != nil {
		return err
	}
	if err := o.readOnlyZone("truncate", name, cls); err != nil {
		return err
	}

	rel := o.storePath(cls)
	info, serr := o.store.Stat(ctx, rel)
	if serr != nil {
		if errors.Is(serr, fs.ErrNotExist) {
			return bperrors.NotFound("truncate", name)
		}
		return bperrors.FromStore("truncate", name, serr)
	}
	if info.IsDir {
		return bperrors.IOFailure("truncate", name, syscall.EISDIR)
	}
	if serr := o.store.Truncate(ctx, rel, size); serr != nil {
		return bperrors.FromStore("truncate", name, serr)
	}
	return nil
}

// TruncateHandle changes the size of an open handle.
func (o *Overlay) TruncateHandle(ctx context.Context, handle uint64, size int64) (err error) {
	defer o.guard("truncate", "", &err)()

	f, ok := o.handles.get(handle)
	if !ok {
		return bperrors.NotFound("truncate", "")
	}
	if serr := f.file.Truncate(size); serr != nil {
		return bperrors.IOFailure("truncate", f.path, serr)
	}
	return nil
}

// accessWrite is the POSIX W_OK bit of an access mask.
const accessWrite = 0x2

// Access answers permission probes. Reads succeed on anything that exists,
// physically or virtually; write intent on a virtual entry asks the oracle
// for permission to cause materialization; write intent into read-only
// zones is denied.
func (o *Overlay) Access(ctx context.Context, name string, mask uint32) (err error) {
	defer o.guard("access", name, &err)()

	cls, err := o.classifier.Classify(ctx, "access", name)
	if err != nil {
		return err
	}
	write := mask&accessWrite != 0

	if cls.Zone != types.ZoneProjectRelative {
		if viewportGhost(cls) {
			return bperrors.NotFound("access", name)
		}
		if write {
			return bperrors.PermissionDenied("access", name, "read-only zone: "+cls.Zone.String())
		}
		return nil
	}

	rel := o.storePath(cls)
	if _, serr := o.store.Stat(ctx, rel); serr == nil {
		return nil
	} else if !errors.Is(serr, fs.ErrNotExist) {
		return bperrors.FromStore("access", name, serr)
	}
	if cls.LeafVirtual() {
		if write {
			return o.allow(ctx, "write", name)
		}
		return nil
	}
	return bperrors.NotFound("access", name)
}

// Unlink removes a physical file. Virtual entries are declared by templates
// and cannot be removed through the overlay.
func (o *Overlay) Unlink(ctx context.Context, name string) (err error) {
	defer o.guard("unlink", name, &err)()

	cls, err := o.classifier.Classify(ctx, "unlink", name)
	if err != nil {
		return err
	}
	if err := o.readOnlyZone("unlink", name, cls); err != nil {
		return err
	}

	rel := o.storePath(cls)
	info, serr := o.store.Stat(ctx, rel)
	if serr != nil {
		if !errors.Is(serr, fs.ErrNotExist) {
			return bperrors.FromStore("unlink", name, serr)
		}
		if cls.LeafVirtual() {
			return bperrors.PermissionDenied("unlink", name, "virtual entries cannot be removed")
		}
		return bperrors.NotFound("unlink", name)
	}
	if info.IsDir {
		return bperrors.IOFailure("unlink", name, syscall.EISDIR)
	}
	if serr := o.store.Remove(ctx, rel); serr != nil {
		return bperrors.FromStore("unlink", name, serr)
	}
	if o.memo != nil {
		o.memo.Forget(rel)
	}
	return nil
}

// Rmdir removes a physical directory. Removing a materialized tree name
// reverts it to virtual: the template still declares it.
func (o *Overlay) Rmdir(ctx context.Context, name string) (err error) {
	defer o.guard("rmdir", name, &err)()

	cls, err := o.classifier.Classify(ctx, "rmdir", name)
	if err != nil {
		return err
	}
	if err := o.readOnlyZone("rmdir", name, cls); err != nil {
		return err
	}

	rel := o.storePath(cls)
	info, serr := o.store.Stat(ctx, rel)
	if serr != nil {
		if !errors.Is(serr, fs.ErrNotExist) {
			return bperrors.FromStore("rmdir", name, serr)
		}
		if cls.LeafVirtual() {
			return bperrors.PermissionDenied("rmdir", name, "virtual entries cannot be removed")
		}
		return bperrors.NotFound("rmdir", name)
	}
	if !info.IsDir {
		return bperrors.IOFailure("rmdir", name, syscall.ENOTDIR)
	}
	if serr := o.store.Remove(ctx, rel); serr != nil {
		return bperrors.FromStore("rmdir", name, serr)
	}
	if o.memo != nil {
		o.memo.Forget(rel)
	}
	return nil
}

// Rename moves a physical entry. The source must be physical; virtual
// sources cannot move because nothing physical exists to move. Virtual
// ancestors of the destination are materialized first.
func (o *Overlay) Rename(ctx context.Context, oldName, newName string) (err error) {
	defer o.guard("rename", oldName, &err)()

	oldCls, err := o.classifier.Classify(ctx, "rename", oldName)
	if err != nil {
		return err
	}
	if err := o.readOnlyZone("rename", oldName, oldCls); err != nil {
		return err
	}
	newCls, err := o.classifier.Classify(ctx, "rename", newName)
	if err != nil {
		return rootZoneError("rename", newName, err)
	}
	if err := o.readOnlyZone("rename", newName, newCls); err != nil {
		return err
	}

	oldRel := o.storePath(oldCls)
	if _, serr := o.store.Stat(ctx, oldRel); serr != nil {
		if !errors.Is(serr, fs.ErrNotExist) {
			return bperrors.FromStore("rename", oldName, serr)
		}
		if oldCls.LeafVirtual() {
			return bperrors.PermissionDenied("rename", oldName, "virtual entries cannot be renamed")
		}
		return bperrors.NotFound("rename", oldName)
	}

	if err := o.allow(ctx, "rename", newName); err != nil {
		return err
	}
	newRel := o.storePath(newCls)
	if newCls.AncestorVirtual() {
		if err := o.mat.EnsureParents(ctx, newRel); err != nil {
			return err
		}
	}
	if serr := o.store.Rename(ctx, oldRel, newRel); serr != nil {
		return bperrors.FromStore("rename", oldName, serr)
	}
	if o.memo != nil {
		o.memo.Forget(oldRel)
		o.memo.Record(newRel)
	}
	return nil
}

// Statfs reports statistics from the physical store's root.
func (o *Overlay) Statfs(ctx context.Context) (_ *types.FSStats, err error) {
	defer o.guard("statfs", "", &err)()

	stats, serr := o.store.Statfs(ctx)
	if serr != nil {
		return nil, bperrors.IOFailure("statfs", "", serr)
	}
	return stats, nil
}
