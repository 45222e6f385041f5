/*
Package adapter assembles the blueprintfs components into one runnable
instance and owns their lifecycle.

New wires the stack bottom-up from validated configuration: the physical
store, the project provider and template source, the blueprint builder, the
materialization memo, the metrics collector, the overlay and finally the
platform FUSE mount. Components only meet through the interfaces in
pkg/types, so everything above the store can be exercised against fixtures.

# Lifecycle

Start serves the metrics endpoint and mounts the filesystem; it returns once
the mount is live. Stop unmounts, closes any handles still open through the
overlay, shuts the metrics endpoint down and closes the log sink. The
adapter is one-shot: a stopped adapter is done, a new one is assembled for
the next mount.

Rebuild discards template snapshots and rebuilds the potential tree of every
known project. The command binary calls it on SIGHUP so operators can pick
up template edits without remounting.

# Usage

	adapter, err := adapter.New(ctx, storeRoot, mountPoint, cfg)
	if err != nil {
		...
	}
	if err := adapter.Start(ctx); err != nil {
		...
	}
	defer adapter.Stop(ctx)
	adapter.Wait()
*/
package adapter
