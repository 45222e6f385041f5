/*
Package overlay implements the virtual/physical merge at the heart of
blueprintfs: templates declare directory structure that does not exist yet,
the overlay shows it, and the first write-intent operation makes the touched
part physical.

# Architecture

	┌─────────────────────────────────────────────┐
	│               FUSE Bridge                   │
	│        (kernel paths and errnos)            │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│               OVERLAY LAYER                 │ ← This Package
	│                                             │
	│  Classifier ── zone + per-segment virtual   │
	│  Materializer ── virtual chain → physical   │
	│  Operations ── getattr/readdir/create/...   │
	└─────────────────────────────────────────────┘
	        │                 │              │
	┌───────┴─────┐   ┌───────┴──────┐  ┌────┴─────┐
	│  Blueprint  │   │   Physical   │  │   Memo   │
	│   (trees)   │   │    Store     │  │  (hint)  │
	└─────────────┘   └──────────────┘  └──────────┘

# Path Classification

Every caller path is validated and assigned to a zone before anything else
happens. Traversal segments, encoded traversal, separators inside segments
and disallowed hidden names are rejected without a single store call. The
zones:

  - root: the mount root, synthetic, shows only the collection
  - project-list: the collection directory, physical projects only
  - viewport: the reserved dot-name under each project root, a read-only
    window onto the potential tree
  - project-relative: everything else inside a project, subject to the merge

For project-relative paths each segment is marked physical or virtual.
Physical reality always wins: a physically present name is never virtual,
whatever the templates declare.

# Materialization

Reads never create anything. Mkdir, create and rename materialize the
virtual ancestors they touch, then perform the physical operation.
Materialization is idempotent and race-absorbing: concurrent calls for one
path collapse into a single store walk, every level is created with
create-if-absent semantics, and an already-physical path is success. The
memo remembers materialized paths as a hint; it is re-verified against the
store on every use and never consulted to assert virtuality.

# Consistency

Potential trees are immutable once published and replaced wholesale by
Rebuild. Classifications are computed per call and never cached. Out-of-band
changes to the physical store are picked up naturally: a deleted directory
whose name a template still declares simply reverts to virtual.
*/
package overlay
