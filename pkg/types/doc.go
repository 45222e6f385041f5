/*
Package types provides the core data structures and component contracts for
blueprintfs.

The overlay engine is assembled from small interfaces defined here:

	┌─────────────────────────────────────────────┐
	│            Kernel bridges                   │
	│      (internal/fuse, hanwen / cgofuse)      │
	└─────────────────────────────────────────────┘
	                     │
	┌─────────────────────────────────────────────┐
	│        Filesystem-operation adapter         │
	│            (internal/overlay)               │
	└─────────────────────────────────────────────┘
	     │          │           │          │
	┌────┴───┐ ┌────┴─────┐ ┌───┴────┐ ┌───┴────┐
	│ Store  │ │ Provider │ │ Oracle │ │Metrics │
	│(local) │ │(project) │ │ (stub) │ │ (prom) │
	└────────┘ └──────────┘ └────────┘ └────────┘

Store is the only component that touches the disk; it is the source of truth
for what exists. ConfigProvider, TemplateSource and PermissionOracle are the
external collaborators the engine consumes but does not implement beyond
minimal defaults. Memo is the bounded session hint for materialization;
Metrics receives observability events.

Classification is the value-typed result of resolving one caller path into a
zone (root, project list, viewport, project-relative) plus per-segment
virtuality flags. It is recomputed on every call and never persisted, so the
physical filesystem always wins over stale views.

All interfaces accept context.Context on blocking operations and are safe
for concurrent use when implemented per their doc comments.
*/
package types
