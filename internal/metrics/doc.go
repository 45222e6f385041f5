/*
Package metrics collects and serves the observability data of the overlay.

# Overview

The package implements the metrics sink the overlay records into. Everything
lands in a dedicated Prometheus registry; nothing is registered globally, so
tests and embedders can run any number of collectors side by side.

Architecture

	┌─────────────┐
	│  Collector  │  ← sink the overlay records into
	└──────┬──────┘
	       │
	   ┌───┴────────────────────────────┐
	   │                                │
	┌──▼───────────┐         ┌─────────▼───────────┐
	│  Prometheus  │         │  HTTP Endpoints     │
	│   Registry   │         │  /metrics           │
	│              │         │  /health            │
	│ - Counters   │         │  /debug/operations  │
	│ - Histograms │         └─────────────────────┘
	│ - Gauges     │
	└──────────────┘

# Exported Metrics

Counters:
  - blueprintfs_operations_total{operation,outcome}: filesystem operations
    by kind and outcome ("ok" or the lowercased error code)
  - blueprintfs_materializations_total{outcome}: materialization attempts
  - blueprintfs_rejected_paths_total{reason}: paths rejected before any
    store access ("syntax", "hidden")
  - blueprintfs_template_scan_failures_total{template}: skipped template scans
  - blueprintfs_memo_requests_total{result}: memo lookups ("hit", "miss")

Histograms:
  - blueprintfs_operation_duration_seconds{operation}: operation latency

Gauges:
  - blueprintfs_potential_tree_nodes{project}: published tree size per project

Label cardinality stays bounded: operations and outcomes are fixed sets,
and projects and templates are administrator-controlled names. Paths never
become labels.

# Usage

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled: true,
		Address: ":9530",
		Path:    "/metrics",
	}, logger)
	if err != nil {
		return err
	}
	if err := collector.Start(ctx); err != nil {
		return err
	}
	defer collector.Stop(ctx)

Recording works whether or not the HTTP endpoint is enabled; Enabled gates
only the server. The /debug/operations endpoint serves a plain-text summary
for troubleshooting without a Prometheus server:

	curl http://localhost:9530/debug/operations
	Operations since 2025-11-03T09:12:44Z

	Operation         Count   Failures   Avg Duration    Last Op
	getattr           15234         12          120µs   15:04:05
	readdir            8901          3          450µs   15:04:05

# Thread Safety

All Collector methods are safe for concurrent use.
*/
package metrics
