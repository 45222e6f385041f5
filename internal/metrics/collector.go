package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/blueprintfs/blueprintfs/internal/logging"
)

// namespace prefixes every metric the collector registers.
const namespace = "blueprintfs"

// Config controls the collector's HTTP endpoint.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns the collector defaults. The endpoint stays off until
// configuration turns it on; recording works either way.
func DefaultConfig() *Config {
	return &Config{
		Enabled: false,
		Address: ":9530",
		Path:    "/metrics",
	}
}

// OperationSummary aggregates one operation kind for the debug endpoint.
type OperationSummary struct {
	Count         int64         `json:"count"`
	Failures      int64         `json:"failures"`
	TotalDuration time.Duration `json:"total_duration"`
	LastOperation time.Time     `json:"last_operation"`
}

// Collector is the process metrics sink. The overlay records operations,
// materializations, rejected paths, template-scan failures, memo lookups and
// tree sizes into it; everything lands in a dedicated Prometheus registry
// served over HTTP next to a health probe and a plain-text summary.
type Collector struct {
	config   *Config
	registry *prometheus.Registry
	logger   *logrus.Entry

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	materializations  *prometheus.CounterVec
	rejectedPaths     *prometheus.CounterVec
	scanFailures      *prometheus.CounterVec
	memoRequests      *prometheus.CounterVec
	treeNodes         *prometheus.GaugeVec

	mu      sync.RWMutex
	summary map[string]*OperationSummary
	started time.Time

	server *http.Server
}

// NewCollector builds a Collector with its own registry. A nil config uses
// the defaults; a nil logger discards log output.
func NewCollector(config *Config, logger *logging.Logger) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Discard()
	}

	c := &Collector{
		config:   config,
		registry: prometheus.NewRegistry(),
		logger:   logger.Component("metrics"),
		summary:  make(map[string]*OperationSummary),
		started:  time.Now(),
	}

	c.operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Filesystem operations by kind and outcome.",
		},
		[]string{"operation", "outcome"},
	)
	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Filesystem operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16), // 100µs to ~3.2s
		},
		[]string{"operation"},
	)
	c.materializations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "materializations_total",
			Help:      "Materialization attempts by outcome.",
		},
		[]string{"outcome"},
	)
	c.rejectedPaths = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_paths_total",
			Help:      "Paths rejected before any store access, by reason.",
		},
		[]string{"reason"},
	)
	c.scanFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "template_scan_failures_total",
			Help:      "Template scans skipped because the template was missing.",
		},
		[]string{"template"},
	)
	c.memoRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memo_requests_total",
			Help:      "Materialization memo lookups by result.",
		},
		[]string{"result"},
	)
	c.treeNodes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "potential_tree_nodes",
			Help:      "Nodes in the published potential tree, per project.",
		},
		[]string{"project"},
	)

	collectors := []prometheus.Collector{
		c.operations,
		c.operationDuration,
		c.materializations,
		c.rejectedPaths,
		c.scanFailures,
		c.memoRequests,
		c.treeNodes,
	}
	for _, collector := range collectors {
		if err := c.registry.Register(collector); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}

	return c, nil
}

// Registry exposes the collector's registry, for embedding the metrics
// handler into another server.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// RecordOperation counts one filesystem operation and observes its latency.
// outcome is "ok" or the lowercased error code.
func (c *Collector) RecordOperation(operation string, duration time.Duration, outcome string) {
	c.operations.WithLabelValues(operation, outcome).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.summary[operation]
	if !ok {
		s = &OperationSummary{}
		c.summary[operation] = s
	}
	s.Count++
	if outcome != "ok" {
		s.Failures++
	}
	s.TotalDuration += duration
	s.LastOperation = time.Now()
}

// RecordMaterialization counts one materialization attempt by outcome.
func (c *Collector) RecordMaterialization(outcome string) {
	c.materializations.WithLabelValues(outcome).Inc()
}

// RecordRejectedPath counts a path rejected during classification.
func (c *Collector) RecordRejectedPath(reason string) {
	c.rejectedPaths.WithLabelValues(reason).Inc()
}

// RecordTemplateScanFailure counts a skipped template scan.
func (c *Collector) RecordTemplateScanFailure(template string) {
	c.scanFailures.WithLabelValues(template).Inc()
}

// RecordMemo counts one memo lookup.
func (c *Collector) RecordMemo(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.memoRequests.WithLabelValues(result).Inc()
}

// SetTreeNodes publishes the size of a project's potential tree. Zero clears
// a project that went away.
func (c *Collector) SetTreeNodes(project string, nodes float64) {
	if nodes == 0 {
		c.treeNodes.DeleteLabelValues(project)
		return
	}
	c.treeNodes.WithLabelValues(project).Set(nodes)
}

// Summary returns a copy of the per-operation aggregates.
func (c *Collector) Summary() map[string]OperationSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]OperationSummary, len(c.summary))
	for name, s := range c.summary {
		out[name] = *s
	}
	return out
}

// Start serves the metrics endpoint when enabled. The server runs until Stop.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", c.healthHandler)
	mux.HandleFunc("/debug/operations", c.operationsHandler)

	c.server = &http.Server{
		Addr:              c.config.Address,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second, // Prevent Slowloris attacks
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.WithField("error", err).Error("metrics server failed")
		}
	}()

	c.logger.WithFields(logrus.Fields{
		"address": c.config.Address,
		"path":    c.config.Path,
	}).Info("metrics endpoint started")
	return nil
}

// Stop shuts the metrics endpoint down.
func (c *Collector) Stop(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}

func (c *Collector) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	payload := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(c.started).String(),
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		c.logger.WithField("error", err).Debug("health response write failed")
	}
}

func (c *Collector) operationsHandler(w http.ResponseWriter, r *http.Request) {
	summary := c.Summary()
	names := make([]string, 0, len(summary))
	for name := range summary {
		names = append(names, name)
	}
	sort.Strings(names)

	w.Header().Set("Content-Type", "text/plain")

	writef := func(format string, args ...interface{}) { _, _ = fmt.Fprintf(w, format, args...) }

	writef("Operations since %s\n\n", c.started.Format(time.RFC3339))
	if len(names) == 0 {
		writef("No operations recorded.\n")
		return
	}
	writef("%-12s %10s %10s %14s %10s\n", "Operation", "Count", "Failures", "Avg Duration", "Last Op")
	for _, name := range names {
		s := summary[name]
		avg := time.Duration(0)
		if s.Count > 0 {
			avg = s.TotalDuration / time.Duration(s.Count)
		}
		writef("%-12s %10d %10d %14v %10s\n",
			name, s.Count, s.Failures, avg, s.LastOperation.Format("15:04:05"))
	}
}
