package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for openmerge.
type Metrics struct {
	config MetricsConfig

	// Merge metrics
	mergesTotal   *prometheus.CounterVec
	mergeDuration *prometheus.HistogramVec
	mergesChanged *prometheus.CounterVec

	// Document metrics
	documentsLoaded *prometheus.CounterVec

	// Watch metrics
	watchReloads *prometheus.CounterVec
	watchedFiles prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		mergesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "merges_total",
				Help:      "Total number of merge operations",
			},
			[]string{"policy", "status"},
		),
		mergeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "merge_duration_seconds",
				Help:      "Duration of merge operations in seconds",
				Buckets:   buckets,
			},
			[]string{"policy"},
		),
		mergesChanged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "merges_changed_total",
				Help:      "Total number of merges whose result differed from current",
			},
			[]string{"policy"},
		),

		documentsLoaded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_loaded_total",
				Help:      "Total number of documents loaded by format",
			},
			[]string{"format"},
		),

		watchReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "watch_reloads_total",
				Help:      "Total number of merges triggered by file changes",
			},
			[]string{"status"},
		),
		watchedFiles: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "watched_files",
				Help:      "Current number of watched input files",
			},
		),
	}

	registry.MustRegister(
		m.mergesTotal,
		m.mergeDuration,
		m.mergesChanged,
		m.documentsLoaded,
		m.watchReloads,
		m.watchedFiles,
	)

	return m, nil
}

// RecordMerge records one merge operation with its status and duration.
func (m *Metrics) RecordMerge(policy, status string, duration time.Duration, changed bool) {
	if m.mergesTotal == nil {
		return
	}
	m.mergesTotal.WithLabelValues(policy, status).Inc()
	m.mergeDuration.WithLabelValues(policy).Observe(duration.Seconds())
	if changed {
		m.mergesChanged.WithLabelValues(policy).Inc()
	}
}

// RecordDocumentLoaded records a loaded document by format.
func (m *Metrics) RecordDocumentLoaded(format string) {
	if m.documentsLoaded == nil {
		return
	}
	m.documentsLoaded.WithLabelValues(format).Inc()
}

// RecordWatchReload records a merge triggered by a file change.
func (m *Metrics) RecordWatchReload(status string) {
	if m.watchReloads == nil {
		return
	}
	m.watchReloads.WithLabelValues(status).Inc()
}

// SetWatchedFiles sets the current number of watched input files.
func (m *Metrics) SetWatchedFiles(count float64) {
	if m.watchedFiles == nil {
		return
	}
	m.watchedFiles.Set(count)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
