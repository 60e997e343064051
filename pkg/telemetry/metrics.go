package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics collects run and per-device counters. The zero-value methods
// on a disabled instance are no-ops, so callers never guard.
type Metrics struct {
	enabled bool

	devicesProcessed *prometheus.CounterVec
	runsCompleted    *prometheus.CounterVec
	runDuration      prometheus.Histogram
	compileDuration  prometheus.Histogram
	uploadDuration   prometheus.Histogram

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a collector. When enabled is false all methods are
// no-ops and no registry is allocated.
func NewMetrics(enabled bool) *Metrics {
	if !enabled {
		return &Metrics{}
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{
		enabled:  true,
		registry: registry,
		devicesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "espfleet",
				Name:      "devices_processed_total",
				Help:      "Devices reaching a terminal outcome, by outcome",
			},
			[]string{"outcome"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "espfleet",
				Name:      "runs_completed_total",
				Help:      "Update runs completed, by final status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "espfleet",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of a full update run",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 10),
		}),
		compileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "espfleet",
			Name:      "compile_duration_seconds",
			Help:      "Per-device compile duration",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 10),
		}),
		uploadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "espfleet",
			Name:      "upload_duration_seconds",
			Help:      "Per-device upload duration",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}

	registry.MustRegister(
		m.devicesProcessed,
		m.runsCompleted,
		m.runDuration,
		m.compileDuration,
		m.uploadDuration,
	)
	return m
}

// Serve exposes /metrics on addr until Shutdown. Listen errors are
// logged, not fatal: metrics never block an update run.
func (m *Metrics) Serve(addr string, logger zerolog.Logger) {
	if !m.enabled {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	m.server = &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn().Err(err).Str("addr", addr).Msg("metrics listener failed")
		}
	}()
}

// Shutdown stops the metrics listener.
func (m *Metrics) Shutdown(ctx context.Context) {
	if m.server == nil {
		return
	}
	_ = m.server.Shutdown(ctx)
}

// DeviceProcessed records one terminal device outcome.
func (m *Metrics) DeviceProcessed(outcome string) {
	if m.enabled {
		m.devicesProcessed.WithLabelValues(outcome).Inc()
	}
}

// RunCompleted records a finished run with its final status.
func (m *Metrics) RunCompleted(status string, duration time.Duration) {
	if m.enabled {
		m.runsCompleted.WithLabelValues(status).Inc()
		m.runDuration.Observe(duration.Seconds())
	}
}

// CompileObserved records one compile duration.
func (m *Metrics) CompileObserved(d time.Duration) {
	if m.enabled {
		m.compileDuration.Observe(d.Seconds())
	}
}

// UploadObserved records one upload duration.
func (m *Metrics) UploadObserved(d time.Duration) {
	if m.enabled {
		m.uploadDuration.Observe(d.Seconds())
	}
}
