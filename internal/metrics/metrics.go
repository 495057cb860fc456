// Package metrics exposes alignment counters in the Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samcharles93/diagwarp/pkg/dtw"
)

// Alignment outcomes used as the status label.
const (
	StatusOK       = "ok"
	StatusStopped  = "stopped"
	StatusCanceled = "canceled"
	StatusError    = "error"
)

// Metrics owns a registry so several instances can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// Distances is the per-diagonal stats sink handed to dtw.Align.
	Distances  prometheus.Counter
	Diagonals  prometheus.Counter
	Alignments *prometheus.CounterVec
	Duration   prometheus.Histogram
}

// New registers the alignment metrics and the Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Distances: factory.NewCounter(prometheus.CounterOpts{
			Name: "diagwarp_distances_total",
			Help: "Cross-distances evaluated across all alignments",
		}),
		Diagonals: factory.NewCounter(prometheus.CounterOpts{
			Name: "diagwarp_diagonals_total",
			Help: "Anti-diagonals computed across all alignments",
		}),
		Alignments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "diagwarp_alignments_total",
			Help: "Alignments by outcome",
		}, []string{"status"}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "diagwarp_alignment_seconds",
			Help:    "Alignment wall time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16), // 0.5ms to ~16s
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe records the outcome of one alignment.
func (m *Metrics) Observe(res *dtw.Result, err error, elapsed time.Duration) {
	m.Duration.Observe(elapsed.Seconds())
	m.Alignments.WithLabelValues(Status(res, err)).Inc()
	if res != nil {
		m.Diagonals.Add(float64(res.Diagonals))
	}
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Status classifies an alignment outcome.
func Status(res *dtw.Result, err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCanceled
	case err != nil:
		return StatusError
	case res != nil && res.Stopped:
		return StatusStopped
	default:
		return StatusOK
	}
}
