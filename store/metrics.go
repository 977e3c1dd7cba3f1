package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jacentio/lattice/spec"
)

// Metrics holds the store's Prometheus collectors.
type Metrics struct {
	// operations counts executed operations.
	// Labels: kind (READ, WRITE), outcome (ok, error)
	operations *prometheus.CounterVec

	// duration measures per-operation latency.
	// Labels: kind
	duration *prometheus.HistogramVec

	// cellsRead counts cells returned to read operations.
	cellsRead prometheus.Counter

	// tablesCreated counts tables created because they were absent.
	tablesCreated prometheus.Counter
}

// NewMetrics creates the store collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lattice",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total operations executed, by kind and outcome",
		}, []string{"kind", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lattice",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Operation latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"kind"}),
		cellsRead: f.NewCounter(prometheus.CounterOpts{
			Namespace: "lattice",
			Subsystem: "store",
			Name:      "cells_read_total",
			Help:      "Total cells returned to read operations",
		}),
		tablesCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "lattice",
			Subsystem: "store",
			Name:      "tables_created_total",
			Help:      "Total tables created on first use",
		}),
	}
}

func (m *Metrics) observe(kind spec.OpKind, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(kind.String(), outcome).Inc()
	m.duration.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
}
