// Package metrics exposes ingestion and query counters for Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upload outcomes.
const (
	ResultStored    = "stored"
	ResultDuplicate = "duplicate"
	ResultEmpty     = "empty"
	ResultRejected  = "rejected"
	ResultFailed    = "failed"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "demand_uploads_total",
		Help: "Extract uploads by outcome.",
	}, []string{"result"})

	rowsIngestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demand_rows_ingested_total",
		Help: "History rows appended.",
	})

	rowsExcludedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demand_rows_excluded_total",
		Help: "Extract rows dropped by validation.",
	})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "demand_query_duration_seconds",
		Help:    "Latency of history queries by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)

// ObserveUpload records one upload attempt.
func ObserveUpload(result string, stored, excluded int) {
	uploadsTotal.WithLabelValues(result).Inc()
	if stored > 0 {
		rowsIngestedTotal.Add(float64(stored))
	}
	if excluded > 0 {
		rowsExcludedTotal.Add(float64(excluded))
	}
}

// TimeQuery starts a timer for op; call the returned func when done.
func TimeQuery(op string) func() {
	start := time.Now()
	return func() {
		queryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}
