// Package metrics exposes Prometheus instruments for the import pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ledgerimport"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// ─── Stage ──────────────────────────────────────────────────────────────────

// StagesTotal counts stage attempts by outcome and, on failure, error kind.
var StagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "stage",
	Name:      "total",
	Help:      "Stage attempts by outcome and error kind.",
}, []string{"outcome", "kind"})

// RowsStaged counts rows written to the staging store.
var RowsStaged = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "stage",
	Name:      "rows_total",
	Help:      "Rows written to the staging store.",
})

// ─── Process ────────────────────────────────────────────────────────────────

// ProcessTotal counts process attempts by outcome and, on failure, error kind.
var ProcessTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "process",
	Name:      "total",
	Help:      "Process attempts by outcome and error kind.",
}, []string{"outcome", "kind"})

// ProcessDuration observes wall time of process runs.
var ProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "process",
	Name:      "duration_seconds",
	Help:      "Wall time of process runs.",
	Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
}, []string{"outcome"})

// RowsCommitted counts rows inserted into the ledger.
var RowsCommitted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "rows_committed_total",
	Help:      "Rows inserted into the ledger.",
})

// DuplicateReceipts counts receipt numbers rejected as duplicates, by checkpoint.
var DuplicateReceipts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "duplicate_receipts_total",
	Help:      "Receipt numbers rejected as duplicates.",
}, []string{"checkpoint"})

// ServicesRewritten counts rows whose service was replaced by the new-service sentinel.
var ServicesRewritten = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "resolver",
	Name:      "services_rewritten_total",
	Help:      "Distinct unknown service names replaced by the sentinel.",
})

// ActiveJobs tracks jobs currently holding a processing slot.
var ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "process",
	Name:      "active_jobs",
	Help:      "Jobs currently being processed.",
})

// ─── Sweeper ────────────────────────────────────────────────────────────────

// SessionsSwept counts stale sessions expired by the sweeper.
var SessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "sweeper",
	Name:      "sessions_expired_total",
	Help:      "Stale upload sessions expired before processing.",
})

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
