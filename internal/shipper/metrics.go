package shipper

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors exported by the shipper. One
// instance is shared across all per-CPU workers, each labeled by cpu.
//
// Grounded on the ambient stack choice of client_golang as an additive
// observability layer; spec's Non-goals exclude a bespoke metrics system,
// not metrics entirely (SPEC_FULL.md "Non-goals").
type Metrics struct {
	RowsCommitted   *prometheus.CounterVec
	CommitFailures  *prometheus.CounterVec
	CommitRetries   *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	WorkerRestarts  prometheus.Counter
	ActiveWorkers   prometheus.Gauge
}

// NewMetrics constructs and registers a Metrics instance against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RowsCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tfw_logshipper",
			Name:      "rows_committed_total",
			Help:      "Access-log rows committed to the database, by cpu.",
		}, []string{"cpu"}),
		CommitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tfw_logshipper",
			Name:      "commit_failures_total",
			Help:      "Database commit attempts that ultimately failed, by cpu.",
		}, []string{"cpu"}),
		CommitRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tfw_logshipper",
			Name:      "commit_retries_total",
			Help:      "Failed database commit attempts, including the last one before a block is dropped, by cpu.",
		}, []string{"cpu"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tfw_logshipper",
			Name:      "events_dropped_total",
			Help:      "Events the producer reported dropping, by cpu.",
		}, []string{"cpu"}),
		WorkerRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tfw_logshipper",
			Name:      "worker_restarts_total",
			Help:      "Number of times the supervisor has torn down and restarted the worker pool.",
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tfw_logshipper",
			Name:      "active_workers",
			Help:      "Number of per-CPU workers currently running.",
		}),
	}

	reg.MustRegister(
		m.RowsCommitted,
		m.CommitFailures,
		m.CommitRetries,
		m.EventsDropped,
		m.WorkerRestarts,
		m.ActiveWorkers,
	)

	return m
}
