// Package observability provides internal metric collection for SmartQuery.
// Metrics are registered on a private registry; exposition is left to the
// embedding application.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's instrumentation. All collectors are registered
// on the Registry returned by Registry().
type Metrics struct {
	registry *prometheus.Registry

	// Ingest
	EventsAccepted prometheus.Counter
	EventsDropped  prometheus.Counter
	BatchesFlushed prometheus.Counter

	// Query
	QueriesExecuted prometheus.Counter
	QueriesFailed   prometheus.Counter
	QueryDuration   prometheus.Histogram

	// Index
	IndexBuilds        prometheus.Counter
	IndexBuildFailures prometheus.Counter
	IndexLookups       prometheus.Counter
	ActiveBuildTasks   prometheus.Gauge
}

// NewMetrics creates the metric set on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		EventsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartquery_ingest_events_accepted_total",
			Help: "Total number of events accepted by the ingest buffer",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartquery_ingest_events_dropped_total",
			Help: "Total number of events dropped due to ingest overload",
		}),
		BatchesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartquery_ingest_batches_flushed_total",
			Help: "Total number of batches flushed into the column store",
		}),
		QueriesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartquery_queries_executed_total",
			Help: "Total number of queries executed successfully",
		}),
		QueriesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartquery_queries_failed_total",
			Help: "Total number of queries that failed to parse, plan, or execute",
		}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smartquery_query_duration_seconds",
			Help:    "Query execution latency",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		IndexBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartquery_index_builds_total",
			Help: "Total number of per-segment index builds completed",
		}),
		IndexBuildFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartquery_index_build_failures_total",
			Help: "Total number of per-segment index builds that failed",
		}),
		IndexLookups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartquery_index_lookups_total",
			Help: "Total number of secondary index lookups",
		}),
		ActiveBuildTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartquery_index_active_build_tasks",
			Help: "Number of queued or running index build tasks",
		}),
	}

	registry.MustRegister(
		m.EventsAccepted,
		m.EventsDropped,
		m.BatchesFlushed,
		m.QueriesExecuted,
		m.QueriesFailed,
		m.QueryDuration,
		m.IndexBuilds,
		m.IndexBuildFailures,
		m.IndexLookups,
		m.ActiveBuildTasks,
	)
	return m
}

// Registry returns the registry all collectors are registered on, for
// embedding applications that expose metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
