package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Zcash RPC Metrics
	zcashRPCCallsTotal      *prometheus.CounterVec
	zcashRPCCallDuration    *prometheus.HistogramVec
	zcashMemoDecodeErrors   *prometheus.CounterVec
	zcashAggregateAddresses *prometheus.HistogramVec

	// Watcher Metrics
	watcherTransactionsSeen *prometheus.CounterVec
	pollActivityDuration    *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration *prometheus.HistogramVec
	dbOperations    *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Zcash RPC Metrics
		zcashRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zcash_rpc_calls_total",
				Help: "Total number of zcashd RPC calls by method and status",
			},
			[]string{"method", "status", "network"},
		),
		zcashRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zcash_rpc_call_duration_seconds",
				Help:    "Duration of zcashd RPC calls in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "network"},
		),
		zcashMemoDecodeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zcash_memo_decode_errors_total",
				Help: "Total number of shielded memos that could not be decoded",
			},
			[]string{"network"},
		),
		zcashAggregateAddresses: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zcash_aggregate_addresses",
				Help:    "Number of addresses fanned out per aggregate operation",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
			},
			[]string{"operation"},
		),

		// Watcher Metrics
		watcherTransactionsSeen: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watcher_transactions_seen_total",
				Help: "Total number of shielded notes seen by the watcher by status",
			},
			[]string{"status"},
		),
		pollActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "poll_activity_duration_seconds",
				Help:    "Duration of poll workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations by status",
			},
			[]string{"operation", "table", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Zcash RPC metric helpers

// RecordRPCCall records a zcashd RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, network string, duration float64) {
	m.zcashRPCCallsTotal.WithLabelValues(method, status, network).Inc()
	m.zcashRPCCallDuration.WithLabelValues(method, network).Observe(duration)
}

// RecordMemoDecodeError records a memo that failed to decode.
func (m *Metrics) RecordMemoDecodeError(network string) {
	m.zcashMemoDecodeErrors.WithLabelValues(network).Inc()
}

// RecordAggregateAddresses records the fan-out width of an aggregate operation.
func (m *Metrics) RecordAggregateAddresses(operation string, count int) {
	m.zcashAggregateAddresses.WithLabelValues(operation).Observe(float64(count))
}

// Watcher metric helpers

// RecordWatcherTransactions records notes seen by a poll.
// status is "new" or "duplicate".
func (m *Metrics) RecordWatcherTransactions(status string, count int) {
	m.watcherTransactionsSeen.WithLabelValues(status).Add(float64(count))
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	m.pollActivityDuration.WithLabelValues(activity).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration and outcome.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperations.WithLabelValues(operation, table, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}
