package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the client. Following the
// explicit dependency injection pattern, this struct is passed to every
// component that needs to record metrics; components treat a nil *Metrics
// as "record nothing".
type Metrics struct {
	// Ledger RPC metrics
	rpcCallsTotal     *prometheus.CounterVec
	rpcCallDuration   *prometheus.HistogramVec
	submissionRetries *prometheus.CounterVec

	// Confirmation tracking metrics
	pollsTotal         *prometheus.CounterVec
	awaitDuration      *prometheus.HistogramVec
	awaitOutcomes      *prometheus.CounterVec
	receiptCacheHits   *prometheus.CounterVec
	receiptCacheMisses *prometheus.CounterVec

	// Cross-chain metrics
	bridgeOperationsTotal *prometheus.CounterVec
	compensationsTotal    *prometheus.CounterVec

	// HTTP metrics (devnet server)
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS metrics
	natsEventsPublished *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		rpcCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_rpc_calls_total",
				Help: "Total number of ledger RPC calls by method, status, and chain",
			},
			[]string{"method", "status", "chain"},
		),
		rpcCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_rpc_call_duration_seconds",
				Help:    "Duration of ledger RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "chain"},
		),
		submissionRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_submission_retries_total",
				Help: "Total number of submission retries by chain and reason",
			},
			[]string{"chain", "reason"},
		),
		pollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confirmation_polls_total",
				Help: "Total number of receipt polls by chain",
			},
			[]string{"chain"},
		),
		awaitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "confirmation_await_duration_seconds",
				Help:    "Time spent waiting for a terminal receipt",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"chain", "outcome"},
		),
		awaitOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confirmation_await_outcomes_total",
				Help: "Terminal outcomes of confirmation waits by chain",
			},
			[]string{"chain", "outcome"},
		),
		receiptCacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "receipt_cache_hits_total",
				Help: "Confirmation waits short-circuited by a cached terminal receipt",
			},
			[]string{"chain"},
		),
		receiptCacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "receipt_cache_misses_total",
				Help: "Confirmation waits that had to poll the ledger",
			},
			[]string{"chain"},
		),
		bridgeOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_operations_total",
				Help: "Cross-chain operations by operation and terminal status",
			},
			[]string{"operation", "status"},
		),
		compensationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_compensations_total",
				Help: "Compensating transactions issued by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"handler", "method"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by handler, method, and status",
			},
			[]string{"handler", "method", "status"},
		),
		natsEventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_events_published_total",
				Help: "Receipt events published to NATS by chain and status",
			},
			[]string{"chain", "status"},
		),
	}
}

// RecordRPCCall records a ledger RPC call with its duration.
func (m *Metrics) RecordRPCCall(method, status, chain string, durationSeconds float64) {
	m.rpcCallsTotal.WithLabelValues(method, status, chain).Inc()
	m.rpcCallDuration.WithLabelValues(method, chain).Observe(durationSeconds)
}

// RecordSubmissionRetry records a retried submission attempt.
func (m *Metrics) RecordSubmissionRetry(chain, reason string) {
	m.submissionRetries.WithLabelValues(chain, reason).Inc()
}

// RecordPoll records one receipt poll.
func (m *Metrics) RecordPoll(chain string) {
	m.pollsTotal.WithLabelValues(chain).Inc()
}

// RecordAwait records the outcome and duration of a confirmation wait.
func (m *Metrics) RecordAwait(chain, outcome string, durationSeconds float64) {
	m.awaitOutcomes.WithLabelValues(chain, outcome).Inc()
	m.awaitDuration.WithLabelValues(chain, outcome).Observe(durationSeconds)
}

// RecordCacheHit records a wait resolved from the receipt cache.
func (m *Metrics) RecordCacheHit(chain string) {
	m.receiptCacheHits.WithLabelValues(chain).Inc()
}

// RecordCacheMiss records a wait that fell through to polling.
func (m *Metrics) RecordCacheMiss(chain string) {
	m.receiptCacheMisses.WithLabelValues(chain).Inc()
}

// RecordBridgeOperation records a cross-chain operation reaching a terminal status.
func (m *Metrics) RecordBridgeOperation(operation, status string) {
	m.bridgeOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordCompensation records a compensating transaction and its outcome.
func (m *Metrics) RecordCompensation(operation, outcome string) {
	m.compensationsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, durationSeconds float64) {
	status := httpStatusClass(statusCode)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
	m.httpRequestDuration.WithLabelValues(handler, method).Observe(durationSeconds)
}

// RecordNATSEventPublished records a published receipt event.
func (m *Metrics) RecordNATSEventPublished(chain, status string) {
	m.natsEventsPublished.WithLabelValues(chain, status).Inc()
}

// httpStatusClass buckets a status code into 2xx/3xx/4xx/5xx.
func httpStatusClass(code int) string {
	switch {
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
