package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Checkout metrics
	CheckoutAttempts     *prometheus.CounterVec
	CheckoutOutcomes     *prometheus.CounterVec
	ConfirmationDuration *prometheus.HistogramVec
	ActiveConfirmations  prometheus.Gauge
	DuplicateSubmits     prometheus.Counter

	// Collaborator metrics
	BackendRequests *prometheus.CounterVec
	BackendDuration *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec

	// Worker metrics
	WorkerMessagesProcessed  *prometheus.CounterVec
	WorkerProcessingDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		CheckoutAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkout_attempts_total",
				Help:      "Checkout attempts started by flow mode",
			},
			[]string{"mode"},
		),
		CheckoutOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkout_outcomes_total",
				Help:      "Terminal checkout outcomes by outcome and payment method type",
			},
			[]string{"outcome", "payment_method_type"},
		),
		ConfirmationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "confirmation_duration_seconds",
				Help:      "Payment confirmation duration in seconds, grace period included",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),
		ActiveConfirmations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_confirmations",
				Help:      "Number of confirmations currently in flight",
			},
		),
		DuplicateSubmits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "duplicate_submits_total",
				Help:      "Payment submissions ignored because the attempt was already submitting or resolved",
			},
		),
		BackendRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_requests_total",
				Help:      "Backend API calls by operation and result",
			},
			[]string{"operation", "result"},
		),
		BackendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_request_duration_seconds",
				Help:      "Backend API call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		WorkerMessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_messages_processed_total",
				Help:      "Total number of worker messages processed",
			},
			[]string{"stream", "status"},
		),
		WorkerProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "worker_processing_duration_seconds",
				Help:      "Worker message processing duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"stream"},
		),
	}

	reg.MustRegister(
		m.CheckoutAttempts,
		m.CheckoutOutcomes,
		m.ConfirmationDuration,
		m.ActiveConfirmations,
		m.DuplicateSubmits,
		m.BackendRequests,
		m.BackendDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
		m.WorkerMessagesProcessed,
		m.WorkerProcessingDuration,
	)

	return m
}
