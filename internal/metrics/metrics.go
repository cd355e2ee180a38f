package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels.
const (
	// Order store error categories (bounded set)
	StoreErrorTimeout     = "timeout"
	StoreErrorConnection  = "connection"
	StoreErrorNotFound    = "not_found"
	StoreErrorCircuitOpen = "circuit_open"
	StoreErrorOther       = "other"

	// Broadcast delivery outcomes
	DeliveryQueued  = "queued"
	DeliveryDropped = "dropped"
	DeliverySent    = "sent"
	DeliverySkipped = "skipped"
)

// NormalizeStoreError maps arbitrary store errors to a bounded set
func NormalizeStoreError(err error) string {
	if err == nil {
		return ""
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "circuit breaker is open") || strings.Contains(errStr, "too many requests"):
		return StoreErrorCircuitOpen
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return StoreErrorTimeout
	case strings.Contains(errStr, "connection") || strings.Contains(errStr, "refused") || strings.Contains(errStr, "network"):
		return StoreErrorConnection
	case strings.Contains(errStr, "not found") || strings.Contains(errStr, "no rows"):
		return StoreErrorNotFound
	default:
		return StoreErrorOther
	}
}

// Session metrics
var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradesim_active_sessions",
		Help: "Number of connected WebSocket sessions",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradesim_sessions_total",
		Help: "Total number of sessions accepted",
	})

	InboundMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesim_inbound_messages_total",
			Help: "Inbound messages by kind",
		},
		[]string{"kind"},
	)

	MessageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesim_message_errors_total",
			Help: "Inbound messages answered with error_info, by error code",
		},
		[]string{"code"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradesim_dispatch_duration_ms",
			Help:    "Time spent handling one inbound message in milliseconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000},
		},
		[]string{"kind"},
	)
)

// Order metrics
var (
	OrderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesim_order_transitions_total",
			Help: "Order status transitions by resulting status",
		},
		[]string{"status"},
	)

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradesim_store_operation_duration_ms",
			Help:    "Order store operation latency in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"backend", "operation"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesim_store_errors_total",
			Help: "Order store failures by backend and category",
		},
		[]string{"backend", "category"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradesim_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
		[]string{"name"},
	)
)

// Market data metrics
var (
	QuotesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesim_quotes_generated_total",
			Help: "Synthetic quotes generated per instrument",
		},
		[]string{"instrument"},
	)

	MarketDataDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesim_market_data_deliveries_total",
			Help: "Market data fan-out outcomes",
		},
		[]string{"outcome"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesim_events_published_total",
			Help: "Events published to the message bus by subject kind and result",
		},
		[]string{"kind", "result"},
	)
)

// Helper functions to update metrics

// SessionOpened records a new session
func SessionOpened() {
	SessionsTotal.Inc()
	ActiveSessions.Inc()
}

// SessionClosed records a closed session
func SessionClosed() {
	ActiveSessions.Dec()
}

// RecordInboundMessage records one handled inbound message
func RecordInboundMessage(kind string, durationMs float64) {
	InboundMessages.WithLabelValues(kind).Inc()
	DispatchDuration.WithLabelValues(kind).Observe(durationMs)
}

// RecordMessageError records an error_info response
func RecordMessageError(code string) {
	MessageErrors.WithLabelValues(code).Inc()
}

// RecordOrderTransition records an order entering a status
func RecordOrderTransition(status string) {
	OrderTransitions.WithLabelValues(status).Inc()
}

// RecordStoreOperation records an order store call with normalized error category
func RecordStoreOperation(backend, operation string, durationMs float64, err error) {
	StoreOperationDuration.WithLabelValues(backend, operation).Observe(durationMs)
	if err != nil {
		StoreErrors.WithLabelValues(backend, NormalizeStoreError(err)).Inc()
	}
}

// UpdateCircuitBreakerState records the numeric state of a named breaker
func UpdateCircuitBreakerState(name string, state float64) {
	CircuitBreakerState.WithLabelValues(name).Set(state)
}

// RecordQuoteGenerated records a generated quote
func RecordQuoteGenerated(instrument string) {
	QuotesGenerated.WithLabelValues(instrument).Inc()
}

// RecordMarketDataDelivery records a fan-out outcome
func RecordMarketDataDelivery(outcome string) {
	MarketDataDeliveries.WithLabelValues(outcome).Inc()
}

// RecordEventPublished records a message bus publish
func RecordEventPublished(kind string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	EventsPublished.WithLabelValues(kind, result).Inc()
}
