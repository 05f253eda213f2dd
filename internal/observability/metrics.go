// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"math/big"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ledger metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	EventsEmitted     *prometheus.CounterVec
	CurrentHeight     prometheus.Gauge

	// Economy gauges, in whole units
	Reserves    *prometheus.GaugeVec
	TotalSupply prometheus.Gauge

	// Height source metrics
	RPCCallLatency   *prometheus.HistogramVec
	WSMessageLatency prometheus.Histogram
	WSReconnects     prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// API metrics
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers the metrics on reg. Tests pass a fresh registry.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "time_ledger"
	}
	factory := promauto.With(reg)

	return &Metrics{
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Total number of ledger operations by contract, method and outcome",
		}, []string{"contract", "method", "outcome"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Ledger operation duration in seconds, including persistence",
			Buckets:   prometheus.DefBuckets,
		}, []string{"contract", "method"}),
		EventsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "events_emitted_total",
			Help:      "Total number of committed events by kind",
		}, []string{"kind"}),
		CurrentHeight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "current_height",
			Help:      "Height of the last committed operation",
		}),

		Reserves: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "economy",
			Name:      "reserve",
			Help:      "Reserve balances in whole units by contract and reserve",
		}, []string{"contract", "reserve"}),
		TotalSupply: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "economy",
			Name:      "token_total_supply",
			Help:      "Token total supply in whole units",
		}),

		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WSMessageLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_message_latency_seconds",
			Help:      "WebSocket message processing latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		WSReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_reconnects_total",
			Help:      "Total number of WebSocket reconnect attempts",
		}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of API requests by route and status class",
		}, []string{"route", "status"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordOperation records the outcome and latency of a ledger operation.
func (m *Metrics) RecordOperation(contract, method string, seconds float64, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.OperationsTotal.WithLabelValues(contract, method, outcome).Inc()
	m.OperationDuration.WithLabelValues(contract, method).Observe(seconds)
}

// RecordEvent increments the committed events counter.
func (m *Metrics) RecordEvent(kind string) {
	m.EventsEmitted.WithLabelValues(kind).Inc()
}

// UpdateHeight sets the current height gauge.
func (m *Metrics) UpdateHeight(height uint64) {
	m.CurrentHeight.Set(float64(height))
}

// UpdateReserve sets a reserve gauge from base units.
func (m *Metrics) UpdateReserve(contract, reserve string, baseUnits *big.Int) {
	m.Reserves.WithLabelValues(contract, reserve).Set(wholeUnits(baseUnits))
}

// UpdateTotalSupply sets the token supply gauge from base units.
func (m *Metrics) UpdateTotalSupply(baseUnits *big.Int) {
	m.TotalSupply.Set(wholeUnits(baseUnits))
}

// RecordOperation records a ledger operation on the default metrics.
func RecordOperation(contract, method string, seconds float64, err error) {
	DefaultMetrics.RecordOperation(contract, method, seconds, err)
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordWSMessage records WebSocket message handling latency.
func RecordWSMessage(seconds float64) {
	DefaultMetrics.WSMessageLatency.Observe(seconds)
}

// RecordWSReconnect counts a WebSocket reconnect attempt.
func RecordWSReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordHTTPRequest counts an API request.
func RecordHTTPRequest(route string, status int) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func wholeUnits(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	return decimal.NewFromBigInt(v, -18).InexactFloat64()
}
