package apiclient

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Result label values for RequestsTotal.
const (
	resultOK        = "ok"
	resultService   = "service_error"
	resultTransport = "transport_error"
	resultCanceled  = "canceled"
)

// Metrics provides Prometheus metrics for dispatched calls and schema
// loading. All methods are nil-safe: calls on a nil *Metrics are no-ops.
type Metrics struct {
	// RequestsTotal counts dispatched calls by operation and result.
	RequestsTotal *prometheus.CounterVec

	// RequestDuration observes round-trip latency per operation.
	RequestDuration *prometheus.HistogramVec

	// SchemaFetchesTotal counts schema document fetches by result.
	SchemaFetchesTotal *prometheus.CounterVec

	// Operations reports the size of the last resolved operation table.
	Operations prometheus.Gauge
}

// NewMetrics creates dispatcher metrics and registers them with reg. If
// reg is nil, metrics are created but not registered. Collectors already
// registered by another client on the same registry are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yeep",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Total number of dispatched operation calls",
		}, []string{"operation", "result"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "yeep",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Round-trip latency of dispatched operation calls",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}, []string{"operation"}),
		SchemaFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yeep",
			Subsystem: "client",
			Name:      "schema_fetches_total",
			Help:      "Total number of schema document fetches",
		}, []string{"result"}),
		Operations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "yeep",
			Subsystem: "client",
			Name:      "operations",
			Help:      "Number of callable operations in the resolved table",
		}),
	}

	if reg != nil {
		m.RequestsTotal = registerOrReuse(reg, m.RequestsTotal).(*prometheus.CounterVec)
		m.RequestDuration = registerOrReuse(reg, m.RequestDuration).(*prometheus.HistogramVec)
		m.SchemaFetchesTotal = registerOrReuse(reg, m.SchemaFetchesTotal).(*prometheus.CounterVec)
		m.Operations = registerOrReuse(reg, m.Operations).(prometheus.Gauge)
	}

	return m
}

func (m *Metrics) recordRequest(operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(operation, resultLabel(err)).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(seconds)
}

func (m *Metrics) recordSchemaFetch(err error, operations int) {
	if m == nil {
		return
	}
	m.SchemaFetchesTotal.WithLabelValues(resultLabel(err)).Inc()
	if err == nil {
		m.Operations.Set(float64(operations))
	}
}

func resultLabel(err error) string {
	var svcErr *ServiceError
	switch {
	case err == nil:
		return resultOK
	case IsCanceled(err):
		return resultCanceled
	case errors.As(err, &svcErr):
		return resultService
	default:
		return resultTransport
	}
}

// registerOrReuse registers c with reg. If an identical collector is
// already registered, the existing one is returned instead. Panics on any
// other registration failure.
func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}
