package session

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for the session lifecycle.
// All methods are nil-safe: calls on a nil *Metrics are no-ops.
type Metrics struct {
	// LoginsTotal counts logins and hydrations by kind and result.
	LoginsTotal *prometheus.CounterVec

	// LogoutsTotal counts logouts by result.
	LogoutsTotal *prometheus.CounterVec

	// RefreshesTotal counts refreshes by trigger (timer, manual) and result.
	RefreshesTotal *prometheus.CounterVec

	// RetryDelay observes the delay scheduled after a failed refresh.
	RetryDelay prometheus.Histogram

	// Authenticated is 1 while a session is established.
	Authenticated prometheus.Gauge
}

// NewMetrics creates session metrics and registers them with reg. If reg
// is nil, metrics are created but not registered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yeep",
			Subsystem: "session",
			Name:      "logins_total",
			Help:      "Total number of session logins and hydrations",
		}, []string{"kind", "result"}),
		LogoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yeep",
			Subsystem: "session",
			Name:      "logouts_total",
			Help:      "Total number of session logouts",
		}, []string{"result"}),
		RefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yeep",
			Subsystem: "session",
			Name:      "refreshes_total",
			Help:      "Total number of session refreshes",
		}, []string{"trigger", "result"}),
		RetryDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "yeep",
			Subsystem: "session",
			Name:      "retry_delay_seconds",
			Help:      "Delay scheduled after a failed refresh",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 12), // 250ms to ~8.5m
		}),
		Authenticated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "yeep",
			Subsystem: "session",
			Name:      "authenticated",
			Help:      "Whether a session is currently established",
		}),
	}

	if reg != nil {
		m.LoginsTotal = registerOrReuse(reg, m.LoginsTotal).(*prometheus.CounterVec)
		m.LogoutsTotal = registerOrReuse(reg, m.LogoutsTotal).(*prometheus.CounterVec)
		m.RefreshesTotal = registerOrReuse(reg, m.RefreshesTotal).(*prometheus.CounterVec)
		m.RetryDelay = registerOrReuse(reg, m.RetryDelay).(prometheus.Histogram)
		m.Authenticated = registerOrReuse(reg, m.Authenticated).(prometheus.Gauge)
	}

	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) recordLogin(kind string, err error) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(kind, result(err)).Inc()
	if err == nil {
		m.Authenticated.Set(1)
	}
}

func (m *Metrics) recordLogout(err error) {
	if m == nil {
		return
	}
	m.LogoutsTotal.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.Authenticated.Set(0)
	}
}

func (m *Metrics) recordRefresh(trigger string, err error) {
	if m == nil {
		return
	}
	m.RefreshesTotal.WithLabelValues(trigger, result(err)).Inc()
}

func (m *Metrics) recordRetry(seconds float64) {
	if m == nil {
		return
	}
	m.RetryDelay.Observe(seconds)
}

// registerOrReuse registers c with reg, returning the already registered
// collector when an identical one exists.
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
