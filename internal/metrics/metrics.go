// Package metrics exposes Prometheus metrics for gate occupancy and session
// outcomes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Teardown reasons.
const (
	ReasonFetched  = "fetched"
	ReasonReaped   = "reaped"
	ReasonShutdown = "shutdown"
	ReasonFailed   = "failed"
)

// Occupancy is read on every scrape.
type Occupancy interface {
	Active() int
	Waiting() int
	Capacity() int
}

// Metrics holds the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	AuthTotal     *prometheus.CounterVec
	FetchTotal    *prometheus.CounterVec
	TeardownTotal *prometheus.CounterVec
	LoginDuration prometheus.Histogram
}

// New creates a private registry with Go and process collectors plus the
// service metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		AuthTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "giftcard_auth_total",
				Help: "Total number of auth attempts by status",
			},
			[]string{"status"},
		),
		FetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "giftcard_fetch_total",
				Help: "Total number of session fetches by status",
			},
			[]string{"status"},
		),
		TeardownTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "giftcard_teardown_total",
				Help: "Total number of torn down sessions by reason",
			},
			[]string{"reason"},
		),
		LoginDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "giftcard_login_duration_seconds",
			Help:    "Time from slot admission to a verified login",
			Buckets: []float64{0.5, 1, 2, 4, 8, 15, 30, 60},
		}),
	}

	registry.MustRegister(m.AuthTotal, m.FetchTotal, m.TeardownTotal, m.LoginDuration)
	return m
}

// ObserveGate registers gauges read from the gate on every scrape.
func (m *Metrics) ObserveGate(o Occupancy) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "giftcard_gate_active",
			Help: "Concurrency slots currently held",
		}, func() float64 { return float64(o.Active()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "giftcard_gate_waiting",
			Help: "Requests queued for a concurrency slot",
		}, func() float64 { return float64(o.Waiting()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "giftcard_gate_capacity",
			Help: "Configured maximum of concurrent sessions",
		}, func() float64 { return float64(o.Capacity()) }),
	)
}

// ObserveSessions registers a gauge of live sessions.
func (m *Metrics) ObserveSessions(live func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "giftcard_sessions_live",
		Help: "Sessions logged in and not yet consumed",
	}, func() float64 { return float64(live()) }))
}

// Auth counts an auth outcome.
func (m *Metrics) Auth(status string) {
	if m == nil {
		return
	}
	m.AuthTotal.WithLabelValues(status).Inc()
}

// Fetch counts a fetch outcome.
func (m *Metrics) Fetch(status string) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(status).Inc()
}

// Teardown counts a torn down session.
func (m *Metrics) Teardown(reason string) {
	if m == nil {
		return
	}
	m.TeardownTotal.WithLabelValues(reason).Inc()
}

// Login records how long a successful login took.
func (m *Metrics) Login(d time.Duration) {
	if m == nil {
		return
	}
	m.LoginDuration.Observe(d.Seconds())
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
