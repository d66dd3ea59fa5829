// Package metrics exposes Prometheus collectors for the ledger, the session
// store and the HTTP layer. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dreamsan"

// Metrics owns a private registry so tests can build as many as they like
type Metrics struct {
	Registry *prometheus.Registry

	charges        *prometheus.CounterVec
	tokensDebited  prometheus.Counter
	tokensCredited *prometheus.CounterVec
	sessionAppends *prometheus.CounterVec
	interpretation *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New registers every collector on a fresh registry
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		charges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "charges_total",
			Help:      "Charge attempts by result.",
		}, []string{"result"}),
		tokensDebited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tokens_debited_total",
			Help:      "Tokens removed from balances by successful charges.",
		}),
		tokensCredited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tokens_credited_total",
			Help:      "Tokens added to balances by kind.",
		}, []string{"kind"}),
		sessionAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "appends_total",
			Help:      "Dream session writes by mode and result.",
		}, []string{"mode", "result"}),
		interpretation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "interpreter",
			Name:      "duration_seconds",
			Help:      "Interpreter call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"provider", "status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"method", "route"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.charges, m.tokensDebited, m.tokensCredited, m.sessionAppends,
		m.interpretation, m.httpRequests, m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveCharge records a charge attempt; cost only counts on success
func (m *Metrics) ObserveCharge(result string, cost int) {
	if m == nil {
		return
	}
	m.charges.WithLabelValues(result).Inc()
	if result == "success" {
		m.tokensDebited.Add(float64(cost))
	}
}

// ObserveCredit records tokens added to balances
func (m *Metrics) ObserveCredit(kind string, amount int) {
	if m == nil {
		return
	}
	m.tokensCredited.WithLabelValues(kind).Add(float64(amount))
}

// ObserveSessionWrite records a session create or append
func (m *Metrics) ObserveSessionWrite(mode string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.sessionAppends.WithLabelValues(mode, result).Inc()
}

// ObserveInterpretation records interpreter latency
func (m *Metrics) ObserveInterpretation(provider string, started time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.interpretation.WithLabelValues(provider, status).Observe(time.Since(started).Seconds())
}

// Instrument wraps a handler registered under route
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
