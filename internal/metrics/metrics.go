package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps Prometheus metrics for the marketplace backend.
type Metrics struct {
	registry *prometheus.Registry

	gateDecisions  *prometheus.CounterVec
	guardDecisions *prometheus.CounterVec
	roleLookup     prometheus.Histogram
	loginThrottled *prometheus.CounterVec
	currencyCache  *prometheus.CounterVec
}

// New creates a metrics registry and registers the marketplace metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	gateDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "access_gate_decisions_total",
		Help: "Total number of edge gate decisions by outcome and reason.",
	}, []string{"outcome", "reason"})

	guardDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "access_guard_decisions_total",
		Help: "Total number of page guard decisions by guard and outcome.",
	}, []string{"guard", "outcome"})

	roleLookup := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "access_role_lookup_seconds",
		Help:    "Latency of profile role lookups performed by the gate.",
		Buckets: prometheus.DefBuckets,
	})

	loginThrottled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_login_throttled_total",
		Help: "Total number of login attempts rejected by the rate limiter.",
	}, []string{"scope"})

	currencyCache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "currency_rate_cache_total",
		Help: "Currency rate cache lookups by result.",
	}, []string{"result"})

	registry.MustRegister(gateDecisions, guardDecisions, roleLookup, loginThrottled, currencyCache)

	return &Metrics{
		registry:       registry,
		gateDecisions:  gateDecisions,
		guardDecisions: guardDecisions,
		roleLookup:     roleLookup,
		loginThrottled: loginThrottled,
		currencyCache:  currencyCache,
	}
}

// Handler exposes the metrics registry via HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IncGateDecision counts one edge gate decision.
func (m *Metrics) IncGateDecision(outcome, reason string) {
	if m == nil {
		return
	}
	m.gateDecisions.WithLabelValues(outcome, reason).Inc()
}

// IncGuardDecision counts one page guard decision.
func (m *Metrics) IncGuardDecision(guard, outcome string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(guard, outcome).Inc()
}

// ObserveRoleLookup records the latency of a role fetch.
func (m *Metrics) ObserveRoleLookup(d time.Duration) {
	if m == nil {
		return
	}
	m.roleLookup.Observe(d.Seconds())
}

func (m *Metrics) IncLoginThrottled(scope string) {
	if m == nil {
		return
	}
	m.loginThrottled.WithLabelValues(scope).Inc()
}

func (m *Metrics) IncCurrencyCache(result string) {
	if m == nil {
		return
	}
	m.currencyCache.WithLabelValues(result).Inc()
}
