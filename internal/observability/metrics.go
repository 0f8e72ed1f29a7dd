package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	authzDecisions    *prometheus.CounterVec
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	impersonations    prometheus.Counter
	impersonationEnds *prometheus.CounterVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tempora_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tempora_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tempora_authz_decisions_total",
		Help: "Enforcement gate decisions by outcome.",
	}, []string{"outcome"})
	hits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tempora_authz_resolution_cache_hits_total",
		Help: "Capability resolutions served from cache.",
	})
	misses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tempora_authz_resolution_cache_misses_total",
		Help: "Capability resolutions computed from the store.",
	})
	starts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tempora_impersonation_sessions_started_total",
		Help: "Impersonation sessions started.",
	})
	ends := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tempora_impersonation_sessions_ended_total",
		Help: "Impersonation sessions ended by reason.",
	}, []string{"reason"})
	registry.MustRegister(requests, duration, decisions, hits, misses, starts, ends)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		authzDecisions:    decisions,
		cacheHits:         hits,
		cacheMisses:       misses,
		impersonations:    starts,
		impersonationEnds: ends,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// AuthzDecision counts a gate outcome.
func (m *Metrics) AuthzDecision(outcome string) {
	if m == nil {
		return
	}
	m.authzDecisions.WithLabelValues(outcome).Inc()
}

// ResolutionCacheHit counts a cache hit.
func (m *Metrics) ResolutionCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// ResolutionCacheMiss counts a cache miss.
func (m *Metrics) ResolutionCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

// ImpersonationStarted counts a session start.
func (m *Metrics) ImpersonationStarted() {
	if m == nil {
		return
	}
	m.impersonations.Inc()
}

// ImpersonationEnded counts a session end by reason.
func (m *Metrics) ImpersonationEnded(reason string) {
	if m == nil {
		return
	}
	m.impersonationEnds.WithLabelValues(reason).Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
