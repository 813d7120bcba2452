package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the auth core and HTTP surface
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Access boundary metrics
	AuthDecisionsTotal *prometheus.CounterVec

	// Credential verification metrics
	CredentialVerificationsTotal *prometheus.CounterVec
	SigningKeyCacheHitsTotal     prometheus.Counter
	SigningKeyCacheMissesTotal   prometheus.Counter

	// Team token metrics
	TeamTokensGeneratedTotal  prometheus.Counter
	TeamTokenValidationsTotal *prometheus.CounterVec

	// Directory metrics
	DirectoryLookupsTotal   *prometheus.CounterVec
	DirectoryLookupDuration *prometheus.HistogramVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipview_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shipview_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AuthDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipview_auth_decisions_total",
				Help: "Total number of access boundary decisions",
			},
			[]string{"resource", "outcome"},
		),
		CredentialVerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipview_credential_verifications_total",
				Help: "Total number of bearer credential verifications",
			},
			[]string{"result"},
		),
		SigningKeyCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shipview_signing_key_cache_hits_total",
				Help: "Signing key cache hits",
			},
		),
		SigningKeyCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shipview_signing_key_cache_misses_total",
				Help: "Signing key cache misses (each miss triggers a key service fetch)",
			},
		),
		TeamTokensGeneratedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "shipview_team_tokens_generated_total",
				Help: "Total number of team tokens generated",
			},
		),
		TeamTokenValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipview_team_token_validations_total",
				Help: "Total number of team token validations",
			},
			[]string{"result"},
		),
		DirectoryLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipview_directory_lookups_total",
				Help: "Total number of directory visibility lookups",
			},
			[]string{"kind", "visibility"},
		),
		DirectoryLookupDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shipview_directory_lookup_duration_seconds",
				Help:    "Directory lookup duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "shipview_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "shipview_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthDecisionsTotal,
		m.CredentialVerificationsTotal,
		m.SigningKeyCacheHitsTotal,
		m.SigningKeyCacheMissesTotal,
		m.TeamTokensGeneratedTotal,
		m.TeamTokenValidationsTotal,
		m.DirectoryLookupsTotal,
		m.DirectoryLookupDuration,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// ObserveDBStats records the connection pool gauges from database/sql
// statistics. Called periodically by the composition root.
func (m *Metrics) ObserveDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// Handler returns the Prometheus exposition handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the response status code for HTTP metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware records request counts and durations per route
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(recorder.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}
