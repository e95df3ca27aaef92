package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by method (password|google|github)
	// and result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saudema_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"method", "result"},
	)

	// PasswordResets counts reset flow steps (requested|completed|rejected).
	PasswordResets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saudema_password_resets_total",
			Help: "Password reset requests and completions",
		},
		[]string{"stage"},
	)

	// MunicipioCacheEvents counts read-through cache outcomes
	// (hit|miss|refresh|stale|error).
	MunicipioCacheEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saudema_municipio_cache_events_total",
			Help: "Municipality list cache outcomes",
		},
		[]string{"event"},
	)

	// PlacesSearches counts per-municipality searches by outcome (ok|fallback|error).
	PlacesSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saudema_places_searches_total",
			Help: "Per municipality health unit searches",
		},
		[]string{"outcome"},
	)

	// UpstreamLatency measures calls to external APIs (ibge|google_places|github).
	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saudema_upstream_latency_seconds",
			Help:    "Latency of outbound API calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"upstream", "status"},
	)

	// APILatency measures HTTP request latencies by route template and
	// status class (2xx|3xx|4xx|5xx). The upper buckets cover the statewide
	// health unit search.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saudema_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 15, 30, 60, 120},
		},
		[]string{"method", "path", "status"},
	)

	// APIInFlight tracks requests currently being served.
	APIInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "saudema_api_in_flight_requests",
			Help: "Requests currently being served",
		},
	)

	// MaintenanceRuns counts cleanup job runs by job and result (success|failure).
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saudema_maintenance_runs_total",
			Help: "Background maintenance job runs",
		},
		[]string{"job", "result"},
	)

	// ActiveSessions tracks browser sessions created by social login.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "saudema_active_sessions",
			Help: "Number of active browser sessions",
		},
	)

	// HealthProbeStatus is the last outcome per probe: 1 up, 0.5 degraded, 0 down.
	HealthProbeStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "saudema_health_probe_status",
			Help: "Last health probe outcome by component",
		},
		[]string{"component"},
	)
)
