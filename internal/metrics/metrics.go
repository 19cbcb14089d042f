package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openwindow_provider_calls_total",
			Help: "Total upstream provider calls (weather, air quality, geocoding)",
		},
		[]string{"provider", "status"},
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openwindow_provider_latency_seconds",
			Help:    "Upstream provider call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "openwindow_provider_breaker_state",
			Help: "Circuit breaker state per provider (0 closed, 1 half-open, 2 open)",
		},
		[]string{"provider"},
	)

	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openwindow_evaluations_total",
			Help: "Total window evaluations by outcome",
		},
		[]string{"source", "status"},
	)

	AdmissibleHours = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "openwindow_admissible_hours",
			Help:    "Admissible hours found per evaluation",
			Buckets: []float64{0, 1, 3, 6, 12, 24, 48, 96, 168},
		},
	)

	GeocodeCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openwindow_geocode_cache_total",
			Help: "Geocode lookups by cache result",
		},
		[]string{"result"},
	)

	ChartsRendered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openwindow_charts_rendered_total",
			Help: "Total daily chart images rendered",
		},
	)
)
