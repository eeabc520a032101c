package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RequestSeconds      *prometheus.HistogramVec
	APIErrors           *prometheus.CounterVec
	LocationResolutions *prometheus.CounterVec
	PlacesFetches       *prometheus.CounterVec
	StaleResponses      prometheus.Counter
	ActiveSessions      prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "compass_provider_request_duration_seconds",
			Help:    "Duration of requests to the geocoding provider APIs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
		APIErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "compass_provider_api_errors_total",
			Help: "Total number of errors received from the geocoding provider APIs.",
		}, []string{"provider", "operation"}),
		LocationResolutions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "compass_location_resolutions_total",
			Help: "Total number of user location resolutions by source.",
		}, []string{"source"}),
		PlacesFetches: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "compass_places_fetches_total",
			Help: "Total number of places fetches by outcome.",
		}, []string{"outcome"}),
		StaleResponses: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "compass_places_stale_responses_total",
			Help: "Places responses dropped because a newer fetch was started.",
		}),
		ActiveSessions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "compass_active_sessions",
			Help: "Current number of live map sessions.",
		}),
	}
}
