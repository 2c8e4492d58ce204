package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "rides_created_total", Help: "Total rides persisted as REQUESTED"})
	FareQuotesTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "fare_quotes_total", Help: "Total fare quotes computed (binding and estimates)"})
	RideAcceptsTotal  = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "ride_accepts_total", Help: "Accept attempts by outcome"},
		[]string{"outcome"},
	)
	PricingFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "pricing_fallback_total", Help: "Times the fallback pricing config was used because no row was active"})

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "notifications_total", Help: "Ride offer push attempts by result"},
		[]string{"result"},
	)
	DriversOnline = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "drivers_online", Help: "Drivers currently marked online"})
	LiveSessions  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "live_sessions", Help: "Registered WebSocket sessions"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
