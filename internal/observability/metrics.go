package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesRequestedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "rides_requested_total", Help: "Total rides created"})
	AcceptAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "accept_attempts_total", Help: "Accept attempts by outcome"},
		[]string{"result"},
	)
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "broadcasts_total", Help: "Lifecycle events published, by type"},
		[]string{"event"},
	)
	BroadcastDropsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "broadcast_drops_total", Help: "Events dropped because a recipient buffer was full"})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "connections_active", Help: "Registered dispatch connections"})
	RoomsActive       = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "rooms_active", Help: "Per-ride channel groups with at least one member"})
	DriversOnline     = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "drivers_online", Help: "Drivers with a recent location update"})

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
