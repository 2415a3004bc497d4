package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sbx_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sbx_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReserveConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sbx_reserve_conflicts_total",
			Help: "Reservation attempts denied because the box was taken",
		},
	)

	PickupCodeRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sbx_pickup_code_retries_total",
			Help: "Pickup code regenerations after a uniqueness collision",
		},
	)

	ExpiredReservationsReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sbx_expired_reservations_released_total",
			Help: "Reservations reclaimed by the expiry sweep",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sbx_outbox_lag_seconds",
			Help: "Age of the oldest unpublished outbox record",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sbx_rate_limit_exceeded_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)
