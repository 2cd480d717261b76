package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsScheduled counts successful registrations by schedule kind.
	JobsScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quirrel_jobs_scheduled_total",
			Help: "The total number of jobs registered.",
		},
		[]string{"kind"},
	)

	// JobsDeleted counts jobs removed by delete, deleteAll and shutdown.
	JobsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quirrel_jobs_deleted_total",
			Help: "The total number of jobs explicitly removed.",
		},
	)

	// Deliveries counts outbound deliveries by outcome (success, failure).
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quirrel_deliveries_total",
			Help: "The total number of outbound job deliveries.",
		},
		[]string{"outcome"},
	)

	// JobRetries counts attempts scheduled from a retry ladder.
	JobRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quirrel_job_retries_total",
			Help: "The total number of times a job has been retried.",
		},
	)

	DeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quirrel_delivery_duration_seconds",
			Help:    "A histogram of outbound delivery round trips.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// DeliveriesInFlight is the number of deliveries currently running.
	DeliveriesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quirrel_deliveries_in_flight",
			Help: "The number of deliveries currently being executed.",
		},
	)

	// Received counts inbound deliveries handled by a responder, by route and status code.
	Received = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quirrel_received_total",
			Help: "The total number of inbound deliveries handled.",
		},
		[]string{"route", "status"},
	)
)
