// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_jobs_enqueued_total",
			Help: "Total number of notification jobs enqueued",
		},
		[]string{"tenant_id", "channel", "type_code"},
	)

	JobsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_jobs_delivered_total",
			Help: "Total number of notification jobs delivered",
		},
		[]string{"tenant_id", "channel"},
	)

	JobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_jobs_failed_total",
			Help: "Total number of notification jobs that reached failed state",
		},
		[]string{"tenant_id", "channel", "error_code"},
	)

	JobsCancelled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_jobs_cancelled_total",
			Help: "Total number of notification jobs cancelled",
		},
		[]string{"tenant_id", "channel", "reason"},
	)

	DeliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_delivery_attempts_total",
			Help: "Total delivery attempts by outcome",
		},
		[]string{"channel", "provider", "outcome"},
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "notification_delivery_duration_seconds",
			Help: "Duration of provider send calls in seconds",
		},
		[]string{"channel", "provider"},
	)

	EventsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_events_recorded_total",
			Help: "Delivery events recorded, by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_jobs_in_flight",
			Help: "Number of jobs currently being dispatched",
		},
	)
)
