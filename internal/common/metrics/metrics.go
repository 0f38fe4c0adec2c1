package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_jobs_completed_total",
			Help: "Total number of dispatch jobs completed",
		},
		[]string{"job"},
	)

	JobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_jobs_failed_total",
			Help: "Total number of dispatch jobs failed",
		},
		[]string{"job", "error_code"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "dispatch_job_duration_seconds",
			Help: "Duration of dispatch job processing in seconds",
		},
		[]string{"job"},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Delivery attempts by channel and outcome",
		},
		[]string{"channel", "status"},
	)

	SMTPRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smtp_send_retries_total",
			Help: "Total number of SMTP send retries after reconnect",
		},
	)
)
