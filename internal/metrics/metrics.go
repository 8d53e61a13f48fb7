package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsSent tracks notifications accepted by a provider
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esign_delivery_sent_total",
			Help: "Total number of notifications sent",
		},
		[]string{"type", "channel"},
	)

	// NotificationsFailed tracks failed delivery attempts
	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esign_delivery_failed_total",
			Help: "Total number of failed notification attempts",
		},
		[]string{"type", "reason"},
	)

	// NotificationsDropped tracks jobs dropped after exhausting retries
	NotificationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esign_delivery_dropped_total",
			Help: "Total number of jobs dropped after their final attempt",
		},
		[]string{"queue"},
	)

	// QueueDepth tracks the number of messages waiting in a job queue
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "esign_queue_depth",
			Help: "Current number of jobs waiting in the queue",
		},
		[]string{"queue"},
	)

	// JobRuns tracks scheduled job executions
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esign_job_runs_total",
			Help: "Total number of scheduled job runs",
		},
		[]string{"job", "status"},
	)

	// JobDuration tracks scheduled job execution time
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "esign_job_duration_seconds",
			Help:    "Scheduled job duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		},
		[]string{"job"},
	)

	// JobSkipped tracks ticks skipped because the previous run still held the guard
	JobSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esign_job_skipped_total",
			Help: "Total number of job ticks skipped due to an overlapping run",
		},
		[]string{"job"},
	)

	// RateLimitWait tracks time spent waiting on the per-tenant send limiter
	RateLimitWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "esign_rate_limit_wait_seconds",
			Help:    "Time spent waiting for the tenant send rate limiter",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	// ConsumerRestarts tracks event consumer restart events
	ConsumerRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "esign_consumer_restarts_total",
			Help: "Total number of event consumer restarts",
		},
	)
)
