// Package metrics exposes Prometheus instrumentation for the sync engine.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync job metrics
	SyncJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ads_sync_jobs_total",
			Help: "Total number of sync jobs by scope and final status",
		},
		[]string{"scope", "status"},
	)

	SyncJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ads_sync_job_duration_seconds",
			Help:    "Duration of sync jobs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"scope"},
	)

	EntitiesReconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ads_sync_entities_total",
			Help: "Reconciled entities by type and outcome (created, updated, skipped)",
		},
		[]string{"entity_type", "outcome"},
	)

	ConflictsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ads_sync_conflicts_total",
			Help: "Conflict records written by entity and conflict type",
		},
		[]string{"entity_type", "conflict_type"},
	)

	// Queue metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ads_sync_queue_depth",
			Help: "Number of sync requests waiting in the queue",
		},
	)

	QueueItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ads_sync_queue_items_total",
			Help: "Queue items by tier and outcome (done, failed)",
		},
		[]string{"tier", "outcome"},
	)

	QueueRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ads_sync_queue_retries_total",
			Help: "Rate-limit retries performed by the queue",
		},
	)

	// Scheduler metrics
	SchedulerTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ads_sync_scheduler_ticks_total",
			Help: "Scheduler timer ticks by tier",
		},
		[]string{"tier"},
	)

	SchedulerEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ads_sync_scheduler_enqueued_total",
			Help: "Requests enqueued by the scheduler by tier",
		},
		[]string{"tier"},
	)

	// Report metrics
	ReportSubRanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ads_sync_report_subranges_total",
			Help: "Report sub-ranges by outcome (ok, failed, synthetic)",
		},
		[]string{"outcome"},
	)

	// Platform client metrics
	PlatformRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ads_platform_requests_total",
			Help: "Platform API requests by endpoint and result category",
		},
		[]string{"endpoint", "result"},
	)

	PlatformRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ads_platform_request_duration_seconds",
			Help:    "Platform API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// HTTP API metrics
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ads_api_requests_total",
			Help: "HTTP API requests by method, route template and status code",
		},
		[]string{"method", "route", "status"},
	)
)

// RecordSyncJob records a finished sync job
func RecordSyncJob(scope, status string, duration time.Duration) {
	SyncJobsTotal.WithLabelValues(scope, status).Inc()
	SyncJobDuration.WithLabelValues(scope).Observe(duration.Seconds())
}

// RecordReconcile records the outcome counters of one reconciliation pass
func RecordReconcile(entityType string, created, updated, skipped int) {
	if created > 0 {
		EntitiesReconciled.WithLabelValues(entityType, "created").Add(float64(created))
	}
	if updated > 0 {
		EntitiesReconciled.WithLabelValues(entityType, "updated").Add(float64(updated))
	}
	if skipped > 0 {
		EntitiesReconciled.WithLabelValues(entityType, "skipped").Add(float64(skipped))
	}
}

// RecordConflict records one conflict record
func RecordConflict(entityType, conflictType string) {
	ConflictsDetected.WithLabelValues(entityType, conflictType).Inc()
}

// RecordQueueOutcome records a finished queue item
func RecordQueueOutcome(tier string, failed bool) {
	outcome := "done"
	if failed {
		outcome = "failed"
	}
	QueueItemsTotal.WithLabelValues(tier, outcome).Inc()
}

// RecordPlatformRequest records one platform API call
func RecordPlatformRequest(endpoint, result string, duration time.Duration) {
	PlatformRequests.WithLabelValues(endpoint, result).Inc()
	PlatformRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordAPIRequest records one HTTP API request
func RecordAPIRequest(method, route string, status int) {
	APIRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
