// Package metrics exposes Prometheus instrumentation for the scheduler,
// following the teacher's pattern of package-level collectors registered in
// init() and a shared promhttp handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TasksEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratum_tasks_enqueued_total",
			Help: "Total number of tasks registered, by kind",
		},
		[]string{"kind"},
	)

	TasksFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratum_tasks_finished_total",
			Help: "Total number of tasks that reached a terminal status, by kind and status",
		},
		[]string{"kind", "status"},
	)

	TasksByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stratum_tasks_by_status",
			Help: "Current number of tasks in the queue by status",
		},
		[]string{"status"},
	)

	QueueUsedFraction = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stratum_task_queue_used_fraction",
			Help: "Fraction of the task store's map size currently in use",
		},
	)

	BatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stratum_batches_total",
			Help: "Total number of batches executed",
		},
	)

	BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stratum_batch_duration_seconds",
			Help:    "Time taken to execute a batch, from publish-processing to commit",
			Buckets: prometheus.DefBuckets,
		},
	)

	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stratum_batch_size_tasks",
			Help:    "Number of tasks grouped into a batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	BatchStopReasons = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratum_batch_stop_reasons_total",
			Help: "Total number of batches finalized, by stop reason",
		},
		[]string{"reason"},
	)

	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stratum_tick_duration_seconds",
			Help:    "Time taken by one scheduler run-loop tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	TickPanicsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stratum_tick_panics_total",
			Help: "Total number of panics caught by the run loop's boundary",
		},
	)

	IndexMapperOpenHandles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stratum_index_mapper_open_handles",
			Help: "Current number of open index handles held by the index mapper's LRU",
		},
	)

	IndexMapperEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stratum_index_mapper_evictions_total",
			Help: "Total number of index handles evicted from the LRU",
		},
	)

	IndexMapperGrowthsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stratum_index_mapper_growths_total",
			Help: "Total number of times an index's map size was grown after an out-of-space signal",
		},
	)

	WebhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratum_webhook_deliveries_total",
			Help: "Total number of webhook delivery attempts, by outcome",
		},
		[]string{"outcome"},
	)

	CleanupTasksRegisteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stratum_cleanup_tasks_registered_total",
			Help: "Total number of auto-cleanup task-deletion tasks registered",
		},
	)

	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratum_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stratum_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(TasksEnqueuedTotal)
	prometheus.MustRegister(TasksFinishedTotal)
	prometheus.MustRegister(TasksByStatus)
	prometheus.MustRegister(QueueUsedFraction)
	prometheus.MustRegister(BatchesTotal)
	prometheus.MustRegister(BatchDuration)
	prometheus.MustRegister(BatchSize)
	prometheus.MustRegister(BatchStopReasons)
	prometheus.MustRegister(TickDuration)
	prometheus.MustRegister(TickPanicsTotal)
	prometheus.MustRegister(IndexMapperOpenHandles)
	prometheus.MustRegister(IndexMapperEvictionsTotal)
	prometheus.MustRegister(IndexMapperGrowthsTotal)
	prometheus.MustRegister(WebhookDeliveriesTotal)
	prometheus.MustRegister(CleanupTasksRegisteredTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
