package background

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// QueueMetrics holds the Prometheus metrics for the transition job queue.
type QueueMetrics struct {
	JobsEnqueued prometheus.Counter
	JobsFailed   prometheus.Counter
	QueueDepth   prometheus.Gauge
	JobDuration  prometheus.Histogram
}

// NewQueueMetrics registers and returns a fresh QueueMetrics.
func NewQueueMetrics() *QueueMetrics {
	return &QueueMetrics{
		JobsEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "dsm_engine",
			Subsystem: "background",
			Name:      "jobs_enqueued_total",
			Help:      "Total number of check-transition jobs enqueued",
		}),
		JobsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "dsm_engine",
			Subsystem: "background",
			Name:      "jobs_failed_total",
			Help:      "Total number of check-transition jobs that returned an error",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "dsm_engine",
			Subsystem: "background",
			Name:      "queue_depth",
			Help:      "Number of check-transition jobs currently queued",
		}),
		JobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dsm_engine",
			Subsystem: "background",
			Name:      "job_duration_seconds",
			Help:      "Time taken to run a check-transition job, including any round it triggers",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
	}
}
