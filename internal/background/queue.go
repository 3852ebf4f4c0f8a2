// Package background implements the in-process "check transition" job queue
// that replaces fire-and-forget handlers: every submit_* call enqueues a job
// instead of running the transition check inline on the request goroutine.
package background

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/deliberation/dsm-engine/internal/concurrency"
)

// TransitionHandler re-evaluates one deliberation's transition predicates and
// advances its stage if satisfied. Supplied by internal/deliberation.Service
// to avoid a queue -> service import cycle.
type TransitionHandler func(ctx context.Context, deliberationID string) error

// TransitionJobQueue enqueues CheckTransition jobs onto a bounded worker
// pool (internal/concurrency.WorkerPool), one job per deliberation mutation.
type TransitionJobQueue struct {
	pool    *concurrency.WorkerPool
	handler TransitionHandler
	log     *logrus.Logger
	metrics *QueueMetrics
}

// NewTransitionJobQueue builds a queue with workers workers, backed by
// metrics registered once at construction.
func NewTransitionJobQueue(workers int, handler TransitionHandler, log *logrus.Logger, metrics *QueueMetrics) *TransitionJobQueue {
	pool := concurrency.NewWorkerPool(&concurrency.PoolConfig{
		Workers:     workers,
		QueueSize:   1000,
		TaskTimeout: 60 * time.Second,
		OnError: func(taskID string, err error) {
			log.WithFields(logrus.Fields{"job": taskID, "error": err}).Warn("check-transition job failed")
		},
	})
	pool.Start()

	return &TransitionJobQueue{pool: pool, handler: handler, log: log, metrics: metrics}
}

// Enqueue schedules a transition check for deliberationID. Non-blocking:
// callers of submit_opinion/submit_ranking/submit_critique call this and
// return to the client immediately, per spec.md §9.
func (q *TransitionJobQueue) Enqueue(deliberationID string) error {
	job := concurrency.NewTaskFunc(
		fmt.Sprintf("check-transition:%s:%d", deliberationID, time.Now().UnixNano()),
		func(ctx context.Context) (interface{}, error) {
			start := time.Now()
			err := q.handler(ctx, deliberationID)
			q.metrics.JobDuration.Observe(time.Since(start).Seconds())
			if err != nil {
				q.metrics.JobsFailed.Inc()
			}
			return nil, err
		},
	)

	if err := q.pool.Submit(job); err != nil {
		return fmt.Errorf("enqueue check-transition job: %w", err)
	}
	q.metrics.JobsEnqueued.Inc()
	q.metrics.QueueDepth.Set(float64(q.pool.QueueLength()))
	return nil
}

// Depth reports the current queue length, for the /health handler.
func (q *TransitionJobQueue) Depth() int { return q.pool.QueueLength() }

// WorkerMetrics exposes the underlying worker pool's activity counters, for
// the /health handler.
func (q *TransitionJobQueue) WorkerMetrics() *concurrency.PoolMetrics { return q.pool.Metrics() }

// Shutdown drains in-flight jobs before returning, up to timeout.
func (q *TransitionJobQueue) Shutdown(timeout time.Duration) error {
	return q.pool.Shutdown(timeout)
}
