// Package queue provides the job queues drained by the delivery workers: an
// in-process ring buffer for single-instance deployments and an SQS-backed
// queue for multi-instance ones.
package queue

import (
	"context"
	"time"
)

// Job is a queued unit of work carrying its own retry counter
type Job interface {
	AttemptCount() int
	SetAttempts(n int)
	MarkEnqueued(at time.Time)
}

// Delivery is a received job plus the handle needed to ack or nack it
type Delivery[T Job] struct {
	Job     T
	Receipt string
}

// JobQueue is an at-least-once job buffer
type JobQueue[T Job] interface {
	// Name identifies the queue in logs and metrics
	Name() string
	// Enqueue adds a fresh job with attempts reset to zero
	Enqueue(ctx context.Context, job T) error
	// EnqueueBatch adds several fresh jobs
	EnqueueBatch(ctx context.Context, jobs []T) error
	// ReceiveBatch returns up to limit of the oldest available jobs
	ReceiveBatch(ctx context.Context, limit int) ([]Delivery[T], error)
	// Ack removes a processed job
	Ack(ctx context.Context, d Delivery[T]) error
	// Nack makes the job available again after delay, carrying its current
	// attempt count
	Nack(ctx context.Context, d Delivery[T], delay time.Duration) error
	// Depth returns the approximate number of waiting jobs
	Depth(ctx context.Context) (int, error)
}

func reset[T Job](job T, now time.Time) {
	job.SetAttempts(0)
	job.MarkEnqueued(now)
}
