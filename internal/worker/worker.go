// Package worker drains a job queue, retrying failed jobs with exponential
// backoff up to a fixed number of attempts.
package worker

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/vhvplatform/go-esign-delivery-service/internal/metrics"
	"github.com/vhvplatform/go-esign-delivery-service/internal/queue"
	apperrors "github.com/vhvplatform/go-esign-delivery-service/internal/shared/errors"
	"github.com/vhvplatform/go-esign-delivery-service/internal/shared/logger"
)

// RetryPolicy decides whether a failed job is attempted again
type RetryPolicy struct {
	MaxRetries int
	// RetryPermanent retries errors marked non-retryable as well
	RetryPermanent bool
}

// DefaultRetryPolicy allows three attempts and retries every error
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, RetryPermanent: true}
}

// ShouldRetry reports whether a job that has failed attempts times before
// this failure gets another attempt.
func (p RetryPolicy) ShouldRetry(attempts int, err error) bool {
	if attempts >= p.MaxRetries-1 {
		return false
	}
	return p.RetryPermanent || apperrors.IsRetryable(err)
}

// Backoff returns the redelivery delay for a job whose counter has just
// been raised to attempts: 2s, 4s, 8s...
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempts))) * time.Second
}

// Handler processes one job
type Handler[T queue.Job] func(ctx context.Context, job T) error

// Summary reports one drain pass
type Summary struct {
	Received  int `json:"received"`
	Succeeded int `json:"succeeded"`
	Retried   int `json:"retried"`
	Dropped   int `json:"dropped"`
	Remaining int `json:"remaining"`
}

// Options configures a Worker
type Options struct {
	BatchSize    int
	PollInterval time.Duration
	Policy       RetryPolicy
}

// Worker pulls batches from a queue and hands each job to a handler
type Worker[T queue.Job] struct {
	queue        queue.JobQueue[T]
	handle       Handler[T]
	policy       RetryPolicy
	batchSize    int
	pollInterval time.Duration
	log          *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New creates a worker over q
func New[T queue.Job](q queue.JobQueue[T], handle Handler[T], opts Options, log *logger.Logger) *Worker[T] {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Policy.MaxRetries <= 0 {
		opts.Policy = DefaultRetryPolicy()
	}
	return &Worker[T]{
		queue:        q,
		handle:       handle,
		policy:       opts.Policy,
		batchSize:    opts.BatchSize,
		pollInterval: opts.PollInterval,
		log:          log.With("queue", q.Name()),
	}
}

// Name returns the queue name
func (w *Worker[T]) Name() string {
	return w.queue.Name()
}

// Drain receives one batch and processes it sequentially. Jobs put back on
// the queue during the pass are left for the next one.
func (w *Worker[T]) Drain(ctx context.Context) (Summary, error) {
	var summary Summary

	deliveries, err := w.queue.ReceiveBatch(ctx, w.batchSize)
	if err != nil {
		return summary, err
	}
	summary.Received = len(deliveries)

	for _, d := range deliveries {
		switch w.process(ctx, d) {
		case outcomeSucceeded:
			summary.Succeeded++
		case outcomeRetried:
			summary.Retried++
		case outcomeDropped:
			summary.Dropped++
		}
	}

	if depth, err := w.queue.Depth(ctx); err == nil {
		summary.Remaining = depth
		metrics.QueueDepth.WithLabelValues(w.queue.Name()).Set(float64(depth))
	}

	if summary.Received > 0 {
		w.log.Info("Queue batch processed",
			"received", summary.Received,
			"succeeded", summary.Succeeded,
			"retried", summary.Retried,
			"dropped", summary.Dropped,
		)
	}
	return summary, nil
}

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeRetried
	outcomeDropped
)

func (w *Worker[T]) process(ctx context.Context, d queue.Delivery[T]) outcome {
	err := w.handle(ctx, d.Job)
	if err == nil {
		if ackErr := w.queue.Ack(ctx, d); ackErr != nil {
			w.log.Error("Failed to acknowledge job", "error", ackErr)
		}
		return outcomeSucceeded
	}

	attempts := d.Job.AttemptCount()
	if w.policy.ShouldRetry(attempts, err) {
		d.Job.SetAttempts(attempts + 1)
		delay := w.policy.Backoff(attempts + 1)
		if nackErr := w.queue.Nack(ctx, d, delay); nackErr != nil {
			w.log.Error("Failed to requeue job", "attempts", attempts+1, "error", nackErr)
		} else {
			w.log.Warn("Job failed, scheduled retry", "attempts", attempts+1, "delay", delay, "error", err)
		}
		return outcomeRetried
	}

	w.log.Error("Job failed permanently, dropping",
		"attempts", attempts+1,
		"max_retries", w.policy.MaxRetries,
		"retryable", apperrors.IsRetryable(err),
		"error", err,
	)
	metrics.NotificationsDropped.WithLabelValues(w.queue.Name()).Inc()
	if ackErr := w.queue.Ack(ctx, d); ackErr != nil {
		w.log.Error("Failed to remove dropped job", "error", ackErr)
	}
	return outcomeDropped
}

// Start runs the poll loop in a goroutine until Stop is called or ctx ends.
// Each pass is followed by the fixed poll interval.
func (w *Worker[T]) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	go w.loop(ctx, w.done)
	w.log.Info("Queue worker started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)
}

func (w *Worker[T]) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if _, err := w.Drain(ctx); err != nil && ctx.Err() == nil {
			w.log.Error("Queue poll failed", "error", err)
		}
		timer.Reset(w.pollInterval)
	}
}

// Stop cancels the poll loop and waits for the in-flight pass to finish
func (w *Worker[T]) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel, done := w.cancel, w.done
	w.running = false
	w.mu.Unlock()

	cancel()
	<-done
	w.log.Info("Queue worker stopped")
}

// Running reports whether the poll loop is active
func (w *Worker[T]) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
