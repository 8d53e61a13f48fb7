package queue

import (
	"context"
	"strconv"
	"sync"
	"time"
)

const initialCapacity = 16

// MemoryQueue is a thread-safe FIFO ring buffer. Received jobs leave the
// buffer immediately, so Ack is a no-op and Nack pushes the job back on the
// tail. Delays are not honoured.
type MemoryQueue[T Job] struct {
	name string
	buf  []T
	head int
	size int
	seq  uint64
	mu   sync.Mutex
}

// NewMemoryQueue creates an empty in-process queue
func NewMemoryQueue[T Job](name string) *MemoryQueue[T] {
	return &MemoryQueue[T]{
		name: name,
		buf:  make([]T, initialCapacity),
	}
}

func (q *MemoryQueue[T]) Name() string { return q.name }

// Enqueue adds a job to the tail
func (q *MemoryQueue[T]) Enqueue(_ context.Context, job T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	reset(job, time.Now())
	q.push(job)
	return nil
}

// EnqueueBatch adds jobs to the tail in order
func (q *MemoryQueue[T]) EnqueueBatch(_ context.Context, jobs []T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for _, job := range jobs {
		reset(job, now)
		q.push(job)
	}
	return nil
}

// ReceiveBatch removes up to limit jobs from the head
func (q *MemoryQueue[T]) ReceiveBatch(_ context.Context, limit int) ([]Delivery[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := min(limit, q.size)
	if n <= 0 {
		return nil, nil
	}

	out := make([]Delivery[T], 0, n)
	for range n {
		var zero T
		job := q.buf[q.head]
		q.buf[q.head] = zero // Avoid memory leak
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		q.seq++
		out = append(out, Delivery[T]{Job: job, Receipt: strconv.FormatUint(q.seq, 10)})
	}
	return out, nil
}

// Ack is a no-op; received jobs have already left the buffer
func (q *MemoryQueue[T]) Ack(context.Context, Delivery[T]) error {
	return nil
}

// Nack pushes the job back on the tail, keeping its attempt count
func (q *MemoryQueue[T]) Nack(_ context.Context, d Delivery[T], _ time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.push(d.Job)
	return nil
}

// Depth returns the number of buffered jobs
func (q *MemoryQueue[T]) Depth(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size, nil
}

// push must be called with q.mu held
func (q *MemoryQueue[T]) push(job T) {
	if q.size == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.size)%len(q.buf)] = job
	q.size++
}

func (q *MemoryQueue[T]) grow() {
	next := make([]T, len(q.buf)*2)
	for i := range q.size {
		next[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = next
	q.head = 0
}
