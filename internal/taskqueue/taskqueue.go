// Package taskqueue implements a bounded single-producer/multi-consumer
// task queue: a fixed-capacity circular buffer of task arguments, a task
// routine fixed at construction time, and a set of worker goroutines that
// drain the buffer until told to terminate.
//
// Push writes one argument at a time and signals a single waiter. Workers
// block on a condition variable whenever the queue is empty and not
// terminating; the wait predicate (count > 0, or termination) is re-checked
// after every wake to tolerate spurious wakeups. Workers observe
// termination with items still queued and are required to drain them
// before exiting — Terminate does not discard pending work.
package taskqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"sync"
)

// ErrQueueFull is returned by Push when the queue is at capacity. The
// caller's contract is to retry.
var ErrQueueFull = errors.New("taskqueue: queue is full")

// ErrClosed is returned by Push once Terminate has been called.
var ErrClosed = errors.New("taskqueue: queue is terminated")

// Queue is a bounded FIFO of task arguments of type T, processed by a fixed
// routine across any number of worker goroutines.
type Queue[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []T
	head    int
	tail    int
	count   int
	cap     int
	term    bool
	routine func(T)
	logger  zerolog.Logger
}

// Option configures a Queue constructed by New.
type Option func(*queueConfig)

type queueConfig struct {
	logger zerolog.Logger
}

// WithLogger attaches a structured logger used to trace each worker's exit
// once the queue is terminated and drained. The default Queue logs nothing.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *queueConfig) { c.logger = logger }
}

// New constructs a Queue with the given capacity and task routine. capacity
// must be > 0.
func New[T any](capacity int, routine func(T), opts ...Option) (*Queue[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("taskqueue: capacity must be > 0, got %d", capacity)
	}
	if routine == nil {
		return nil, errors.New("taskqueue: routine must not be nil")
	}
	cfg := queueConfig{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	q := &Queue[T]{
		items:   make([]T, capacity),
		cap:     capacity,
		routine: routine,
		logger:  cfg.logger,
	}
	q.cond = sync.NewCond(&q.mu)
	return q, nil
}

// Push enqueues arg. It returns ErrQueueFull if the queue is saturated, and
// ErrClosed if Terminate has already been called.
func (q *Queue[T]) Push(arg T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.term {
		return ErrClosed
	}
	if q.count == q.cap {
		return ErrQueueFull
	}

	q.items[q.tail] = arg
	q.tail = (q.tail + 1) % q.cap
	q.count++
	q.cond.Signal()
	return nil
}

// Run spawns n worker goroutines that each execute the worker loop until
// the queue is terminated and drained, returning when every worker has
// exited. It also honors ctx cancellation as a cooperative shutdown signal
// equivalent to Terminate.
func (q *Queue[T]) Run(ctx context.Context, n int) error {
	if n <= 0 {
		return fmt.Errorf("taskqueue: worker count must be > 0, got %d", n)
	}
	g, ctx := errgroup.WithContext(ctx)
	// The watcher is outside the group: errgroup cancels ctx once Wait
	// returns, so it also exits after a direct Terminate has drained the queue.
	go func() {
		<-ctx.Done()
		q.Terminate()
	}()
	for i := 0; i < n; i++ {
		workerID := i
		g.Go(func() error {
			q.workerLoop(workerID)
			return nil
		})
	}
	return g.Wait()
}

func (q *Queue[T]) workerLoop(workerID int) {
	for {
		q.mu.Lock()
		for q.count == 0 && !q.term {
			q.cond.Wait()
		}
		if q.count == 0 {
			// count == 0 && term: nothing left to drain.
			q.mu.Unlock()
			q.logger.Debug().Int("worker", workerID).Msg("taskqueue: worker exiting, queue drained")
			return
		}
		arg := q.items[q.head]
		q.head = (q.head + 1) % q.cap
		q.count--
		q.mu.Unlock()

		q.routine(arg)
	}
}

// Terminate marks the queue as closed and wakes every blocked worker. It
// does not wait for workers to exit; Run returns once every worker has
// drained the queue and exited. Cancelling the context passed to Run has
// the same effect as calling Terminate.
func (q *Queue[T]) Terminate() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.term {
		return
	}
	q.term = true
	q.cond.Broadcast()
}

// Len returns the number of items currently queued.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}
