// Package taskqueue runs fire-and-forget work on a bounded queue drained by a
// fixed worker pool.
package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	// ErrQueueFull signals that the queue is at capacity; the task was not accepted.
	ErrQueueFull = errors.New("task queue full")
	// ErrQueueClosed signals that the queue no longer accepts tasks.
	ErrQueueClosed = errors.New("task queue closed")
)

// Task is a unit of background work. ctx is cancelled when shutdown gives up waiting.
type Task func(ctx context.Context) error

// Config configures a Queue.
type Config struct {
	Workers  int
	Capacity int
	Logger   *zap.Logger
	// Tasks counts tasks by name and outcome; optional.
	Tasks *prometheus.CounterVec
	// Depth tracks queued tasks; optional.
	Depth prometheus.Gauge
}

type job struct {
	name     string
	fn       Task
	enqueued time.Time
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
	Pending   int   `json:"pending"`
	Running   int   `json:"running"`
	Workers   int   `json:"workers"`
	Capacity  int   `json:"capacity"`
	Closed    bool  `json:"closed"`
}

// Queue is safe for concurrent use.
type Queue struct {
	jobs     chan job
	pool     *ants.Pool
	workers  int
	logger   *zap.Logger
	tasks    *prometheus.CounterVec
	depth    prometheus.Gauge
	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup

	startOnce      sync.Once
	dispatcherDone chan struct{}

	mu     sync.RWMutex
	closed bool

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// New creates a Queue. Call Start to begin draining.
func New(cfg Config) (*Queue, error) {
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive, got %d", cfg.Capacity)
	}
	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		jobs:           make(chan job, cfg.Capacity),
		pool:           pool,
		workers:        cfg.Workers,
		logger:         cfg.Logger,
		tasks:          cfg.Tasks,
		depth:          cfg.Depth,
		ctx:            ctx,
		cancel:         cancel,
		dispatcherDone: make(chan struct{}),
	}
	if q.logger == nil {
		q.logger = zap.NewNop()
	}
	return q, nil
}

// Start launches the dispatcher. Repeated calls are no-ops.
func (q *Queue) Start() {
	q.startOnce.Do(func() {
		go q.dispatch()
	})
}

// Enqueue schedules fn without blocking.
func (q *Queue) Enqueue(name string, fn Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.count(name, "rejected")
		q.rejected.Add(1)
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job{name: name, fn: fn, enqueued: time.Now()}:
		q.submitted.Add(1)
		q.count(name, "submitted")
		if q.depth != nil {
			q.depth.Inc()
		}
		return nil
	default:
		q.rejected.Add(1)
		q.count(name, "rejected")
		q.logger.Warn("task rejected, queue full", zap.String("task", name))
		return ErrQueueFull
	}
}

// Every enqueues fn under name once per interval until ctx is done or the
// queue closes. A tick that finds the queue full is skipped. It blocks.
func (q *Queue) Every(ctx context.Context, interval time.Duration, name string, fn Task) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.Enqueue(name, fn); errors.Is(err, ErrQueueClosed) {
				return
			}
		}
	}
}

func (q *Queue) dispatch() {
	defer close(q.dispatcherDone)
	for j := range q.jobs {
		if q.depth != nil {
			q.depth.Dec()
		}
		q.inflight.Add(1)
		// Submit blocks while every worker is busy
		if err := q.pool.Submit(func() {
			defer q.inflight.Done()
			q.run(j)
		}); err != nil {
			q.inflight.Done()
			q.failed.Add(1)
			q.count(j.name, "failed")
			q.logger.Error("task submit failed", zap.String("task", j.name), zap.Error(err))
		}
	}
}

func (q *Queue) run(j job) {
	start := time.Now()
	err := q.safeRun(j)
	fields := []zap.Field{
		zap.String("task", j.name),
		zap.Duration("wait", start.Sub(j.enqueued)),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		q.failed.Add(1)
		q.count(j.name, "failed")
		q.logger.Error("background task failed", append(fields, zap.Error(err))...)
		return
	}
	q.completed.Add(1)
	q.count(j.name, "completed")
	q.logger.Debug("background task completed", fields...)
}

func (q *Queue) safeRun(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return j.fn(q.ctx)
}

// Shutdown stops intake and waits for queued and running tasks. When ctx ends
// first, running tasks see their context cancelled and ctx.Err() is returned.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.Start()

	done := make(chan struct{})
	go func() {
		<-q.dispatcherDone
		q.inflight.Wait()
		close(done)
	}()

	defer q.pool.Release()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		q.logger.Warn("task queue shutdown timed out", zap.Int("pending", len(q.jobs)))
		return fmt.Errorf("task queue shutdown: %w", ctx.Err())
	}
}

// Stats returns a snapshot of the counters.
func (q *Queue) Stats() Stats {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	return Stats{
		Submitted: q.submitted.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		Rejected:  q.rejected.Load(),
		Pending:   len(q.jobs),
		Running:   q.pool.Running(),
		Workers:   q.workers,
		Capacity:  cap(q.jobs),
		Closed:    closed,
	}
}

func (q *Queue) count(name, outcome string) {
	if q.tasks != nil {
		q.tasks.WithLabelValues(name, outcome).Inc()
	}
}
