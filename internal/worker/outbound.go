// Package worker runs outbound deliveries (SMTP, Twilio) off the request path.
// A failed or dropped delivery is logged and never affects the commit that queued it.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deskline/support-desk/internal/config"
	"github.com/deskline/support-desk/internal/observability"
)

// Task is one outbound delivery.
type Task struct {
	Name     string
	TicketID string
	Run      func(ctx context.Context) error
}

// Queue is a bounded fire-and-forget task queue served by a fixed pool of goroutines.
type Queue struct {
	tasks       chan Task
	concurrency int
	timeout     time.Duration
	logger      *zap.Logger
	metrics     *observability.Metrics

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewQueue sizes a queue from config.
func NewQueue(cfg config.WorkerConfig, logger *zap.Logger, metrics *observability.Metrics) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Queue{
		tasks:       make(chan Task, size),
		concurrency: concurrency,
		timeout:     timeout,
		logger:      logger,
		metrics:     metrics,
	}
}

// Start launches the workers. Tasks run under a context detached from ctx's cancellation.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	base := context.WithoutCancel(ctx)
	for i := 0; i < q.concurrency; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for task := range q.tasks {
				q.run(base, task)
			}
		}()
	}
}

// Enqueue hands a task to the pool without blocking. It reports false when the
// task was dropped because the queue is full or shut down.
func (q *Queue) Enqueue(_ context.Context, task Task) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.drop(task, "queue closed")
		return false
	}
	select {
	case q.tasks <- task:
		q.metrics.Inc("outbound.enqueued")
		return true
	default:
		q.drop(task, "queue full")
		return false
	}
}

// Shutdown stops accepting tasks and waits for queued ones until ctx is done.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) run(base context.Context, task Task) {
	ctx, cancel := context.WithTimeout(base, q.timeout)
	defer cancel()

	err := safeRun(ctx, task)
	if err != nil {
		q.metrics.Inc("outbound.failed")
		q.logger.Warn("outbound delivery failed",
			zap.String("task", task.Name),
			zap.String("ticket_id", task.TicketID),
			zap.Error(err))
		return
	}
	q.metrics.Inc("outbound.sent")
	q.logger.Debug("outbound delivery sent", zap.String("task", task.Name), zap.String("ticket_id", task.TicketID))
}

func (q *Queue) drop(task Task, reason string) {
	q.metrics.Inc("outbound.dropped")
	q.logger.Warn("outbound delivery dropped",
		zap.String("task", task.Name),
		zap.String("ticket_id", task.TicketID),
		zap.String("reason", reason))
}

func safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if task.Run == nil {
		return nil
	}
	return task.Run(ctx)
}
