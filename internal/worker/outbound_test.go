package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deskline/support-desk/internal/config"
	"github.com/deskline/support-desk/internal/observability"
)

func TestQueueRunsTasksAndSwallowsFailures(t *testing.T) {
	metrics := observability.NewMetrics()
	q := NewQueue(config.WorkerConfig{Concurrency: 2, QueueSize: 8, SendTimeout: time.Second}, nil, metrics)
	q.Start(context.Background())

	var ran atomic.Int32
	tasks := []Task{
		{Name: "ok", Run: func(context.Context) error { ran.Add(1); return nil }},
		{Name: "fail", Run: func(context.Context) error { ran.Add(1); return errors.New("smtp down") }},
		{Name: "panic", Run: func(context.Context) error { ran.Add(1); panic("boom") }},
	}
	for _, task := range tasks {
		if !q.Enqueue(context.Background(), task) {
			t.Fatalf("task %s dropped", task.Name)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if got := ran.Load(); got != 3 {
		t.Fatalf("ran %d tasks, want 3", got)
	}
	snap := metrics.Snapshot()
	if snap.Counters["outbound.sent"] != 1 || snap.Counters["outbound.failed"] != 2 {
		t.Fatalf("unexpected counters %v", snap.Counters)
	}
}

func TestQueueDropsWhenFullOrClosed(t *testing.T) {
	q := NewQueue(config.WorkerConfig{Concurrency: 1, QueueSize: 1}, nil, nil)

	if !q.Enqueue(context.Background(), Task{Name: "first"}) {
		t.Fatal("first task should fit")
	}
	if q.Enqueue(context.Background(), Task{Name: "second"}) {
		t.Fatal("second task should be dropped while workers are not started")
	}

	q.Start(context.Background())
	if err := q.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if q.Enqueue(context.Background(), Task{Name: "late"}) {
		t.Fatal("enqueue after shutdown should be dropped")
	}
}

func TestTaskContextOutlivesCaller(t *testing.T) {
	q := NewQueue(config.WorkerConfig{Concurrency: 1, QueueSize: 1, SendTimeout: time.Second}, nil, nil)
	parent, cancel := context.WithCancel(context.Background())
	q.Start(parent)
	cancel()

	result := make(chan error, 1)
	q.Enqueue(parent, Task{Name: "detached", Run: func(ctx context.Context) error {
		result <- ctx.Err()
		return nil
	}})
	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("task context cancelled with parent: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
	_ = q.Shutdown(context.Background())
}
