package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Worker pool errors.
var (
	ErrPoolShutdown  = errors.New("worker pool is shut down")
	ErrQueueFull     = errors.New("task queue is full")
	ErrTaskAbandoned = errors.New("task abandoned before a worker picked it up")
	ErrTaskReused    = errors.New("task already submitted")
	ErrNoTaskFunc    = errors.New("task has no function")
)

// queueDepth is the number of queued tasks allowed per worker.
const queueDepth = 100

// TaskFunc is the body of a task.
type TaskFunc func(input any) (any, error)

const (
	taskQueued int32 = iota
	taskRunning
	taskAbandoned
)

// Task is one unit of work for a WorkerPool. A task is submitted once.
type Task struct {
	ID    string
	Input any
	Fn    TaskFunc

	submitted time.Time
	state     atomic.Int32
	done      chan *Result
}

// NewTask returns a task running fn on input.
func NewTask(id string, input any, fn TaskFunc) *Task {
	return &Task{ID: id, Input: input, Fn: fn}
}

// Result is the outcome of a task a worker ran.
type Result struct {
	TaskID string
	Output any
	Err    error
	Worker int
	// Queued is the time from Submit to the worker picking the task up.
	Queued time.Duration
	Ran    time.Duration
}

// OK reports whether the task function returned without error or panic.
func (r *Result) OK() bool { return r.Err == nil }

// PoolStats is a snapshot of a WorkerPool's counters.
type PoolStats struct {
	Name      string `json:"name"`
	Workers   int    `json:"workers"`
	Active    int64  `json:"active"`
	Pending   int    `json:"pending"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
	Abandoned int64  `json:"abandoned"`
}

// WorkerPool runs tasks on a fixed set of goroutines fed by a bounded
// queue. Callers bound how long a task may wait in the queue; a task a
// worker has started always runs to the end.
type WorkerPool struct {
	name    string
	workers int
	queue   chan *Task
	wg      sync.WaitGroup

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	abandoned atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool starts workers goroutines. Non-positive counts mean one.
func NewWorkerPool(name string, workers int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	p := &WorkerPool{
		name:    name,
		workers: workers,
		queue:   make(chan *Task, workers*queueDepth),
	}
	p.wg.Add(workers)
	for id := range workers {
		go p.work(id)
	}
	return p
}

func (p *WorkerPool) work(id int) {
	defer p.wg.Done()
	for t := range p.queue {
		// the waiter gave up and already counted it
		if !t.state.CompareAndSwap(taskQueued, taskRunning) {
			continue
		}
		t.done <- p.run(id, t)
	}
}

func (p *WorkerPool) run(id int, t *Task) (res *Result) {
	start := time.Now()
	res = &Result{TaskID: t.ID, Worker: id, Queued: start.Sub(t.submitted)}

	p.active.Add(1)
	defer func() {
		if r := recover(); r != nil {
			res.Output = nil
			res.Err = fmt.Errorf("task %s panicked: %v", t.ID, r)
		}
		res.Ran = time.Since(start)
		p.active.Add(-1)
		if res.Err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
	}()

	res.Output, res.Err = t.Fn(t.Input)
	return res
}

// Submit queues t without blocking. Collect the result with Wait.
func (p *WorkerPool) Submit(t *Task) error {
	if t.Fn == nil {
		return ErrNoTaskFunc
	}
	if t.done != nil {
		return ErrTaskReused
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolShutdown
	}

	t.submitted = time.Now()
	t.done = make(chan *Result, 1)
	select {
	case p.queue <- t:
		return nil
	default:
		t.done = nil
		return ErrQueueFull
	}
}

// Wait returns the result of a submitted task. If ctx ends while t is
// still queued, t is withdrawn and will never run; the returned error
// wraps ErrTaskAbandoned and ctx.Err(). Once a worker has started t, Wait
// ignores ctx and blocks until t finishes.
func (p *WorkerPool) Wait(ctx context.Context, t *Task) (*Result, error) {
	if t.done == nil {
		return nil, fmt.Errorf("task %s was not submitted", t.ID)
	}
	select {
	case res := <-t.done:
		return res, nil
	case <-ctx.Done():
	}
	if t.state.CompareAndSwap(taskQueued, taskAbandoned) {
		p.abandoned.Add(1)
		return nil, fmt.Errorf("%w: %w", ErrTaskAbandoned, ctx.Err())
	}
	return <-t.done, nil
}

// SubmitAndWait is Submit followed by Wait.
func (p *WorkerPool) SubmitAndWait(ctx context.Context, t *Task) (*Result, error) {
	if err := p.Submit(t); err != nil {
		return nil, err
	}
	return p.Wait(ctx, t)
}

// GetStats returns current counters.
func (p *WorkerPool) GetStats() PoolStats {
	return PoolStats{
		Name:      p.name,
		Workers:   p.workers,
		Active:    p.active.Load(),
		Pending:   len(p.queue),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Abandoned: p.abandoned.Load(),
	}
}

// Shutdown refuses new tasks, drains the queue and waits for the workers.
// Safe to call more than once.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// IsRunning reports whether the pool still accepts tasks.
func (p *WorkerPool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed
}
