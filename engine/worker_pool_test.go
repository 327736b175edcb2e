package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewWorkerPool(t *testing.T) {
	pool := NewWorkerPool("test", 4)
	defer pool.Shutdown()

	stats := pool.GetStats()
	if stats.Workers != 4 {
		t.Errorf("Expected 4 workers, got %d", stats.Workers)
	}
	if stats.Name != "test" {
		t.Errorf("Expected name 'test', got %s", stats.Name)
	}

	zero := NewWorkerPool("zero", 0)
	defer zero.Shutdown()
	if zero.GetStats().Workers != 1 {
		t.Error("Expected a non-positive worker count to mean one")
	}
}

func TestWorkerPoolSubmitAndWait(t *testing.T) {
	pool := NewWorkerPool("test", 2)
	defer pool.Shutdown()

	task := NewTask("wait-1", 21, func(in any) (any, error) {
		return in.(int) * 2, nil
	})

	result, err := pool.SubmitAndWait(context.Background(), task)
	if err != nil {
		t.Fatalf("SubmitAndWait failed: %v", err)
	}
	if !result.OK() {
		t.Fatalf("Task should succeed, got %v", result.Err)
	}
	if result.TaskID != "wait-1" || result.Output.(int) != 42 {
		t.Errorf("Unexpected result %s/%v", result.TaskID, result.Output)
	}
}

func TestWorkerPoolTaskError(t *testing.T) {
	pool := NewWorkerPool("test", 2)
	defer pool.Shutdown()

	expectedErr := errors.New("task failed")
	task := NewTask("task-error", nil, func(any) (any, error) {
		return nil, expectedErr
	})

	result, err := pool.SubmitAndWait(context.Background(), task)
	if err != nil {
		t.Fatalf("SubmitAndWait failed: %v", err)
	}
	if result.OK() || !errors.Is(result.Err, expectedErr) {
		t.Errorf("Expected %v, got %v", expectedErr, result.Err)
	}
	if stats := pool.GetStats(); stats.Failed != 1 {
		t.Errorf("Expected 1 failed, got %d", stats.Failed)
	}
}

func TestWorkerPoolSubmitRejects(t *testing.T) {
	pool := NewWorkerPool("test", 1)
	defer pool.Shutdown()

	if err := pool.Submit(NewTask("nil-fn", nil, nil)); !errors.Is(err, ErrNoTaskFunc) {
		t.Errorf("Expected ErrNoTaskFunc, got %v", err)
	}

	task := NewTask("twice", nil, func(any) (any, error) { return nil, nil })
	if err := pool.Submit(task); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := pool.Submit(task); !errors.Is(err, ErrTaskReused) {
		t.Errorf("Expected ErrTaskReused, got %v", err)
	}
	if _, err := pool.Wait(context.Background(), task); err != nil {
		t.Errorf("Wait failed: %v", err)
	}

	if _, err := pool.Wait(context.Background(), NewTask("never", nil, nil)); err == nil {
		t.Error("Expected Wait on an unsubmitted task to fail")
	}
}

func TestWorkerPoolQueueFull(t *testing.T) {
	pool := NewWorkerPool("test", 1)

	release := make(chan struct{})
	started := make(chan struct{})
	blocker := NewTask("blocker", nil, func(any) (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	if err := pool.Submit(blocker); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-started

	var queued []*Task
	for i := 0; i < queueDepth; i++ {
		task := NewTask(fmt.Sprintf("q-%d", i), nil, func(any) (any, error) { return nil, nil })
		if err := pool.Submit(task); err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
		queued = append(queued, task)
	}

	extra := NewTask("extra", nil, func(any) (any, error) { return nil, nil })
	if err := pool.Submit(extra); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
	if stats := pool.GetStats(); stats.Pending != queueDepth {
		t.Errorf("Expected %d pending, got %d", queueDepth, stats.Pending)
	}

	close(release)
	for _, task := range queued {
		if _, err := pool.Wait(context.Background(), task); err != nil {
			t.Errorf("Wait %s failed: %v", task.ID, err)
		}
	}
	pool.Shutdown()

	// a task refused for a full queue can be resubmitted
	if err := pool.Submit(extra); !errors.Is(err, ErrPoolShutdown) {
		t.Errorf("Expected ErrPoolShutdown, got %v", err)
	}
}

func TestWorkerPoolConcurrency(t *testing.T) {
	pool := NewWorkerPool("test", 8)
	defer pool.Shutdown()

	const numTasks = 100
	var processed atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < numTasks; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			task := NewTask(fmt.Sprintf("task-%d", n), n, func(in any) (any, error) {
				time.Sleep(time.Millisecond)
				processed.Add(1)
				return in, nil
			})
			result, err := pool.SubmitAndWait(context.Background(), task)
			if err != nil {
				t.Errorf("SubmitAndWait failed: %v", err)
				return
			}
			if result.TaskID != task.ID || result.Output.(int) != n {
				t.Errorf("Result mismatch: got %s/%v for %s", result.TaskID, result.Output, task.ID)
			}
		}(i)
	}
	wg.Wait()

	if processed.Load() != numTasks {
		t.Errorf("Expected %d processed, got %d", numTasks, processed.Load())
	}
	if stats := pool.GetStats(); stats.Completed != numTasks || stats.Active != 0 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestWorkerPoolShutdown(t *testing.T) {
	pool := NewWorkerPool("test", 4)

	var ran atomic.Int64
	var tasks []*Task
	for i := 0; i < 10; i++ {
		task := NewTask(fmt.Sprintf("task-%d", i), nil, func(any) (any, error) {
			time.Sleep(5 * time.Millisecond)
			ran.Add(1)
			return nil, nil
		})
		if err := pool.Submit(task); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		tasks = append(tasks, task)
	}

	pool.Shutdown()
	pool.Shutdown()

	if pool.IsRunning() {
		t.Error("Pool should not be running after shutdown")
	}
	if ran.Load() != 10 {
		t.Errorf("Expected queued tasks to drain, %d ran", ran.Load())
	}
	for _, task := range tasks {
		if _, err := pool.Wait(context.Background(), task); err != nil {
			t.Errorf("Wait %s failed: %v", task.ID, err)
		}
	}

	late := NewTask("late", nil, func(any) (any, error) { return nil, nil })
	if err := pool.Submit(late); !errors.Is(err, ErrPoolShutdown) {
		t.Errorf("Expected ErrPoolShutdown, got %v", err)
	}
}

func TestWorkerPoolStats(t *testing.T) {
	pool := NewWorkerPool("stats-test", 2)
	defer pool.Shutdown()

	for i := 0; i < 5; i++ {
		task := NewTask(fmt.Sprintf("ok-%d", i), nil, func(any) (any, error) {
			return nil, nil
		})
		if _, err := pool.SubmitAndWait(context.Background(), task); err != nil {
			t.Fatalf("SubmitAndWait failed: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		task := NewTask(fmt.Sprintf("fail-%d", i), nil, func(any) (any, error) {
			return nil, errors.New("fail")
		})
		if _, err := pool.SubmitAndWait(context.Background(), task); err != nil {
			t.Fatalf("SubmitAndWait failed: %v", err)
		}
	}

	stats := pool.GetStats()
	if stats.Completed != 5 {
		t.Errorf("Expected 5 completed, got %d", stats.Completed)
	}
	if stats.Failed != 3 {
		t.Errorf("Expected 3 failed, got %d", stats.Failed)
	}
	if stats.Abandoned != 0 {
		t.Errorf("Expected 0 abandoned, got %d", stats.Abandoned)
	}
}

func TestWorkerPoolAbandonQueuedTask(t *testing.T) {
	pool := NewWorkerPool("test", 1)
	defer pool.Shutdown()

	release := make(chan struct{})
	started := make(chan struct{})
	blocker := NewTask("blocker", nil, func(any) (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	if err := pool.Submit(blocker); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-started

	var ran atomic.Bool
	queued := NewTask("queued", nil, func(any) (any, error) {
		ran.Store(true)
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result, err := pool.SubmitAndWait(ctx, queued)
	if !errors.Is(err, ErrTaskAbandoned) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected abandoned with deadline exceeded, got %v", err)
	}
	if result != nil {
		t.Errorf("Expected no result, got %+v", result)
	}

	close(release)
	if _, err := pool.Wait(context.Background(), blocker); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	// a later task runs after the abandoned one is skipped
	after := NewTask("after", nil, func(any) (any, error) { return "ok", nil })
	if _, err := pool.SubmitAndWait(context.Background(), after); err != nil {
		t.Fatalf("SubmitAndWait failed: %v", err)
	}
	if ran.Load() {
		t.Error("Abandoned task should never run")
	}
	if stats := pool.GetStats(); stats.Abandoned != 1 || stats.Completed != 2 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestWorkerPoolStartedTaskOutlivesContext(t *testing.T) {
	pool := NewWorkerPool("test", 1)
	defer pool.Shutdown()

	started := make(chan struct{})
	task := NewTask("slow", nil, func(any) (any, error) {
		close(started)
		time.Sleep(100 * time.Millisecond)
		return "done", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	result, err := pool.SubmitAndWait(ctx, task)
	if err != nil {
		t.Fatalf("Started task should not be abandoned: %v", err)
	}
	if !result.OK() || result.Output != "done" {
		t.Errorf("Unexpected result %+v", result)
	}
	if result.Ran < 100*time.Millisecond {
		t.Errorf("Expected the task to run to the end, ran %v", result.Ran)
	}
	if stats := pool.GetStats(); stats.Abandoned != 0 {
		t.Errorf("Expected 0 abandoned, got %d", stats.Abandoned)
	}
}

func TestWorkerPoolPanicRecovery(t *testing.T) {
	pool := NewWorkerPool("test", 1)
	defer pool.Shutdown()

	task := NewTask("panics", nil, func(any) (any, error) {
		panic("boom")
	})

	result, err := pool.SubmitAndWait(context.Background(), task)
	if err != nil {
		t.Fatalf("SubmitAndWait failed: %v", err)
	}
	if result.OK() {
		t.Error("Panicking task should fail")
	}
	if result.Err == nil || !strings.Contains(result.Err.Error(), "task panics panicked: boom") {
		t.Errorf("Unexpected error: %v", result.Err)
	}

	ok := NewTask("after", nil, func(any) (any, error) { return "ok", nil })
	result, err = pool.SubmitAndWait(context.Background(), ok)
	if err != nil || !result.OK() {
		t.Errorf("Pool should recover after panic: %v %v", err, result)
	}
}

func BenchmarkWorkerPoolSubmitAndWait(b *testing.B) {
	pool := NewWorkerPool("bench", 8)
	defer pool.Shutdown()

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		task := NewTask(fmt.Sprintf("task-%d", i), i, func(in any) (any, error) {
			return in, nil
		})
		_, _ = pool.SubmitAndWait(ctx, task)
	}
}

func BenchmarkWorkerPoolThroughput(b *testing.B) {
	pool := NewWorkerPool("throughput", 16)
	defer pool.Shutdown()

	ctx := context.Background()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			task := NewTask(fmt.Sprintf("task-%d", i), i, func(in any) (any, error) {
				return in, nil
			})
			_, _ = pool.SubmitAndWait(ctx, task)
			i++
		}
	})
}
