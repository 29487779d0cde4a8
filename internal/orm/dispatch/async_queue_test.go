package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestAsyncQueue_StartStop(t *testing.T) {
	queue := NewAsyncQueue(2, nil)
	queue.Start()

	executed := make(chan bool, 1)
	err := queue.Enqueue(AsyncTask{
		Name: "test-task",
		Fn: func(ctx context.Context) error {
			executed <- true
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	select {
	case <-executed:
	case <-time.After(2 * time.Second):
		t.Error("Task did not execute within timeout")
	}

	queue.Shutdown()
}

func TestAsyncQueue_MultipleWorkers(t *testing.T) {
	queue := NewAsyncQueue(4, nil)
	queue.Start()
	defer queue.Shutdown()

	taskCount := 20
	var executed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(taskCount)

	for i := 0; i < taskCount; i++ {
		err := queue.Enqueue(AsyncTask{
			Name: "concurrent-task",
			Fn: func(ctx context.Context) error {
				executed.Add(1)
				time.Sleep(10 * time.Millisecond)
				wg.Done()
				return nil
			},
		})
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	done := make(chan bool)
	go func() {
		wg.Wait()
		done <- true
	}()

	select {
	case <-done:
		if int(executed.Load()) != taskCount {
			t.Errorf("Expected %d tasks to execute, got %d", taskCount, executed.Load())
		}
	case <-time.After(5 * time.Second):
		t.Errorf("Tasks did not complete within timeout, executed: %d/%d", executed.Load(), taskCount)
	}
}

func TestAsyncQueue_TaskErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	queue := NewAsyncQueue(1, zap.New(core))
	queue.Start()

	err := queue.Enqueue(AsyncTask{
		Name: "failing-task",
		Fn: func(ctx context.Context) error {
			return errors.New("task failed")
		},
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	queue.Shutdown()

	entries := logs.FilterMessage("async task failed").All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 logged failure, got %d", len(entries))
	}
	if entries[0].ContextMap()["task"] != "failing-task" {
		t.Errorf("Expected task field, got %v", entries[0].ContextMap())
	}
}

func TestAsyncQueue_TaskPanic(t *testing.T) {
	queue := NewAsyncQueue(2, nil)
	queue.Start()
	defer queue.Shutdown()

	err := queue.Enqueue(AsyncTask{
		Name: "panic-task",
		Fn: func(ctx context.Context) error {
			panic("intentional panic")
		},
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	executed := make(chan bool, 1)
	err = queue.Enqueue(AsyncTask{
		Name: "normal-task",
		Fn: func(ctx context.Context) error {
			executed <- true
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Enqueue after panic failed: %v", err)
	}

	select {
	case <-executed:
	case <-time.After(2 * time.Second):
		t.Error("Queue failed to recover from panic")
	}
}

func TestAsyncQueue_EnqueueBeforeStart(t *testing.T) {
	queue := NewAsyncQueue(2, nil)
	task := AsyncTask{Name: "test-task", Fn: func(ctx context.Context) error { return nil }}

	if err := queue.Enqueue(task); err == nil {
		t.Error("Expected error when enqueueing before start")
	}

	queue.Start()
	defer queue.Shutdown()

	if err := queue.Enqueue(task); err != nil {
		t.Errorf("Enqueue after start should work: %v", err)
	}
}

func TestAsyncQueue_ShutdownGraceful(t *testing.T) {
	queue := NewAsyncQueue(2, nil)
	queue.Start()

	taskCount := 10
	var executed atomic.Int32
	for i := 0; i < taskCount; i++ {
		err := queue.Enqueue(AsyncTask{
			Name: "shutdown-task",
			Fn: func(ctx context.Context) error {
				executed.Add(1)
				time.Sleep(20 * time.Millisecond)
				return nil
			},
		})
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	queue.Shutdown()

	if int(executed.Load()) != taskCount {
		t.Errorf("Not all tasks completed before shutdown: %d/%d", executed.Load(), taskCount)
	}

	err := queue.Enqueue(AsyncTask{Name: "late", Fn: func(ctx context.Context) error { return nil }})
	if err == nil {
		t.Error("Should not be able to enqueue after shutdown")
	}
}

func TestAsyncQueue_Stop(t *testing.T) {
	queue := NewAsyncQueue(2, nil)
	queue.Start()

	started := make(chan bool, 1)
	err := queue.Enqueue(AsyncTask{
		Name: "long-task",
		Fn: func(ctx context.Context) error {
			started <- true
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
				return nil
			}
		},
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	<-started

	stopStart := time.Now()
	queue.Stop()
	if d := time.Since(stopStart); d > time.Second {
		t.Errorf("Stop took too long: %v", d)
	}
}

func TestAsyncQueue_MultipleStartCalls(t *testing.T) {
	queue := NewAsyncQueue(0, nil)
	queue.Start()
	queue.Start()

	executed := make(chan bool, 1)
	err := queue.Enqueue(AsyncTask{
		Name: "test-task",
		Fn: func(ctx context.Context) error {
			executed <- true
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	select {
	case <-executed:
	case <-time.After(2 * time.Second):
		t.Error("Task did not execute")
	}

	queue.Shutdown()
}
