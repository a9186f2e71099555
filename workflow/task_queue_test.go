package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// NOTE: These tests are intentionally DB-free. They validate the queue's
// ordering and isolation guarantees:
// - tasks run strictly one at a time in submission order
// - a failing or panicking task resolves its own result without blocking later tasks

func newRunningQueue(t *testing.T) (*SerialTaskQueue, context.CancelFunc) {
	t.Helper()
	q := NewSerialTaskQueue(nil, 16)
	ctx, cancel := context.WithCancel(context.Background())
	go q.Run(ctx)
	return q, cancel
}

func TestSerialTaskQueueRunsInOrder(t *testing.T) {
	q, cancel := newRunningQueue(t)
	defer cancel()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	// tasks submitted one after another from a single goroutine must run in
	// that order even though each submitter blocks
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			// stagger submissions so acceptance order is deterministic
			time.Sleep(time.Duration(i*20) * time.Millisecond)
			_, err := q.Submit(context.Background(), "ordered", func(ctx context.Context) (interface{}, error) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil, nil
			})
			if err != nil {
				t.Errorf("task %d: %v", i, err)
			}
		}()
	}
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("execution order %v, want ascending", order)
		}
	}
}

func TestSerialTaskQueueNoOverlap(t *testing.T) {
	q, cancel := newRunningQueue(t)
	defer cancel()

	var mu sync.Mutex
	running := 0
	maxRunning := 0
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.Submit(context.Background(), "overlap", func(ctx context.Context) (interface{}, error) {
				mu.Lock()
				running++
				if running > maxRunning {
					maxRunning = running
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				running--
				mu.Unlock()
				return nil, nil
			})
		}()
	}
	wg.Wait()

	if maxRunning != 1 {
		t.Fatalf("max concurrent tasks = %d, want 1", maxRunning)
	}
}

func TestSerialTaskQueueFailureIsolation(t *testing.T) {
	q, cancel := newRunningQueue(t)
	defer cancel()

	boom := errors.New("boom")
	if _, err := q.Submit(context.Background(), "failing", func(ctx context.Context) (interface{}, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	value, err := q.Submit(context.Background(), "after-failure", func(ctx context.Context) (interface{}, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("task after failure: %v", err)
	}
	if value != 42 {
		t.Fatalf("value = %v, want 42", value)
	}
}

func TestSerialTaskQueuePanicIsolation(t *testing.T) {
	q, cancel := newRunningQueue(t)
	defer cancel()

	_, err := q.Submit(context.Background(), "panicking", func(ctx context.Context) (interface{}, error) {
		panic("kaboom")
	})
	if err == nil {
		t.Fatal("panicking task must resolve with an error")
	}

	if _, err := q.Submit(context.Background(), "after-panic", func(ctx context.Context) (interface{}, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("task after panic: %v", err)
	}
}

func TestSerialTaskQueueClose(t *testing.T) {
	q, cancel := newRunningQueue(t)
	defer cancel()

	q.Close()

	// the runner needs a moment to observe the close
	time.Sleep(10 * time.Millisecond)

	if _, err := q.Submit(context.Background(), "after-close", func(ctx context.Context) (interface{}, error) {
		return nil, nil
	}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("err = %v, want ErrQueueClosed", err)
	}
}
