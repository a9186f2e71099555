package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/West13lue/stock-cbd-manager-sub000/config"
	"github.com/sirupsen/logrus"
)

var ErrQueueClosed = errors.New("task queue closed")

// Task is one unit of mutating work. Its result resolves before the next
// submitted task starts.
type Task func(ctx context.Context) (interface{}, error)

// TaskResult carries a finished task's outcome.
type TaskResult struct {
	Value interface{}
	Err   error
}

type queuedTask struct {
	name   string
	ctx    context.Context
	task   Task
	result chan TaskResult
}

// SerialTaskQueue executes tasks strictly one at a time in submission order.
// A failing task resolves its own result and never blocks the tasks behind
// it. All mutating operations against a shop's stock funnel through one
// queue, so no two of them interleave.
type SerialTaskQueue struct {
	Logger *logrus.Logger

	tasks chan queuedTask

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

func NewSerialTaskQueue(logger *logrus.Logger, bufferSize int) *SerialTaskQueue {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if logger == nil {
		logger = config.GetLogger()
	}
	return &SerialTaskQueue{
		Logger: logger,
		tasks:  make(chan queuedTask, bufferSize),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run drains the queue until ctx is cancelled or Close is called. Tasks
// already accepted keep their ordering guarantee; tasks still queued when the
// runner stops resolve with ErrQueueClosed.
func (q *SerialTaskQueue) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			q.drain()
			return
		case <-q.closed:
			q.drain()
			return
		case item := <-q.tasks:
			item.result <- q.execute(item)
		}
	}
}

func (q *SerialTaskQueue) execute(item queuedTask) (result TaskResult) {
	// a panicking task must not take the runner down with it
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("task panic: %v", r)
			config.LogError(q.Logger, "workflow", "SerialTaskQueue", "Task panicked", item.name, err)
			result = TaskResult{Err: err}
		}
	}()
	value, err := item.task(item.ctx)
	return TaskResult{Value: value, Err: err}
}

func (q *SerialTaskQueue) drain() {
	for {
		select {
		case item := <-q.tasks:
			item.result <- TaskResult{Err: ErrQueueClosed}
		default:
			return
		}
	}
}

// Submit enqueues a task and blocks until it has run. Tasks submitted from
// concurrent callers execute in the order Submit accepted them.
func (q *SerialTaskQueue) Submit(ctx context.Context, name string, task Task) (interface{}, error) {
	item := queuedTask{
		name:   name,
		ctx:    ctx,
		task:   task,
		result: make(chan TaskResult, 1),
	}
	select {
	case <-q.closed:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case q.tasks <- item:
	}
	select {
	case result := <-item.result:
		return result.Value, result.Err
	case <-q.done:
		return nil, ErrQueueClosed
	}
}

// Close stops accepting tasks. Pending tasks resolve with ErrQueueClosed
// once the runner drains.
func (q *SerialTaskQueue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}
