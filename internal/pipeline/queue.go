package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrEmpty is returned by Get when no task arrived within the timeout.
	ErrEmpty = errors.New("queue empty")
	// ErrClosed is returned by Put after Close.
	ErrClosed = errors.New("queue closed")
)

// Queue is a bounded FIFO of tasks. Work items are tracked until Done so Join
// can wait for the backlog to be processed; shutdown markers are not tracked.
type Queue struct {
	tasks chan Task

	mu         sync.Mutex
	unfinished int
	idle       chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// NewQueue returns a queue holding at most capacity tasks. A capacity below
// one is treated as one.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		tasks:  make(chan Task, capacity),
		idle:   idle,
		closed: make(chan struct{}),
	}
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.tasks) }

// Len returns the number of queued tasks.
func (q *Queue) Len() int { return len(q.tasks) }

// Unfinished returns the number of work items put but not yet marked done.
func (q *Queue) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}

// Put enqueues item, blocking while the queue is full.
func (q *Queue) Put(ctx context.Context, item WorkItem) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}
	q.add(1)
	select {
	case q.tasks <- Task{Kind: TaskWork, Item: item}:
		return nil
	case <-ctx.Done():
		q.add(-1)
		return ctx.Err()
	case <-q.closed:
		q.add(-1)
		return ErrClosed
	}
}

// PutShutdown enqueues one shutdown marker. Markers bypass Close so a closed
// queue can still release its workers.
func (q *Queue) PutShutdown(ctx context.Context) error {
	select {
	case q.tasks <- Task{Kind: TaskShutdown}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get waits up to timeout for the next task. It returns ErrEmpty when the
// timeout elapses and ctx.Err() when ctx is done.
func (q *Queue) Get(ctx context.Context, timeout time.Duration) (Task, error) {
	select {
	case task := <-q.tasks:
		return task, nil
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case task := <-q.tasks:
		return task, nil
	case <-timer.C:
		return Task{}, ErrEmpty
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
}

// Done marks one work item as processed. It panics when called more times
// than Put succeeded.
func (q *Queue) Done() {
	q.add(-1)
}

func (q *Queue) add(delta int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	prev := q.unfinished
	q.unfinished += delta
	switch {
	case q.unfinished < 0:
		q.unfinished = prev
		panic("pipeline: Done called more times than Put")
	case prev == 0 && q.unfinished > 0:
		q.idle = make(chan struct{})
	case prev > 0 && q.unfinished == 0:
		close(q.idle)
	}
}

// Join blocks until every work item put so far has been marked done.
func (q *Queue) Join(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects further Put calls. Queued tasks remain available to Get.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}
