// Package queue implements the single-threaded task queue that backs a
// streaming session. Every state transition, every topology/offset
// change, and every scheduled timeout funnels through this queue so
// that session state is only ever touched by one goroutine at a time.
package queue

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/arloliu/nakasess/internal/clock"
	"github.com/arloliu/nakasess/types"
)

// maxIdleWait bounds how long Run will block waiting for a task before
// re-checking isDead. Without a ceiling a session whose isDead callback
// started returning true while the queue was otherwise empty could block
// forever on an unscheduled task.
const maxIdleWait = time.Hour

// Task is a unit of work run on the queue's single consumer goroutine.
type Task func()

// Option configures a Queue.
type Option func(*Queue)

// WithTimer overrides the real wall clock used for Schedule and the
// idle-wait loop in Run. Tests inject a fake types.Timer so a
// deadline-bounded caller can be driven without a real sleep.
func WithTimer(timer types.Timer) Option {
	return func(q *Queue) { q.timer = timer }
}

// Queue is a mutex-protected FIFO of Tasks, with support for delayed
// scheduling. It has exactly one consumer: the goroutine running Run.
// Add and Schedule may be called from any goroutine, including from
// within a Task running on the queue itself.
type Queue struct {
	mu     sync.Mutex
	tasks  *list.List
	wake   chan struct{}
	closed bool
	timer  types.Timer
}

// New creates an empty Queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		tasks: list.New(),
		wake:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.timer == nil {
		q.timer = clock.RealClock{}
	}

	return q
}

// Add appends task to the end of the queue and wakes the consumer.
func (q *Queue) Add(task Task) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.tasks.PushBack(task)
	q.mu.Unlock()

	q.notify()
}

// Schedule arranges for task to be added to the queue after delay has
// elapsed, using the queue's configured Timer (the real clock by
// default). It returns a cancel func the caller may call to cancel the
// scheduled task before it fires; calling it after the task has already
// fired has no effect.
func (q *Queue) Schedule(task Task, delay time.Duration) func() bool {
	return q.timer.AfterFunc(delay, func() {
		q.Add(task)
	})
}

// Close marks the queue closed. Tasks already queued are still
// delivered to Run, but Add silently drops anything submitted after
// Close returns. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.notify()
}

func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// pop removes and returns the first task, along with whether one was
// found.
func (q *Queue) pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	front := q.tasks.Front()
	if front == nil {
		return nil, false
	}

	q.tasks.Remove(front)

	return front.Value.(Task), true
}

// Run drains the queue on the calling goroutine until ctx is cancelled
// or isDead returns true while the queue is empty. isDead is consulted
// only when Run is about to block, so a burst of queued tasks always
// runs to completion even if isDead would already return true.
//
// Run is meant to be the body of a session's single dedicated goroutine;
// calling it from more than one goroutine concurrently defeats the
// single-consumer guarantee the rest of this package relies on.
func (q *Queue) Run(ctx context.Context, isDead func() bool) {
	for {
		task, ok := q.pop()
		if ok {
			task()
			continue
		}

		if isDead != nil && isDead() {
			return
		}

		idle := make(chan struct{}, 1)
		stop := q.timer.AfterFunc(maxIdleWait, func() {
			select {
			case idle <- struct{}{}:
			default:
			}
		})
		select {
		case <-ctx.Done():
			stop()
			return
		case <-q.wake:
			stop()
		case <-idle:
		}
	}
}
