package portal

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrQueueClosed is returned for toggles submitted after Close.
var ErrQueueClosed = errors.New("toggle queue closed")

type toggle struct {
	class  Class
	active bool
	done   chan error
}

// ToggleQueue runs class visibility changes one at a time, in submission
// order. The preferences form breaks when posted concurrently.
type ToggleQueue struct {
	set func(context.Context, Class, bool) error

	mu      sync.Mutex
	pending []toggle
	wake    chan struct{}
	closed  bool
	stopped chan struct{}
}

// NewToggleQueue starts the worker. It stops when ctx ends or on Close.
func NewToggleQueue(ctx context.Context, set func(context.Context, Class, bool) error) *ToggleQueue {
	q := &ToggleQueue{
		set:     set,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go q.run(ctx)
	return q
}

// Submit queues a change. The channel receives its result.
func (q *ToggleQueue) Submit(c Class, active bool) <-chan error {
	done := make(chan error, 1)
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		done <- ErrQueueClosed
		return done
	}
	q.pending = append(q.pending, toggle{class: c, active: active, done: done})
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return done
}

// Close stops accepting toggles and waits for queued ones to finish.
func (q *ToggleQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.wake)
	}
	q.mu.Unlock()
	<-q.stopped
}

func (q *ToggleQueue) next() (toggle, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return toggle{}, false
	}
	t := q.pending[0]
	q.pending = q.pending[1:]
	return t, true
}

func (q *ToggleQueue) run(ctx context.Context) {
	defer close(q.stopped)
	defer q.fail(ErrQueueClosed)
	for {
		for {
			t, ok := q.next()
			if !ok {
				break
			}
			if err := ctx.Err(); err != nil {
				t.done <- err
				continue
			}
			t.done <- q.set(ctx, t.class, t.active)
		}
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.closed = true
			q.mu.Unlock()
			return
		case _, ok := <-q.wake:
			if !ok {
				// drain what was queued before Close
				for t, ok := q.next(); ok; t, ok = q.next() {
					t.done <- q.set(ctx, t.class, t.active)
				}
				return
			}
		}
	}
}

func (q *ToggleQueue) fail(err error) {
	for t, ok := q.next(); ok; t, ok = q.next() {
		t.done <- err
	}
}
