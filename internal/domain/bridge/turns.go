package bridge

import (
	"context"
	"sync"
)

// Turns is the completion queue of one executing script. Asynchronous
// bridge calls post their callbacks here; the execution environment runs
// them one at a time after the current turn ends, so a callback never
// interrupts the script mid-call.
type Turns struct {
	mu       sync.Mutex
	queue    []func()
	inflight int
	signal   chan struct{}
}

// NewTurns creates an empty queue
func NewTurns() *Turns {
	return &Turns{signal: make(chan struct{}, 1)}
}

// expect registers an outstanding operation and returns the func that
// completes it. Completing twice is a no-op.
func (t *Turns) expect() func(fn func()) {
	t.mu.Lock()
	t.inflight++
	t.mu.Unlock()

	var once sync.Once
	return func(fn func()) {
		once.Do(func() {
			t.mu.Lock()
			t.inflight--
			if fn != nil {
				t.queue = append(t.queue, fn)
			}
			t.mu.Unlock()

			select {
			case t.signal <- struct{}{}:
			default:
			}
		})
	}
}

// Post queues fn for a later turn
func (t *Turns) Post(fn func()) {
	t.expect()(fn)
}

// Next blocks until a callback is ready and returns it. It returns false
// once nothing is queued or outstanding, or when ctx is done.
func (t *Turns) Next(ctx context.Context) (func(), bool) {
	for {
		t.mu.Lock()
		if len(t.queue) > 0 {
			fn := t.queue[0]
			t.queue[0] = nil
			t.queue = t.queue[1:]
			t.mu.Unlock()
			return fn, true
		}
		idle := t.inflight == 0
		t.mu.Unlock()
		if idle {
			return nil, false
		}

		select {
		case <-t.signal:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// Drain runs callbacks until the queue is idle or ctx is done
func (t *Turns) Drain(ctx context.Context) error {
	for {
		fn, ok := t.Next(ctx)
		if !ok {
			return ctx.Err()
		}
		fn()
	}
}

// Pending returns queued plus outstanding operations
func (t *Turns) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue) + t.inflight
}
