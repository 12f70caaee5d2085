// Package loop implements the bridge between background goroutines and the
// single-threaded simulation tick that owns all shared application state.
//
// Background work never touches loop-owned state directly; it hands a closure
// to Post, and the owning goroutine executes it inside its next Tick with
// exclusive access. Posted closures run in FIFO order per caller; there is no
// cross-caller ordering guarantee beyond enqueue order.
package loop

import (
	"context"
	"sync"
)

// Loop is the main-thread injection primitive. The zero value is not usable;
// construct with New.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	ticks uint64
	// ticked is closed and replaced on every Tick so waiters can observe
	// frame progress without polling.
	ticked chan struct{}
}

// New creates a Loop.
func New() *Loop {
	return &Loop{ticked: make(chan struct{})}
}

// Post queues fn for execution on the next Tick. Safe to call from any
// goroutine, including from inside a closure already running on the tick (it
// will then run one tick later).
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
}

// Tick drains the queue, executing every closure posted before this call.
// Only the owning goroutine may call Tick.
func (l *Loop) Tick() {
	l.mu.Lock()
	batch := l.queue
	l.queue = nil
	l.ticks++
	ticked := l.ticked
	l.ticked = make(chan struct{})
	l.mu.Unlock()

	close(ticked)

	for _, fn := range batch {
		fn()
	}
}

// Ticks returns the number of completed ticks.
func (l *Loop) Ticks() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.ticks
}

// AwaitTicks blocks the calling goroutine until n further ticks complete or
// ctx is done. Background pollers use it as a backoff measured in frames
// rather than wall time.
func (l *Loop) AwaitTicks(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		l.mu.Lock()
		ticked := l.ticked
		l.mu.Unlock()

		select {
		case <-ticked:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}
