// Package scheduler provides the single-threaded "main loop plus worker
// pool" abstraction every component in this module is built against. The
// core never blocks and never calls back into a caller from an
// arbitrary goroutine: work posted to the main loop always runs there,
// serialized with every other main-loop callback, mirroring the
// cooperative event loop the display aggregator assumes it is running
// under.
package scheduler

import (
	"sync"
	"sync/atomic"
)

// Scheduler decouples "run this on the main loop" and "run this on a
// worker" from any particular concurrency implementation, so tests can
// swap in a synchronous scheduler and production code can swap in a
// goroutine-backed one without either side caring.
type Scheduler interface {
	// PostMain queues fn to run on the main loop. Safe to call from any
	// goroutine, including from inside another main-loop callback (fn
	// runs after the current callback returns).
	PostMain(fn func())

	// SpawnWorker runs fn on a worker goroutine. When fn returns, done
	// is posted to the main loop — done always runs on the main loop,
	// never on the worker goroutine, regardless of how SpawnWorker is
	// implemented.
	SpawnWorker(fn func(), done func())

	// OnMain reports whether the calling goroutine is currently
	// executing a callback dispatched by this scheduler's main loop.
	// Intended for assertions, not for control flow.
	OnMain() bool
}

// Loop is a goroutine-backed Scheduler: one goroutine drains a queue of
// main-loop callbacks (Run), and SpawnWorker launches a fresh goroutine
// per job — the same "cheap, unbounded, rely on OS scheduling" approach
// the frame-distribution code takes for its worker callbacks.
type Loop struct {
	mainQueue chan func()
	onMain    atomic.Bool
	closeOnce sync.Once
}

// NewLoop creates a Loop with the given main-queue depth.
func NewLoop(queueDepth int) *Loop {
	return &Loop{mainQueue: make(chan func(), queueDepth)}
}

func (l *Loop) PostMain(fn func()) {
	l.mainQueue <- fn
}

func (l *Loop) SpawnWorker(fn func(), done func()) {
	go func() {
		fn()
		if done != nil {
			l.PostMain(done)
		}
	}()
}

func (l *Loop) OnMain() bool {
	return l.onMain.Load()
}

// Run drains the main queue until it is closed via Close. Intended to be
// called once, from the goroutine that owns the event loop.
func (l *Loop) Run() {
	l.onMain.Store(true)
	defer l.onMain.Store(false)
	for fn := range l.mainQueue {
		fn()
	}
}

// Close stops Run once the queue drains. Idempotent.
func (l *Loop) Close() {
	l.closeOnce.Do(func() { close(l.mainQueue) })
}

// Inline is a synchronous Scheduler: PostMain and SpawnWorker both run fn
// immediately, on the calling goroutine. Useful in tests that want
// deterministic, single-threaded execution of code written against the
// Scheduler interface.
type Inline struct{}

func (Inline) PostMain(fn func()) { fn() }

func (Inline) SpawnWorker(fn func(), done func()) {
	fn()
	if done != nil {
		done()
	}
}

func (Inline) OnMain() bool { return true }
