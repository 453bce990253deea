// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
)

// hostTaskGrace bounds how long shutdown waits for host tasks that are still
// running, before draining the queues regardless.
const hostTaskGrace = 100 * time.Millisecond

// Loop is a single-owner event loop.
//
// The goroutine calling [Loop.Run] is the only goroutine that executes tasks,
// so code running inside a task holds exclusive access to whatever the loop
// guards.
type Loop struct {
	_ [0]func()

	logger      *logiface.Logger[logiface.Event]
	onUnhandled RejectionHandler
	metrics     *loopMetrics

	hostCtx    context.Context
	hostCancel context.CancelFunc

	wake     chan struct{}
	loopDone chan struct{}
	idleCh   chan struct{}

	// rejections are candidates for the next unhandled rejection check
	rejections []*Promise

	tasks      taskQueue
	microtasks taskQueue

	microtaskBudget int

	id uint64

	state fastState

	// outstanding counts queued macrotasks, queued microtasks and live host tasks
	outstanding atomic.Int64

	loopGoroutineID atomic.Uint64

	hostWg sync.WaitGroup

	stopOnce sync.Once
	doneOnce sync.Once

	// mu guards tasks, microtasks, and the transition to StateTerminated
	mu sync.Mutex
	// hostMu orders host task registration against shutdown
	hostMu sync.Mutex
	idleMu sync.Mutex
	rejMu  sync.Mutex

	rejectionCheckScheduled bool
}

var loopIDCounter atomic.Uint64

// New creates a new event loop. It does nothing until [Loop.Run] is called.
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	hostCtx, hostCancel := context.WithCancel(context.Background())

	loop := &Loop{
		id:              loopIDCounter.Add(1),
		logger:          cfg.logger,
		onUnhandled:     cfg.onUnhandled,
		microtaskBudget: cfg.microtaskBudget,
		hostCtx:         hostCtx,
		hostCancel:      hostCancel,
		wake:            make(chan struct{}, 1),
		loopDone:        make(chan struct{}),
		idleCh:          make(chan struct{}),
	}
	if cfg.metricsEnabled {
		loop.metrics = &loopMetrics{}
	}

	return loop, nil
}

// Run runs the event loop on the calling goroutine, and blocks until it
// terminates (via Shutdown(), Close(), or ctx cancellation).
//
// Returns ctx.Err() if the context ended the loop, nil otherwise.
func (l *Loop) Run(ctx context.Context) error {
	if l.isLoopThread() {
		return ErrReentrantRun
	}

	if !l.state.TryTransition(StateAwake, StateRunning) {
		if l.state.Load() == StateTerminated {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}

	defer l.markDone()

	l.loopGoroutineID.Store(getGoroutineID())
	defer l.loopGoroutineID.Store(0)

	l.logger.Debug().
		Uint64("loop", l.id).
		Log("event loop started")

	return l.run(ctx)
}

// Done returns a channel that is closed once the loop has fully terminated.
func (l *Loop) Done() <-chan struct{} {
	return l.loopDone
}

// Shutdown gracefully shuts down the event loop.
//
// Timers that have not fired are abandoned, host tasks are signalled via
// their context, and tasks that were already queued still execute. Shutdown
// blocks until termination completes or ctx expires.
func (l *Loop) Shutdown(ctx context.Context) error {
	result := ErrLoopTerminated
	l.stopOnce.Do(func() {
		result = l.shutdownImpl(ctx)
	})
	return result
}

func (l *Loop) shutdownImpl(ctx context.Context) error {
	previous, ok := l.state.beginTermination()
	if !ok {
		return ErrLoopTerminated
	}

	l.logger.Debug().
		Uint64("loop", l.id).
		Str("category", "shutdown").
		Stringer("from", previous).
		Log("event loop shutdown requested")

	if previous == StateAwake {
		// never ran, so there is no loop goroutine to drain on
		l.terminateUnstarted()
		return nil
	}

	l.wakeup()

	if l.isLoopThread() {
		// the drain happens once the current task returns
		return nil
	}

	select {
	case <-l.loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close immediately terminates the event loop without waiting for it to stop.
// Queued tasks are still drained by the loop goroutine.
func (l *Loop) Close() error {
	previous, ok := l.state.beginTermination()
	if !ok {
		return ErrLoopTerminated
	}
	if previous == StateAwake {
		l.terminateUnstarted()
		return nil
	}
	l.wakeup()
	return nil
}

// terminateUnstarted discards queued work of a loop that was never run.
func (l *Loop) terminateUnstarted() {
	l.hostCancel()
	l.mu.Lock()
	l.state.Store(StateTerminated)
	var dropped int
	for {
		if _, ok := l.tasks.Pop(); !ok {
			break
		}
		dropped++
	}
	for {
		if _, ok := l.microtasks.Pop(); !ok {
			break
		}
		dropped++
	}
	l.mu.Unlock()
	for range dropped {
		l.finishWork()
	}
	l.markDone()
}

func (l *Loop) markDone() {
	l.doneOnce.Do(func() {
		close(l.loopDone)
	})
}

// run is the main loop body, executed on the loop goroutine.
func (l *Loop) run(ctx context.Context) error {
	// wake the loop on cancellation
	ctxDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			l.wakeup()
		case <-ctxDone:
		}
	}()
	defer close(ctxDone)

	for {
		if ctx.Err() != nil {
			if _, ok := l.state.beginTermination(); ok {
				l.logger.Debug().
					Uint64("loop", l.id).
					Str("category", "shutdown").
					Err(ctx.Err()).
					Log("event loop context done")
			}
			l.shutdown()
			return ctx.Err()
		}

		if l.state.Load() == StateTerminating {
			l.shutdown()
			return nil
		}

		if l.drainMicrotasks() {
			// budget exhausted, re-check termination before continuing
			continue
		}

		if task, ok := l.popTask(); ok {
			l.runTask(task)
			continue
		}

		l.sleep(ctx)
	}
}

// sleep blocks until woken, unless work arrived in the meantime.
func (l *Loop) sleep(ctx context.Context) {
	if !l.state.TryTransition(StateRunning, StateSleeping) {
		return
	}
	if !l.hasWork() {
		select {
		case <-l.wake:
		case <-ctx.Done():
		}
	}
	l.state.TryTransition(StateSleeping, StateRunning)
}

// shutdown drains the loop, then moves it to StateTerminated.
func (l *Loop) shutdown() {
	l.hostMu.Lock()
	l.hostCancel()
	l.hostMu.Unlock()

	// give host tasks that were mid-flight a chance to submit their results
	hostDone := make(chan struct{})
	go func() {
		l.hostWg.Wait()
		close(hostDone)
	}()
	select {
	case <-hostDone:
	case <-time.After(hostTaskGrace):
		l.logger.Warning().
			Uint64("loop", l.id).
			Str("category", "shutdown").
			Log("host tasks still running at shutdown")
	}

	for {
		for l.drainMicrotasks() {
		}
		if task, ok := l.popTask(); ok {
			l.runTask(task)
			continue
		}
		l.mu.Lock()
		if l.tasks.Len() == 0 && l.microtasks.Len() == 0 {
			l.state.Store(StateTerminated)
			l.mu.Unlock()
			break
		}
		l.mu.Unlock()
	}

	l.logger.Debug().
		Uint64("loop", l.id).
		Str("category", "shutdown").
		Log("event loop terminated")
}

// Submit enqueues a macrotask. Safe to call from any goroutine.
//
// State Policy during shutdown:
//   - StateTerminated: returns ErrLoopTerminated
//   - StateTerminating: ALLOWS submission, the loop drains before terminating
func (l *Loop) Submit(fn func()) error {
	if fn == nil {
		return nil
	}
	l.mu.Lock()
	if l.state.Load() == StateTerminated {
		l.mu.Unlock()
		return ErrLoopTerminated
	}
	l.outstanding.Add(1)
	l.tasks.Push(fn)
	l.mu.Unlock()
	l.wakeup()
	return nil
}

// ScheduleMicrotask enqueues a microtask (pending job). Microtasks run after
// the current macrotask, before the next one, in FIFO order.
// Safe to call from any goroutine.
func (l *Loop) ScheduleMicrotask(fn func()) error {
	if fn == nil {
		return nil
	}
	l.mu.Lock()
	if l.state.Load() == StateTerminated {
		l.mu.Unlock()
		return ErrLoopTerminated
	}
	l.outstanding.Add(1)
	l.microtasks.Push(fn)
	l.mu.Unlock()
	l.wakeup()
	return nil
}

// RunMicrotask executes exactly one pending microtask, and reports whether
// one ran. It must be called from within a task (on the loop goroutine),
// otherwise it does nothing and returns false. It never blocks.
func (l *Loop) RunMicrotask() bool {
	if !l.isLoopThread() {
		return false
	}
	fn, ok := l.popMicrotask()
	if !ok {
		return false
	}
	l.runMicrotask(fn)
	return true
}

// InLoop reports whether the caller is executing on the loop goroutine, i.e.
// whether it currently holds exclusive access.
func (l *Loop) InLoop() bool {
	return l.isLoopThread()
}

// State returns the current loop state.
func (l *Loop) State() LoopState {
	return l.state.Load()
}

// Metrics returns a snapshot of the loop statistics. It returns the zero
// value unless the loop was created [WithMetrics].
func (l *Loop) Metrics() Metrics {
	return l.metrics.snapshot()
}

// Logger returns the logger the loop was configured with, which may be nil.
func (l *Loop) Logger() *logiface.Logger[logiface.Event] {
	return l.logger
}

// Idle blocks until no macrotask, microtask or host task is outstanding, ctx
// is done, or the loop terminates with work still outstanding (in which case
// it returns ErrLoopTerminated). It must not be called from the loop
// goroutine.
func (l *Loop) Idle(ctx context.Context) error {
	if l.isLoopThread() {
		return ErrIdleFromLoop
	}
	for {
		l.idleMu.Lock()
		if l.outstanding.Load() == 0 {
			l.idleMu.Unlock()
			return nil
		}
		ch := l.idleCh
		l.idleMu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		case <-l.loopDone:
			select {
			case <-ch:
			case <-time.After(hostTaskGrace):
				if l.outstanding.Load() != 0 {
					return ErrLoopTerminated
				}
			}
		}
	}
}

// Outstanding returns the number of queued tasks plus live host tasks.
func (l *Loop) Outstanding() int64 {
	return l.outstanding.Load()
}

func (l *Loop) wakeup() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) hasWork() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tasks.Len() != 0 || l.microtasks.Len() != 0
}

func (l *Loop) popTask() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tasks.Pop()
}

func (l *Loop) popMicrotask() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.microtasks.Pop()
}

// finishWork marks one unit of outstanding work as done, waking idle waiters
// when none remains.
func (l *Loop) finishWork() {
	if l.outstanding.Add(-1) == 0 {
		l.idleMu.Lock()
		close(l.idleCh)
		l.idleCh = make(chan struct{})
		l.idleMu.Unlock()
	}
}

// runTask executes a macrotask, followed by a full microtask drain.
func (l *Loop) runTask(fn func()) {
	start := time.Now()
	l.safeExecute(fn, "task")
	for l.drainMicrotasks() {
	}
	l.metrics.recordTask(time.Since(start))
	l.finishWork()
}

func (l *Loop) runMicrotask(fn func()) {
	l.safeExecute(fn, "microtask")
	l.metrics.inc(metricMicrotasks)
	l.finishWork()
}

// drainMicrotasks runs up to microtaskBudget microtasks, returning true if
// the budget was exhausted with microtasks still pending.
func (l *Loop) drainMicrotasks() bool {
	for range l.microtaskBudget {
		fn, ok := l.popMicrotask()
		if !ok {
			return false
		}
		l.runMicrotask(fn)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.microtasks.Len() != 0
}

// safeExecute executes fn with panic recovery.
func (l *Loop) safeExecute(fn func(), kind string) {
	defer func() {
		if r := recover(); r != nil {
			l.metrics.inc(metricPanics)
			l.logger.Err().
				Uint64("loop", l.id).
				Str("kind", kind).
				Err(PanicError{Value: r}).
				Log("eventloop: task panicked")
		}
	}()
	fn()
}

// isLoopThread checks if we're on the loop goroutine.
func (l *Loop) isLoopThread() bool {
	loopID := l.loopGoroutineID.Load()
	if loopID == 0 {
		return false
	}
	return getGoroutineID() == loopID
}

// getGoroutineID returns the current goroutine's ID, parsed from the header
// of its stack trace ("goroutine 123 [running]:").
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
