// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/logiface"
)

// Result is the value a [Promise] settles with.
type Result = any

// PromiseState is the settlement state of a [Promise].
type PromiseState int32

const (
	// Pending is the initial state, neither fulfilled nor rejected.
	Pending PromiseState = iota
	// Fulfilled means the promise settled with a value.
	Fulfilled
	// Rejected means the promise settled with a reason.
	Rejected
)

func (s PromiseState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ErrChainingCycle is the rejection reason of a promise resolved with itself.
var ErrChainingCycle = errors.New("eventloop: chaining cycle detected for promise")

// ResolveFunc fulfills a promise with a value, or adopts the state of a
// *Promise. Only the first call to either of a promise's resolving functions
// has an effect. Can be called from any goroutine.
type ResolveFunc func(Result)

// RejectFunc rejects a promise with a reason. Only the first call to either
// of a promise's resolving functions has an effect. Can be called from any
// goroutine.
type RejectFunc func(Result)

// Promise is a loop-owned promise. Reactions registered via [Promise.Then]
// always run as microtasks on the loop goroutine, in registration order.
type Promise struct {
	result    Result
	loop      *Loop
	done      chan struct{}
	reactions []reaction
	id        uint64
	mu        sync.Mutex
	state     PromiseState
	// alreadyResolved is set by the first call to a resolving function
	alreadyResolved bool
	handled         bool
}

// reaction is a pending Then registration. A nil target discards the result.
type reaction struct {
	onFulfilled func(Result) Result
	onRejected  func(Result) Result
	target      *Promise
}

// thrown marks a reaction result as a rejection, see [Throw].
type thrown struct {
	reason Result
}

// Throw wraps reason such that returning it from a reaction passed to
// [Promise.Then] rejects the derived promise with reason.
func Throw(reason Result) Result {
	return thrown{reason: reason}
}

var promiseIDCounter atomic.Uint64

// NewPromise creates a pending promise, along with its resolving functions.
//
// Example:
//
//	p, resolve, _ := loop.NewPromise()
//	_ = loop.AfterFunc(time.Second, func() { resolve("done") })
func (l *Loop) NewPromise() (*Promise, ResolveFunc, RejectFunc) {
	p := l.newPromise()
	resolve := func(value Result) {
		if p.claim() {
			p.resolve(value)
		}
	}
	reject := func(reason Result) {
		if p.claim() {
			p.reject(reason)
		}
	}
	return p, resolve, reject
}

// Resolved returns a promise resolved with value (which may be a *Promise).
func (l *Loop) Resolved(value Result) *Promise {
	if p, ok := value.(*Promise); ok && p.loop == l {
		return p
	}
	p := l.newPromise()
	p.alreadyResolved = true
	p.resolve(value)
	return p
}

// Rejected returns a promise rejected with reason.
func (l *Loop) Rejected(reason Result) *Promise {
	p := l.newPromise()
	p.alreadyResolved = true
	p.reject(reason)
	return p
}

func (l *Loop) newPromise() *Promise {
	return &Promise{
		loop: l,
		id:   promiseIDCounter.Add(1),
		done: make(chan struct{}),
	}
}

// ID returns a process-unique identifier for the promise.
func (p *Promise) ID() uint64 {
	return p.id
}

// State returns the current state. Safe from any goroutine.
func (p *Promise) State() PromiseState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Result returns the value or reason, and nil while pending.
func (p *Promise) Result() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

// Value returns the fulfillment value, or nil unless fulfilled.
func (p *Promise) Value() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Fulfilled {
		return p.result
	}
	return nil
}

// Reason returns the rejection reason, or nil unless rejected.
func (p *Promise) Reason() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Rejected {
		return p.result
	}
	return nil
}

// Done returns a channel that is closed once the promise settles, allowing
// goroutines other than the loop to wait for it.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Then registers reactions, returning the promise derived from them.
//
//   - A nil reaction passes the value or reason through
//   - A reaction's return value resolves the derived promise (a *Promise is adopted)
//   - Returning [Throw] (or panicking) rejects the derived promise
//
// Attaching any reaction marks the promise as handled.
func (p *Promise) Then(onFulfilled, onRejected func(Result) Result) *Promise {
	child := p.loop.newPromise()
	child.alreadyResolved = true
	p.addReaction(reaction{
		onFulfilled: onFulfilled,
		onRejected:  onRejected,
		target:      child,
	})
	return child
}

// Catch is shorthand for Then(nil, onRejected).
func (p *Promise) Catch(onRejected func(Result) Result) *Promise {
	return p.Then(nil, onRejected)
}

// Finally runs onFinally after settlement, passing the outcome through.
func (p *Promise) Finally(onFinally func()) *Promise {
	return p.Then(
		func(value Result) Result {
			if onFinally != nil {
				onFinally()
			}
			return value
		},
		func(reason Result) Result {
			if onFinally != nil {
				onFinally()
			}
			return Throw(reason)
		},
	)
}

// Observe calls fn on the loop goroutine once the promise settles, without
// deriving a promise. It marks the promise as handled.
func (p *Promise) Observe(fn func(state PromiseState, result Result)) {
	p.addReaction(reaction{
		onFulfilled: func(value Result) Result {
			fn(Fulfilled, value)
			return nil
		},
		onRejected: func(reason Result) Result {
			fn(Rejected, reason)
			return nil
		},
	})
}

// claim consumes the resolving functions, reporting if the caller won.
func (p *Promise) claim() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.alreadyResolved {
		return false
	}
	p.alreadyResolved = true
	return true
}

func (p *Promise) addReaction(r reaction) {
	p.mu.Lock()
	p.handled = true
	if p.state == Pending {
		p.reactions = append(p.reactions, r)
		p.mu.Unlock()
		return
	}
	state, result := p.state, p.result
	p.mu.Unlock()
	p.schedule(r, state, result)
}

func (p *Promise) resolve(value Result) {
	if other, ok := value.(*Promise); ok {
		if other == p {
			p.reject(ErrChainingCycle)
			return
		}
		// adopt
		other.addReaction(reaction{target: p})
		return
	}
	p.settle(Fulfilled, value)
}

func (p *Promise) reject(reason Result) {
	p.settle(Rejected, reason)
}

func (p *Promise) settle(state PromiseState, result Result) {
	p.mu.Lock()
	if p.state != Pending {
		p.mu.Unlock()
		return
	}
	p.state = state
	p.result = result
	reactions := p.reactions
	p.reactions = nil
	handled := p.handled
	close(p.done)
	p.mu.Unlock()

	for _, r := range reactions {
		p.schedule(r, state, result)
	}

	if state == Rejected && !handled {
		p.loop.trackRejection(p)
	}
}

// schedule queues a reaction as a microtask.
func (p *Promise) schedule(r reaction, state PromiseState, result Result) {
	if err := p.loop.ScheduleMicrotask(func() {
		runReaction(r, state, result)
	}); err != nil {
		p.loop.logger.Debug().
			Uint64("promise", p.id).
			Str("category", "promise").
			Err(err).
			Log("promise reaction dropped")
	}
}

func runReaction(r reaction, state PromiseState, result Result) {
	fn := r.onFulfilled
	if state == Rejected {
		fn = r.onRejected
	}

	if fn == nil {
		if r.target == nil {
			return
		}
		if state == Fulfilled {
			r.target.resolve(result)
		} else {
			r.target.reject(result)
		}
		return
	}

	defer func() {
		if v := recover(); v != nil {
			if r.target != nil {
				r.target.reject(PanicError{Value: v})
			}
		}
	}()

	res := fn(result)
	if r.target == nil {
		return
	}
	if t, ok := res.(thrown); ok {
		r.target.reject(t.reason)
		return
	}
	r.target.resolve(res)
}

// trackRejection queues p for the unhandled rejection check, which runs as a
// macrotask, after the microtasks of the current macrotask.
func (l *Loop) trackRejection(p *Promise) {
	l.rejMu.Lock()
	l.rejections = append(l.rejections, p)
	if l.rejectionCheckScheduled {
		l.rejMu.Unlock()
		return
	}
	l.rejectionCheckScheduled = true
	l.rejMu.Unlock()

	if err := l.Submit(l.checkUnhandledRejections); err != nil {
		l.rejMu.Lock()
		l.rejectionCheckScheduled = false
		l.rejMu.Unlock()
	}
}

func (l *Loop) checkUnhandledRejections() {
	l.rejMu.Lock()
	candidates := l.rejections
	l.rejections = nil
	l.rejectionCheckScheduled = false
	l.rejMu.Unlock()

	for _, p := range candidates {
		p.mu.Lock()
		handled, reason := p.handled, p.result
		p.mu.Unlock()
		if handled {
			continue
		}
		l.reportUnhandled(reason)
	}
}

// reportUnhandled passes reason to the configured handler. Without one, it
// is logged as a warning.
func (l *Loop) reportUnhandled(reason Result) {
	l.metrics.inc(metricUnhandled)
	level := logiface.LevelWarning
	if l.onUnhandled != nil {
		level = logiface.LevelDebug
	}
	l.logger.Build(level).
		Uint64("loop", l.id).
		Str("category", "promise").
		Err(reasonToError(reason)).
		Log("unhandled promise rejection")
	if l.onUnhandled != nil {
		l.safeExecute(func() { l.onUnhandled(reason) }, "rejection handler")
	}
}
