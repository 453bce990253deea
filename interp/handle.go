// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package interp

import (
	"context"
	"errors"
	"path/filepath"
	"runtime/debug"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/joeycumines/go-jsbridge/eventloop"
	"github.com/joeycumines/logiface"
)

// strictPrologue is prepended to strict mode sources, on the same line, so
// line numbers are unaffected.
const strictPrologue = `"use strict";`

// Handle owns one interpreter instance. The interpreter is guarded by the
// loop: every method that touches it must be called from a task running on
// the loop goroutine, or go through [Handle.Do].
type Handle struct {
	loop     *eventloop.Loop
	rt       *goja.Runtime
	require  *require.RequireModule
	logger   *logiface.Logger[logiface.Event]
	reporter RejectionReporter

	promiseProto *goja.Object
	promiseKey   *goja.Symbol
	arrayFrom    goja.Callable

	// nativeRejections are rejected interpreter promises without handlers,
	// pending the next check
	nativeRejections []*goja.Promise

	rejectionCheckScheduled bool
}

// EvalOptions control how [Handle.Evaluate] treats a source.
type EvalOptions struct {
	// Module evaluates the source as a CommonJS module, with require,
	// module, and exports in scope. The result is module.exports.
	Module bool

	// Strict evaluates the source in strict mode.
	Strict bool

	// ExpectPromise reports a promise (or thenable) result as
	// [Outcome.Promise].
	ExpectPromise bool
}

// Outcome is the result of a successful evaluation. Exactly one of Value
// and Promise is set.
type Outcome struct {
	Value   goja.Value
	Promise GuestPromise
}

// IsPromise reports whether the evaluation produced a promise.
func (o Outcome) IsPromise() bool {
	return o.Promise != nil
}

// New creates an interpreter bound to loop, applying cfg before anything is
// evaluated. Configuration problems are returned as *ConfigError.
func New(loop *eventloop.Loop, cfg Config, opts ...Option) (*Handle, error) {
	if loop == nil {
		return nil, ErrNilLoop
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options, err := resolveHandleOptions(opts)
	if err != nil {
		return nil, err
	}

	rt := goja.New()
	if depth := cfg.maxCallDepth(); depth > 0 {
		rt.SetMaxCallStackSize(depth)
	}
	if cfg.GCThreshold > 0 {
		debug.SetMemoryLimit(cfg.GCThreshold)
	}

	h := &Handle{
		loop:       loop,
		rt:         rt,
		logger:     options.logger,
		reporter:   options.reporter,
		promiseKey: goja.NewSymbol("Promise.internal"),
	}
	if h.reporter == nil {
		h.reporter = h.logRejection
	}

	h.require = newRegistry(cfg).Enable(rt)

	arrayFrom, ok := goja.AssertFunction(rt.Get("Array").ToObject(rt).Get("from"))
	if !ok {
		return nil, errors.New("interp: Array.from is not callable")
	}
	h.arrayFrom = arrayFrom

	h.promiseProto = h.newPromisePrototype()
	rt.SetPromiseRejectionTracker(h.trackNativeRejection)

	h.logger.Debug().
		Int("max_call_depth", cfg.maxCallDepth()).
		Int64("gc_threshold", cfg.GCThreshold).
		Int("search_paths", len(cfg.SearchPaths)).
		Log("interpreter configured")

	return h, nil
}

// Loop returns the loop guarding the interpreter.
func (h *Handle) Loop() *eventloop.Loop {
	return h.loop
}

// Runtime returns the interpreter. It must only be used while holding the
// loop.
func (h *Handle) Runtime() *goja.Runtime {
	return h.rt
}

// Logger returns the configured logger, which may be nil.
func (h *Handle) Logger() *logiface.Logger[logiface.Event] {
	return h.logger
}

// Evaluate runs source, named name for stack traces and module resolution.
// Guest failures are returned as *GuestException, and never panic.
func (h *Handle) Evaluate(name, source string, opts EvalOptions) (Outcome, error) {
	if !h.loop.InLoop() {
		return Outcome{}, ErrNotInLoop
	}

	if opts.Strict {
		source = strictPrologue + source
	}

	var (
		value goja.Value
		err   error
	)
	if opts.Module {
		value, err = h.evaluateModule(name, source)
	} else {
		value, err = h.rt.RunScript(name, source)
	}
	if err != nil {
		ex := ToGuestException(err)
		h.logger.Debug().
			Str("category", "eval").
			Str("name", name).
			Err(ex).
			Log("evaluation failed")
		return Outcome{}, ex
	}

	if opts.ExpectPromise {
		if p, ok := h.AsPromise(value); ok {
			return Outcome{Promise: p}, nil
		}
	}
	return Outcome{Value: value}, nil
}

// evaluateModule wraps source in the CommonJS module function, and calls it.
func (h *Handle) evaluateModule(name, source string) (goja.Value, error) {
	wrapped := "(function(exports, require, module, __filename, __dirname) {" + source + "\n})"
	fnValue, err := h.rt.RunScript(name, wrapped)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, errors.New("interp: module wrapper is not callable")
	}

	module := h.rt.NewObject()
	exports := h.rt.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, err
	}

	_, err = fn(exports,
		exports,
		h.rt.Get("require"),
		module,
		h.rt.ToValue(name),
		h.rt.ToValue(filepath.Dir(name)),
	)
	if err != nil {
		return nil, err
	}
	return module.Get("exports"), nil
}

// Set installs a global, replacing any existing binding of the same name.
func (h *Handle) Set(name string, value any) error {
	if !h.loop.InLoop() {
		return ErrNotInLoop
	}
	return h.rt.Set(name, value)
}

// Require loads a module through the configured resolvers and loaders.
func (h *Handle) Require(name string) (goja.Value, error) {
	if !h.loop.InLoop() {
		return nil, ErrNotInLoop
	}
	v, err := h.require.Require(name)
	if err != nil {
		return nil, ToGuestException(err)
	}
	return v, nil
}

// ExecutePendingJob runs exactly one pending job, reporting whether one ran.
// It only does anything while holding the loop, and never blocks.
func (h *Handle) ExecutePendingJob() bool {
	return h.loop.RunMicrotask()
}

// Do runs fn with exclusive access to the interpreter, waiting for it to
// return. From the loop goroutine fn runs inline, otherwise it is submitted
// as a task. Guest exceptions escaping fn are returned as *GuestException.
//
// If ctx is done first, Do returns ctx.Err(), and fn may still run.
func (h *Handle) Do(ctx context.Context, fn func(rt *goja.Runtime) error) error {
	if h.loop.InLoop() {
		return h.call(fn)
	}

	result := make(chan error, 1)
	if err := h.loop.Submit(func() {
		result <- h.call(fn)
	}); err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) call(fn func(rt *goja.Runtime) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case *goja.StackOverflowError:
				err = ToGuestException(v)
			case *goja.InterruptedError:
				err = ToGuestException(v)
			default:
				err = eventloop.PanicError{Value: r}
			}
		}
	}()
	var fnErr error
	if ex := h.rt.Try(func() { fnErr = fn(h.rt) }); ex != nil {
		return ToGuestException(ex)
	}
	return fnErr
}

// Await waits, off the loop, for p to settle. The loop is not held while
// waiting. A rejection is returned as *GuestException.
//
// The returned value must only be used while holding the loop.
func (h *Handle) Await(ctx context.Context, p GuestPromise) (goja.Value, error) {
	if h.loop.InLoop() {
		return nil, ErrInLoop
	}

	type outcome struct {
		value goja.Value
		err   error
	}
	settled := make(chan outcome, 1)
	if err := h.Do(ctx, func(*goja.Runtime) error {
		p.subscribe(func(s Settlement) {
			if s.Rejected {
				settled <- outcome{err: exceptionFromValue(s.Value)}
				return
			}
			settled <- outcome{value: s.Value}
		})
		return nil
	}); err != nil {
		return nil, err
	}

	select {
	case o := <-settled:
		return o.value, o.err
	case <-h.loop.Done():
		// the loop can no longer settle it
		select {
		case o := <-settled:
			return o.value, o.err
		default:
			return nil, eventloop.ErrLoopTerminated
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe arranges for fn to be called once p settles, and marks a
// rejection of p as handled. It must be called while holding the loop, and
// fn runs on the loop.
func (h *Handle) Subscribe(p GuestPromise, fn func(Settlement)) {
	p.subscribe(fn)
}

// MarkHandled marks a rejection of p as handled, for hosts that consume the
// settlement synchronously via [GuestPromise.Poll]. It must be called while
// holding the loop.
func (h *Handle) MarkHandled(p GuestPromise) {
	p.subscribe(func(Settlement) {})
}

// ReportRejection passes an unhandled rejection reason to the configured
// reporter. It must be called while holding the loop.
func (h *Handle) ReportRejection(reason eventloop.Result) {
	h.reporter(exceptionFromValue(h.ToValue(reason)))
}

func (h *Handle) logRejection(err *GuestException) {
	h.logger.Err().
		Str("category", "promise").
		Err(err).
		Log("unhandled promise rejection")
}

// trackNativeRejection follows rejections of the interpreter's own promises,
// such as those returned by async functions.
func (h *Handle) trackNativeRejection(p *goja.Promise, op goja.PromiseRejectionOperation) {
	switch op {
	case goja.PromiseRejectionReject:
		h.nativeRejections = append(h.nativeRejections, p)
		if h.rejectionCheckScheduled {
			return
		}
		// after the microtasks of the current macrotask
		if err := h.loop.Submit(h.checkNativeRejections); err != nil {
			h.logger.Debug().
				Str("category", "promise").
				Err(err).
				Log("rejection check dropped")
			return
		}
		h.rejectionCheckScheduled = true

	case goja.PromiseRejectionHandle:
		for i, candidate := range h.nativeRejections {
			if candidate == p {
				h.nativeRejections = append(h.nativeRejections[:i], h.nativeRejections[i+1:]...)
				break
			}
		}
	}
}

func (h *Handle) checkNativeRejections() {
	candidates := h.nativeRejections
	h.nativeRejections = nil
	h.rejectionCheckScheduled = false
	for _, p := range candidates {
		h.reporter(exceptionFromValue(p.Result()))
	}
}
