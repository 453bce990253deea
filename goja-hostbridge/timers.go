// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package gojahostbridge

import (
	"fmt"
	"math"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-jsbridge/interp"
)

// maxDelay is the longest accepted delay, in milliseconds.
const maxDelay = math.MaxInt32

// ErrorHandler receives failures of guest code run by the adapter outside
// any guest call, i.e. timer callbacks. It runs on the loop goroutine.
type ErrorHandler func(err error)

// TimerError is an exception thrown by a timer callback.
type TimerError struct {
	Err   *interp.GuestException
	Delay time.Duration
	// Seq identifies the timer, in scheduling order, starting at 1.
	Seq uint64
}

func (e *TimerError) Error() string {
	return e.Err.Message
}

// Unwrap returns the guest exception.
func (e *TimerError) Unwrap() error {
	return e.Err
}

// setTimeout schedules its first argument to be called once, with no
// arguments, after the delay in milliseconds given as the second.
func (a *Adapter) setTimeout(call goja.FunctionCall) goja.Value {
	callback, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(a.runtime.NewTypeError("setTimeout requires a function as first argument"))
	}
	delay := timerDelay(call.Argument(1))
	seq := a.timerSeq.Add(1)

	a.logger.Debug().
		Str("category", "timer").
		Uint64("timer", seq).
		Dur("delay", delay).
		Log("timer sleeping")

	if err := a.loop.AfterFunc(delay, func() {
		a.fireTimer(callback, delay, seq)
	}); err != nil {
		a.logger.Warning().
			Str("category", "timer").
			Uint64("timer", seq).
			Err(err).
			Log("timer dropped")
	}
	return goja.Undefined()
}

// timerDelay converts a guest delay to a duration. Missing, NaN, and
// negative delays are zero, fractions are truncated, and large delays are
// clamped to maxDelay.
func timerDelay(v goja.Value) time.Duration {
	if v == nil || goja.IsUndefined(v) {
		return 0
	}
	ms := v.ToFloat()
	switch {
	case math.IsNaN(ms), ms <= 0:
		return 0
	case ms > maxDelay:
		ms = maxDelay
	}
	return time.Duration(int64(ms)) * time.Millisecond
}

func (a *Adapter) fireTimer(callback goja.Callable, delay time.Duration, seq uint64) {
	a.logger.Debug().
		Str("category", "timer").
		Uint64("timer", seq).
		Log("timer fired")

	if _, err := callback(goja.Undefined()); err != nil {
		a.onError(&TimerError{
			Err:   interp.ToGuestException(err),
			Delay: delay,
			Seq:   seq,
		})
	}
}

// reportError is the default ErrorHandler. The plain line on stderr is the
// report, so the structured record is debug only.
func (a *Adapter) reportError(err error) {
	if _, werr := fmt.Fprintln(a.stderr, err.Error()); werr != nil {
		a.logger.Warning().
			Err(werr).
			Log("failed to write error output")
	}
	a.logger.Debug().
		Str("category", "timer").
		Err(err).
		Log("timer callback failed")
}
