// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"errors"
	"fmt"
	"strings"
)

// Standard errors.
var (
	// ErrLoopAlreadyRunning is returned when Run() is called on a loop that is already running.
	ErrLoopAlreadyRunning = errors.New("eventloop: loop is already running")

	// ErrLoopTerminated is returned when operations are attempted on a terminated loop.
	ErrLoopTerminated = errors.New("eventloop: loop has been terminated")

	// ErrReentrantRun is returned when Run() is called from within the loop itself.
	ErrReentrantRun = errors.New("eventloop: cannot call Run() from within the loop")

	// ErrIdleFromLoop is returned when Idle() is called from the loop goroutine,
	// where it could never observe an idle loop.
	ErrIdleFromLoop = errors.New("eventloop: cannot wait for idle from within the loop")

	// ErrInvalidOption is returned (wrapped) by New for an invalid option value.
	ErrInvalidOption = errors.New("eventloop: invalid option")
)

// PanicError wraps a value recovered from a panicking task, host task, or
// promise reaction.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("eventloop: recovered panic: %v", e.Value)
}

// Unwrap returns the panic value, if it is an error.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// AggregateError is the rejection reason of [Any] when every input rejects.
type AggregateError struct {
	// Errors holds one reason per input, in input order. Reasons that are not
	// errors are wrapped in [ReasonError].
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "eventloop: all promises were rejected"
	}
	var b strings.Builder
	b.WriteString("eventloop: all promises were rejected: ")
	for i, err := range e.Errors {
		if i != 0 {
			b.WriteString("; ")
		}
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap supports [errors.Is] and [errors.As] across every contained reason.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// ReasonError adapts an arbitrary rejection reason to the error interface.
type ReasonError struct {
	Reason Result
}

func (e *ReasonError) Error() string {
	return fmt.Sprint(e.Reason)
}

// Unwrap returns the reason, if it is an error.
func (e *ReasonError) Unwrap() error {
	if err, ok := e.Reason.(error); ok {
		return err
	}
	return nil
}

// reasonToError returns reason as an error, wrapping when necessary.
func reasonToError(reason Result) error {
	if err, ok := reason.(error); ok {
		return err
	}
	return &ReasonError{Reason: reason}
}
