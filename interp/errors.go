// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package interp

import (
	"errors"
	"strings"

	"github.com/dop251/goja"
)

var (
	// ErrNilLoop is returned by New when no loop is given.
	ErrNilLoop = errors.New("interp: loop cannot be nil")

	// ErrNotInLoop is returned by operations that need exclusive access to
	// the interpreter, when called from outside the loop goroutine.
	ErrNotInLoop = errors.New("interp: interpreter accessed from outside the loop")

	// ErrInLoop is returned by Await when called from the loop goroutine,
	// where it would wait on itself.
	ErrInLoop = errors.New("interp: cannot await from within the loop")
)

// GuestException is a failure originating in guest code: a syntax error, a
// thrown value, or a promise rejection.
type GuestException struct {
	// Value is the thrown value or rejection reason. It may be nil for
	// failures that never became a guest value, such as a stack overflow.
	Value goja.Value

	// Message is the guest formatted description of Value, including the
	// stack when Value is an Error.
	Message string

	cause error
}

func (e *GuestException) Error() string {
	return e.Message
}

// Unwrap returns the underlying interpreter error, if any.
func (e *GuestException) Unwrap() error {
	return e.cause
}

// FormatValue describes a guest value the way it would be reported for an
// uncaught exception. Error values are described by their stack. It must be
// called while holding the interpreter.
func FormatValue(v goja.Value) (s string) {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	defer func() {
		// toString may throw
		if r := recover(); r != nil {
			s = "[object " + obj.ClassName() + "]"
		}
	}()
	if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) && !goja.IsNull(stack) {
		if text := strings.TrimRight(stack.String(), "\n"); text != "" {
			return dedupeName(obj, text)
		}
	}
	return dedupeName(obj, obj.String())
}

// dedupeName strips the repeated "SyntaxError: " prefix of compile errors,
// whose message already starts with the error name.
func dedupeName(obj *goja.Object, text string) string {
	const prefix = "SyntaxError: "
	if name := obj.Get("name"); name == nil || name.String() != "SyntaxError" {
		return text
	}
	if !strings.HasPrefix(text, prefix+prefix) {
		return text
	}
	return text[len(prefix):]
}

// ToGuestException converts an error returned by the interpreter to a
// *GuestException.
func ToGuestException(err error) *GuestException {
	if err == nil {
		return nil
	}
	var guest *GuestException
	if errors.As(err, &guest) {
		return guest
	}
	var ex *goja.Exception
	if errors.As(err, &ex) && ex.Value() != nil {
		return &GuestException{
			Value:   ex.Value(),
			Message: FormatValue(ex.Value()),
			cause:   err,
		}
	}
	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return &GuestException{Message: stackOverflowMessage + overflow.Error(), cause: err}
	}
	return &GuestException{Message: err.Error(), cause: err}
}

const stackOverflowMessage = "RangeError: Maximum call stack size exceeded"

// exceptionFromValue builds a *GuestException for a thrown or rejected
// guest value.
func exceptionFromValue(v goja.Value) *GuestException {
	return &GuestException{Value: v, Message: FormatValue(v)}
}

// ThrownValue returns the guest value to throw or reject with, for an error
// returned by the interpreter.
func (h *Handle) ThrownValue(err error) goja.Value {
	var guest *GuestException
	if errors.As(err, &guest) && guest.Value != nil {
		return guest.Value
	}
	var ex *goja.Exception
	if errors.As(err, &ex) && ex.Value() != nil {
		return ex.Value()
	}
	return h.rt.NewGoError(err)
}
