// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package gojahostbridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-jsbridge/eventloop"
	"github.com/joeycumines/go-jsbridge/interp"
	"github.com/joeycumines/logiface"
)

// Adapter binds host callables into an interpreter.
type Adapter struct {
	handle  *interp.Handle
	loop    *eventloop.Loop
	runtime *goja.Runtime
	logger  *logiface.Logger[logiface.Event]
	onError ErrorHandler
	stdout  io.Writer
	stderr  io.Writer
	names   Names

	// stringify is JSON.stringify, resolved by Bind
	stringify goja.Callable

	stdoutMu sync.Mutex

	timerSeq atomic.Uint64
	settled  atomic.Uint64
	gaveUp   atomic.Uint64
}

// New creates an adapter for handle. Nothing is installed until
// [Adapter.Bind] is called.
func New(handle *interp.Handle, opts ...Option) (*Adapter, error) {
	if handle == nil {
		return nil, errors.New("gojahostbridge: handle cannot be nil")
	}
	options, err := resolveAdapterOptions(opts)
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		handle:  handle,
		loop:    handle.Loop(),
		runtime: handle.Runtime(),
		logger:  options.logger,
		onError: options.onError,
		stdout:  options.stdout,
		stderr:  options.stderr,
		names:   options.names,
	}
	if a.stdout == nil {
		a.stdout = os.Stdout
	}
	if a.stderr == nil {
		a.stderr = os.Stderr
	}
	if a.onError == nil {
		a.onError = a.reportError
	}
	return a, nil
}

// Handle returns the interpreter handle.
func (a *Adapter) Handle() *interp.Handle {
	return a.handle
}

// Loop returns the event loop.
func (a *Adapter) Loop() *eventloop.Loop {
	return a.loop
}

// Bind installs the host callables and the Promise constructor as globals,
// replacing any existing bindings. It runs on the loop, so the loop must be
// running unless Bind is called from it.
func (a *Adapter) Bind() error {
	return a.handle.Do(context.Background(), func(rt *goja.Runtime) error {
		stringify, ok := goja.AssertFunction(rt.Get("JSON").ToObject(rt).Get("stringify"))
		if !ok {
			return errors.New("gojahostbridge: JSON.stringify is not callable")
		}
		a.stringify = stringify

		for _, binding := range [...]struct {
			path  string
			value func(goja.FunctionCall) goja.Value
		}{
			{a.names.Log, a.consoleLog},
			{a.names.SetTimeout, a.setTimeout},
			{a.names.BlockUntilComplete, a.blockUntilComplete},
		} {
			if err := setPath(rt, binding.path, binding.value); err != nil {
				return fmt.Errorf("gojahostbridge: failed to bind %s: %w", binding.path, err)
			}
		}

		if err := a.bindPromise(); err != nil {
			return fmt.Errorf("gojahostbridge: failed to bind Promise: %w", err)
		}

		a.logger.Debug().
			Str("log", a.names.Log).
			Str("set_timeout", a.names.SetTimeout).
			Str("block_until_complete", a.names.BlockUntilComplete).
			Log("host callables bound")
		return nil
	})
}

// setPath sets a dotted path relative to the global object, creating
// intermediate objects where missing.
func setPath(rt *goja.Runtime, path string, value any) error {
	parts := strings.Split(path, ".")
	target := rt.GlobalObject()
	for _, part := range parts[:len(parts)-1] {
		next, ok := target.Get(part).(*goja.Object)
		if !ok {
			next = rt.NewObject()
			if err := target.Set(part, next); err != nil {
				return err
			}
		}
		target = next
	}
	return target.Set(parts[len(parts)-1], value)
}
