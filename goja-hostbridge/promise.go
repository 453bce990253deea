// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package gojahostbridge

import (
	"github.com/dop251/goja"
	"github.com/joeycumines/go-jsbridge/eventloop"
)

// bindPromise replaces the global Promise with a constructor of loop-backed
// promises. Their jobs run as loop microtasks, which is what
// blockUntilComplete drains.
func (a *Adapter) bindPromise() error {
	ctor := a.runtime.ToValue(a.promiseConstructor).(*goja.Object)
	proto := a.handle.PromisePrototype()

	if err := ctor.Set("prototype", proto); err != nil {
		return err
	}
	if err := proto.DefineDataProperty("constructor", ctor, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		return err
	}

	for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
		"resolve":       a.promiseResolve,
		"reject":        a.promiseReject,
		"all":           a.combinator(a.loop.All),
		"race":          a.combinator(a.loop.Race),
		"allSettled":    a.combinator(a.loop.AllSettled),
		"any":           a.combinator(a.loop.Any),
		"withResolvers": a.promiseWithResolvers,
	} {
		if err := ctor.Set(name, fn); err != nil {
			return err
		}
	}

	return a.runtime.Set("Promise", ctor)
}

func (a *Adapter) promiseConstructor(call goja.ConstructorCall) *goja.Object {
	executor, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(a.runtime.NewTypeError("Promise resolver %s is not a function", call.Argument(0).String()))
	}

	p, resolve, reject := a.loop.NewPromise()
	if err := a.handle.BindLoopPromise(call.This, p); err != nil {
		panic(a.runtime.NewGoError(err))
	}
	resolveFn, rejectFn := a.handle.ResolvingFunctions(resolve, reject)

	if _, err := executor(goja.Undefined(), resolveFn, rejectFn); err != nil {
		reject(a.handle.ThrownValue(err))
	}
	return call.This
}

// promiseOf returns v as a loop promise, adopting thenables.
func (a *Adapter) promiseOf(v goja.Value) *eventloop.Promise {
	if p := a.handle.LoopPromiseOf(v); p != nil {
		return p
	}
	return a.loop.Resolved(a.handle.Adopt(v))
}

func (a *Adapter) promiseResolve(call goja.FunctionCall) goja.Value {
	v := call.Argument(0)
	if a.handle.LoopPromiseOf(v) != nil {
		return v
	}
	return a.handle.NewLoopPromiseObject(a.promiseOf(v))
}

func (a *Adapter) promiseReject(call goja.FunctionCall) goja.Value {
	return a.handle.NewLoopPromiseObject(a.loop.Rejected(call.Argument(0)))
}

func (a *Adapter) promiseWithResolvers(goja.FunctionCall) goja.Value {
	p, resolve, reject := a.loop.NewPromise()
	resolveFn, rejectFn := a.handle.ResolvingFunctions(resolve, reject)
	result := a.runtime.NewObject()
	_ = result.Set("promise", a.handle.NewLoopPromiseObject(p))
	_ = result.Set("resolve", resolveFn)
	_ = result.Set("reject", rejectFn)
	return result
}

// combinator adapts a loop combinator to a static taking an iterable. An
// argument that is not iterable gives a rejected promise.
func (a *Adapter) combinator(fn func([]*eventloop.Promise) *eventloop.Promise) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		values, err := a.handle.Values(call.Argument(0))
		if err != nil {
			return a.handle.NewLoopPromiseObject(a.loop.Rejected(a.handle.ThrownValue(err)))
		}
		promises := make([]*eventloop.Promise, len(values))
		for i, v := range values {
			promises[i] = a.promiseOf(v)
		}
		return a.handle.NewLoopPromiseObject(fn(promises))
	}
}
