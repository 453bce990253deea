// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package interp

import (
	"errors"
	"strconv"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-jsbridge/eventloop"
)

// Settlement is the outcome of a settled [GuestPromise].
type Settlement struct {
	Value    goja.Value
	Rejected bool
}

// GuestPromise is a guest promise, either one of the interpreter's own (as
// returned by async functions), or one backed by the loop (as created by the
// Promise global, once bound).
//
// Methods must be called while holding the loop.
type GuestPromise interface {
	// Poll returns the settlement without blocking, and false while pending.
	Poll() (Settlement, bool)

	// Object returns the guest value of the promise.
	Object() *goja.Object

	subscribe(fn func(Settlement))
}

// AsPromise returns v as a GuestPromise, if it is a promise or thenable.
// Foreign thenables are adopted by a new loop-backed promise.
func (h *Handle) AsPromise(v goja.Value) (GuestPromise, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	if p, ok := obj.Export().(*goja.Promise); ok {
		return &nativePromise{h: h, p: p, obj: obj}, true
	}
	if p := h.LoopPromiseOf(obj); p != nil {
		return &loopPromise{h: h, p: p, obj: obj}, true
	}
	if _, ok := goja.AssertFunction(obj.Get("then")); ok {
		p, _ := h.Adopt(obj).(*eventloop.Promise)
		return &loopPromise{h: h, p: p, obj: h.NewLoopPromiseObject(p)}, true
	}
	return nil, false
}

// PromiseOf wraps a loop promise as a GuestPromise.
func (h *Handle) PromiseOf(p *eventloop.Promise) GuestPromise {
	return &loopPromise{h: h, p: p, obj: h.NewLoopPromiseObject(p)}
}

type nativePromise struct {
	h   *Handle
	p   *goja.Promise
	obj *goja.Object
}

func (n *nativePromise) Poll() (Settlement, bool) {
	switch n.p.State() {
	case goja.PromiseStateFulfilled:
		return Settlement{Value: n.p.Result()}, true
	case goja.PromiseStateRejected:
		return Settlement{Value: n.p.Result(), Rejected: true}, true
	default:
		return Settlement{}, false
	}
}

func (n *nativePromise) Object() *goja.Object {
	return n.obj
}

// subscribe attaches reactions even when already settled, so the promise
// counts as handled.
func (n *nativePromise) subscribe(fn func(Settlement)) {
	then, ok := goja.AssertFunction(n.obj.Get("then"))
	if !ok {
		panic(n.h.rt.NewTypeError("promise has no then method"))
	}
	_, err := then(n.obj,
		n.h.rt.ToValue(func(call goja.FunctionCall) goja.Value {
			fn(Settlement{Value: call.Argument(0)})
			return goja.Undefined()
		}),
		n.h.rt.ToValue(func(call goja.FunctionCall) goja.Value {
			fn(Settlement{Value: call.Argument(0), Rejected: true})
			return goja.Undefined()
		}),
	)
	if err != nil {
		panic(n.h.ThrownValue(err))
	}
}

type loopPromise struct {
	h   *Handle
	p   *eventloop.Promise
	obj *goja.Object
}

func (l *loopPromise) Poll() (Settlement, bool) {
	switch l.p.State() {
	case eventloop.Fulfilled:
		return Settlement{Value: l.h.ToValue(l.p.Value())}, true
	case eventloop.Rejected:
		return Settlement{Value: l.h.ToValue(l.p.Reason()), Rejected: true}, true
	default:
		return Settlement{}, false
	}
}

func (l *loopPromise) Object() *goja.Object {
	return l.obj
}

func (l *loopPromise) subscribe(fn func(Settlement)) {
	l.p.Observe(func(state eventloop.PromiseState, result eventloop.Result) {
		fn(Settlement{Value: l.h.ToValue(result), Rejected: state == eventloop.Rejected})
	})
}

// PromisePrototype returns the prototype shared by loop-backed promise
// objects, providing then, catch, and finally.
func (h *Handle) PromisePrototype() *goja.Object {
	return h.promiseProto
}

// LoopPromiseOf returns the loop promise behind v, or nil.
func (h *Handle) LoopPromiseOf(v goja.Value) *eventloop.Promise {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	internal := obj.GetSymbol(h.promiseKey)
	if internal == nil {
		return nil
	}
	p, _ := internal.Export().(*eventloop.Promise)
	return p
}

// BindLoopPromise makes obj the guest value of p.
func (h *Handle) BindLoopPromise(obj *goja.Object, p *eventloop.Promise) error {
	return obj.DefineDataPropertySymbol(h.promiseKey, h.rt.ToValue(p), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
}

// NewLoopPromiseObject returns a new guest value for p.
func (h *Handle) NewLoopPromiseObject(p *eventloop.Promise) *goja.Object {
	obj := h.rt.CreateObject(h.promiseProto)
	if err := h.BindLoopPromise(obj, p); err != nil {
		panic(err)
	}
	return obj
}

// ResolvingFunctions returns guest callables for the resolving functions of
// a loop promise.
func (h *Handle) ResolvingFunctions(resolve eventloop.ResolveFunc, reject eventloop.RejectFunc) (goja.Value, goja.Value) {
	resolveFn := h.rt.ToValue(func(call goja.FunctionCall) goja.Value {
		resolve(h.Adopt(call.Argument(0)))
		return goja.Undefined()
	})
	rejectFn := h.rt.ToValue(func(call goja.FunctionCall) goja.Value {
		reject(call.Argument(0))
		return goja.Undefined()
	})
	return resolveFn, rejectFn
}

// Adopt converts a guest resolution value to a loop promise result. A
// loop-backed promise is unwrapped, any other thenable is followed through
// its then method, called from a microtask.
func (h *Handle) Adopt(v goja.Value) eventloop.Result {
	obj, ok := v.(*goja.Object)
	if !ok {
		return v
	}
	if p := h.LoopPromiseOf(obj); p != nil {
		return p
	}
	then, ok := goja.AssertFunction(obj.Get("then"))
	if !ok {
		return v
	}
	p, resolve, reject := h.loop.NewPromise()
	resolveFn, rejectFn := h.ResolvingFunctions(resolve, reject)
	if err := h.loop.ScheduleMicrotask(func() {
		if _, err := then(obj, resolveFn, rejectFn); err != nil {
			reject(h.ThrownValue(err))
		}
	}); err != nil {
		reject(h.rt.NewGoError(err))
	}
	return p
}

// Reaction converts a guest callback to a loop promise reaction, or returns
// nil if fn is not callable.
func (h *Handle) Reaction(fn goja.Value) func(eventloop.Result) eventloop.Result {
	callable, ok := goja.AssertFunction(fn)
	if !ok {
		return nil
	}
	return func(result eventloop.Result) eventloop.Result {
		ret, err := callable(goja.Undefined(), h.ToValue(result))
		if err != nil {
			return eventloop.Throw(h.ThrownValue(err))
		}
		return h.Adopt(ret)
	}
}

// ToValue converts a loop promise result to a guest value.
func (h *Handle) ToValue(result eventloop.Result) goja.Value {
	switch v := result.(type) {
	case nil:
		return goja.Undefined()
	case goja.Value:
		return v
	case *eventloop.Promise:
		return h.NewLoopPromiseObject(v)
	case []eventloop.Result:
		values := make([]any, len(v))
		for i, elem := range v {
			values[i] = h.ToValue(elem)
		}
		return h.rt.NewArray(values...)
	case []eventloop.SettledResult:
		values := make([]any, len(v))
		for i, elem := range v {
			entry := h.rt.NewObject()
			if elem.State == eventloop.Fulfilled {
				_ = entry.Set("status", "fulfilled")
				_ = entry.Set("value", h.ToValue(elem.Value))
			} else {
				_ = entry.Set("status", "rejected")
				_ = entry.Set("reason", h.ToValue(elem.Reason))
			}
			values[i] = entry
		}
		return h.rt.NewArray(values...)
	case *eventloop.AggregateError:
		return h.aggregateError(v)
	case *eventloop.ReasonError:
		return h.ToValue(v.Reason)
	case error:
		return h.rt.NewGoError(v)
	default:
		return h.rt.ToValue(v)
	}
}

func (h *Handle) aggregateError(agg *eventloop.AggregateError) goja.Value {
	reasons := make([]any, len(agg.Errors))
	for i, err := range agg.Errors {
		var reason *eventloop.ReasonError
		if errors.As(err, &reason) {
			reasons[i] = h.ToValue(reason.Reason)
		} else {
			reasons[i] = h.rt.NewGoError(err)
		}
	}
	obj, err := h.rt.New(h.rt.Get("AggregateError"), h.rt.NewArray(reasons...), h.rt.ToValue("All promises were rejected"))
	if err != nil {
		return h.rt.NewGoError(agg)
	}
	return obj
}

// Values returns the elements of a guest iterable.
func (h *Handle) Values(iterable goja.Value) ([]goja.Value, error) {
	arr, err := h.arrayFrom(goja.Undefined(), iterable)
	if err != nil {
		return nil, err
	}
	obj := arr.ToObject(h.rt)
	length := int(obj.Get("length").ToInteger())
	values := make([]goja.Value, length)
	for i := range values {
		values[i] = obj.Get(strconv.Itoa(i))
	}
	return values, nil
}

func (h *Handle) newPromisePrototype() *goja.Object {
	proto := h.rt.NewObject()
	_ = proto.Set("then", h.promiseThen)
	_ = proto.Set("catch", h.promiseCatch)
	_ = proto.Set("finally", h.promiseFinally)
	_ = proto.DefineDataPropertySymbol(goja.SymToStringTag, h.rt.ToValue("Promise"), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE)
	return proto
}

func (h *Handle) thisPromise(call goja.FunctionCall, method string) *eventloop.Promise {
	p := h.LoopPromiseOf(call.This)
	if p == nil {
		panic(h.rt.NewTypeError("Method Promise.prototype.%s called on incompatible receiver", method))
	}
	return p
}

func (h *Handle) promiseThen(call goja.FunctionCall) goja.Value {
	p := h.thisPromise(call, "then")
	return h.NewLoopPromiseObject(p.Then(h.Reaction(call.Argument(0)), h.Reaction(call.Argument(1))))
}

func (h *Handle) promiseCatch(call goja.FunctionCall) goja.Value {
	p := h.thisPromise(call, "catch")
	return h.NewLoopPromiseObject(p.Then(nil, h.Reaction(call.Argument(0))))
}

// promiseFinally passes the outcome through, after waiting for whatever
// onFinally returns. A throw from onFinally replaces the outcome.
func (h *Handle) promiseFinally(call goja.FunctionCall) goja.Value {
	p := h.thisPromise(call, "finally")
	onFinally, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		return h.NewLoopPromiseObject(p.Then(nil, nil))
	}
	after := func(outcome eventloop.Result) eventloop.Result {
		ret, err := onFinally(goja.Undefined())
		if err != nil {
			return eventloop.Throw(h.ThrownValue(err))
		}
		waited, ok := h.Adopt(ret).(*eventloop.Promise)
		if !ok {
			return outcome
		}
		return waited.Then(func(eventloop.Result) eventloop.Result { return outcome }, nil)
	}
	return h.NewLoopPromiseObject(p.Then(
		func(value eventloop.Result) eventloop.Result {
			return after(value)
		},
		func(reason eventloop.Result) eventloop.Result {
			return after(eventloop.Throw(reason))
		},
	))
}
