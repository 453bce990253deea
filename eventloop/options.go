// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"fmt"

	"github.com/joeycumines/logiface"
)

// defaultMicrotaskBudget bounds a single microtask drain before the loop
// re-checks for termination. Remaining microtasks still run before the next
// macrotask.
const defaultMicrotaskBudget = 1024

// RejectionHandler receives the reason of every [Promise] that was rejected
// without a rejection handler attached by the end of the macrotask in which
// it was rejected. It runs on the loop goroutine.
type RejectionHandler func(reason Result)

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	logger          *logiface.Logger[logiface.Event]
	onUnhandled     RejectionHandler
	microtaskBudget int
	metricsEnabled  bool
}

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithLogger attaches a structured logger, used for recovered panics,
// unhandled rejections, abandoned host tasks and lifecycle events.
// A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithUnhandledRejection sets the handler for rejections that nothing
// handled. Unhandled rejections are logged regardless.
func WithUnhandledRejection(handler RejectionHandler) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.onUnhandled = handler
		return nil
	}}
}

// WithMicrotaskBudget sets how many microtasks are run per drain pass.
func WithMicrotaskBudget(budget int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if budget <= 0 {
			return fmt.Errorf("%w: microtask budget must be positive, got %d", ErrInvalidOption, budget)
		}
		opts.microtaskBudget = budget
		return nil
	}}
}

// WithMetrics enables runtime metrics collection, see [Loop.Metrics].
func WithMetrics(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		microtaskBudget: defaultMicrotaskBudget,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
