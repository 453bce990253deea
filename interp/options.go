// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package interp

import (
	"github.com/joeycumines/logiface"
)

// RejectionReporter receives every guest promise rejection that nothing
// handled by the end of the macrotask in which it happened. It runs on the
// loop goroutine.
type RejectionReporter func(err *GuestException)

// handleOptions holds configuration options for Handle creation.
type handleOptions struct {
	logger   *logiface.Logger[logiface.Event]
	reporter RejectionReporter
}

// Option configures a Handle instance.
type Option interface {
	applyHandle(*handleOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyHandleFunc func(*handleOptions) error
}

func (o *optionImpl) applyHandle(opts *handleOptions) error {
	return o.applyHandleFunc(opts)
}

// WithLogger attaches a structured logger. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *handleOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithRejectionReporter sets where unhandled guest rejections are reported.
// By default they are logged at error level.
func WithRejectionReporter(reporter RejectionReporter) Option {
	return &optionImpl{func(opts *handleOptions) error {
		opts.reporter = reporter
		return nil
	}}
}

func resolveHandleOptions(opts []Option) (*handleOptions, error) {
	cfg := &handleOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyHandle(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
