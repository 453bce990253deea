// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package gojahostbridge

import (
	"errors"
	"io"

	"github.com/joeycumines/logiface"
)

// Names are the global paths the host callables are installed under. A path
// may be dotted, in which case intermediate objects are created as needed.
type Names struct {
	Log                string
	SetTimeout         string
	BlockUntilComplete string
}

// DefaultNames returns the conventional global names.
func DefaultNames() Names {
	return Names{
		Log:                "console.log",
		SetTimeout:         "setTimeout",
		BlockUntilComplete: "blockUntilComplete",
	}
}

func (n Names) validate() error {
	if n.Log == "" || n.SetTimeout == "" || n.BlockUntilComplete == "" {
		return errors.New("gojahostbridge: global names cannot be empty")
	}
	return nil
}

// adapterOptions holds configuration options for Adapter creation.
type adapterOptions struct {
	stdout  io.Writer
	stderr  io.Writer
	onError ErrorHandler
	logger  *logiface.Logger[logiface.Event]
	names   Names
}

// Option configures an Adapter instance.
type Option interface {
	applyAdapter(*adapterOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyAdapterFunc func(*adapterOptions) error
}

func (o *optionImpl) applyAdapter(opts *adapterOptions) error {
	return o.applyAdapterFunc(opts)
}

// WithStdout sets where console.log writes. Defaults to os.Stdout.
func WithStdout(w io.Writer) Option {
	return &optionImpl{func(opts *adapterOptions) error {
		if w == nil {
			return errors.New("gojahostbridge: stdout cannot be nil")
		}
		opts.stdout = w
		return nil
	}}
}

// WithStderr sets where the default [ErrorHandler] writes. Defaults to
// os.Stderr.
func WithStderr(w io.Writer) Option {
	return &optionImpl{func(opts *adapterOptions) error {
		if w == nil {
			return errors.New("gojahostbridge: stderr cannot be nil")
		}
		opts.stderr = w
		return nil
	}}
}

// WithErrorHandler replaces the default handling of timer callback failures.
func WithErrorHandler(handler ErrorHandler) Option {
	return &optionImpl{func(opts *adapterOptions) error {
		opts.onError = handler
		return nil
	}}
}

// WithLogger attaches a structured logger. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *adapterOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithGlobalNames overrides where the host callables are installed.
func WithGlobalNames(names Names) Option {
	return &optionImpl{func(opts *adapterOptions) error {
		if err := names.validate(); err != nil {
			return err
		}
		opts.names = names
		return nil
	}}
}

func resolveAdapterOptions(opts []Option) (*adapterOptions, error) {
	cfg := &adapterOptions{names: DefaultNames()}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyAdapter(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
