// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package driver

import (
	"errors"
	"io"

	"github.com/joeycumines/logiface"
)

// driverOptions holds configuration options for Driver creation.
type driverOptions struct {
	stdout io.Writer
	stderr io.Writer
	logger *logiface.Logger[logiface.Event]
}

// Option configures a Driver instance.
type Option interface {
	applyDriver(*driverOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyDriverFunc func(*driverOptions) error
}

func (o *optionImpl) applyDriver(opts *driverOptions) error {
	return o.applyDriverFunc(opts)
}

// WithStdout sets where console output goes. Defaults to os.Stdout.
func WithStdout(w io.Writer) Option {
	return &optionImpl{func(opts *driverOptions) error {
		if w == nil {
			return errors.New("driver: stdout cannot be nil")
		}
		opts.stdout = w
		return nil
	}}
}

// WithStderr sets where guest failures are written. Defaults to os.Stderr.
func WithStderr(w io.Writer) Option {
	return &optionImpl{func(opts *driverOptions) error {
		if w == nil {
			return errors.New("driver: stderr cannot be nil")
		}
		opts.stderr = w
		return nil
	}}
}

// WithLogger attaches a structured logger, shared by the loop, the
// interpreter, and the host bridge. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *driverOptions) error {
		opts.logger = logger
		return nil
	}}
}

func resolveDriverOptions(opts []Option) (*driverOptions, error) {
	cfg := &driverOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyDriver(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
