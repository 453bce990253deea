// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-jsbridge/eventloop"
	gojahostbridge "github.com/joeycumines/go-jsbridge/goja-hostbridge"
	"github.com/joeycumines/go-jsbridge/interp"
	"github.com/joeycumines/logiface"
	"golang.org/x/sync/errgroup"
)

// DefaultShutdownTimeout bounds the final loop shutdown.
const DefaultShutdownTimeout = 5 * time.Second

// Config configures each run.
type Config struct {
	Interp interp.Config
	// Eval controls how the script is evaluated. A promise result is always
	// waited for.
	Eval interp.EvalOptions
	// ShutdownTimeout bounds the loop shutdown once the script is done. Zero
	// means no bound.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Interp:          interp.DefaultConfig(),
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// Outcome is how a script ended.
type Outcome int

const (
	// Fulfilled means evaluation succeeded, and its promise, if any, was
	// fulfilled.
	Fulfilled Outcome = iota
	// Rejected means the promise produced by evaluation was rejected.
	Rejected
	// EvalFailed means evaluation itself threw, or did not compile.
	EvalFailed
)

func (o Outcome) String() string {
	switch o {
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	case EvalFailed:
		return "eval failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// ExitReport describes a completed run.
type ExitReport struct {
	Outcome Outcome
	// Err is the guest failure, a *interp.GuestException, unless Outcome is
	// Fulfilled.
	Err error
	// Value is the formatted fulfillment value.
	Value    string
	Drain    gojahostbridge.DrainStats
	Duration time.Duration
}

// Driver runs scripts. Each run gets its own loop and interpreter.
type Driver struct {
	cfg    Config
	stdout io.Writer
	stderr io.Writer
	logger *logiface.Logger[logiface.Event]
}

// New validates cfg, and returns a driver for it.
func New(cfg Config, opts ...Option) (*Driver, error) {
	if err := cfg.Interp.Validate(); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout < 0 {
		return nil, fmt.Errorf("driver: negative shutdown timeout %s", cfg.ShutdownTimeout)
	}
	options, err := resolveDriverOptions(opts)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		cfg:    cfg,
		stdout: options.stdout,
		stderr: options.stderr,
		logger: options.logger,
	}
	if d.stdout == nil {
		d.stdout = os.Stdout
	}
	if d.stderr == nil {
		d.stderr = os.Stderr
	}
	return d, nil
}

// RunFile reads the script at path, then runs it as [Driver.Run] does.
func (d *Driver) RunFile(ctx context.Context, path string) (*ExitReport, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("driver: failed to read script: %w", err)
	}
	return d.Run(ctx, path, string(source))
}

// Run evaluates source, named name, waits for the promise it produces to
// settle, then runs the loop until idle, and shuts it down.
func (d *Driver) Run(ctx context.Context, name, source string) (*ExitReport, error) {
	start := time.Now()

	var handle *interp.Handle
	loop, err := eventloop.New(
		eventloop.WithLogger(d.logger),
		eventloop.WithMetrics(true),
		eventloop.WithUnhandledRejection(func(reason eventloop.Result) {
			handle.ReportRejection(reason)
		}),
	)
	if err != nil {
		return nil, err
	}

	handle, err = interp.New(loop, d.cfg.Interp,
		interp.WithLogger(d.logger),
		interp.WithRejectionReporter(d.reportRejection),
	)
	if err != nil {
		_ = loop.Close()
		return nil, err
	}

	adapter, err := gojahostbridge.New(handle,
		gojahostbridge.WithStdout(d.stdout),
		gojahostbridge.WithStderr(d.stderr),
		gojahostbridge.WithLogger(d.logger),
	)
	if err != nil {
		_ = loop.Close()
		return nil, err
	}

	var report *ExitReport
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})
	g.Go(func() error {
		var err error
		report, err = d.drive(gctx, adapter, name, source)
		if err != nil {
			_ = loop.Close()
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Drain = adapter.DrainStats()
	report.Duration = time.Since(start)

	metrics := loop.Metrics()
	d.logger.Debug().
		Str("name", name).
		Stringer("outcome", report.Outcome).
		Dur("duration", report.Duration).
		Uint64("tasks", metrics.Tasks).
		Uint64("microtasks", metrics.Microtasks).
		Uint64("timers", metrics.HostTasksSpawned).
		Log("script finished")

	return report, nil
}

// settlement is the outcome of the top-level evaluation, formatted on the
// loop.
type settlement struct {
	err   *interp.GuestException
	value string
}

func (d *Driver) drive(ctx context.Context, adapter *gojahostbridge.Adapter, name, source string) (*ExitReport, error) {
	handle := adapter.Handle()
	loop := handle.Loop()

	if err := adapter.Bind(); err != nil {
		return nil, err
	}

	opts := d.cfg.Eval
	opts.ExpectPromise = true

	settled := make(chan settlement, 1)

	// evaluation and subscription share a task, so a rejection is never
	// seen as unhandled
	err := handle.Do(ctx, func(*goja.Runtime) error {
		outcome, err := handle.Evaluate(name, source, opts)
		if err != nil {
			return err
		}
		if !outcome.IsPromise() {
			settled <- settlement{value: interp.FormatValue(outcome.Value)}
			return nil
		}
		handle.Subscribe(outcome.Promise, func(s interp.Settlement) {
			message := interp.FormatValue(s.Value)
			if s.Rejected {
				settled <- settlement{err: &interp.GuestException{Value: s.Value, Message: message}}
				return
			}
			settled <- settlement{value: message}
		})
		return nil
	})

	report := &ExitReport{}
	var guest *interp.GuestException
	switch {
	case errors.As(err, &guest):
		d.writeError(guest)
		report.Outcome = EvalFailed
		report.Err = guest

	case err != nil:
		return nil, err

	default:
		select {
		case s := <-settled:
			if s.err != nil {
				d.writeError(s.err)
				report.Outcome = Rejected
				report.Err = s.err
			} else {
				report.Value = s.value
			}
		case <-loop.Done():
			return nil, eventloop.ErrLoopTerminated
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := loop.Idle(ctx); err != nil {
		return nil, err
	}

	shutdownCtx := context.WithoutCancel(ctx)
	if d.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(shutdownCtx, d.cfg.ShutdownTimeout)
		defer cancel()
	}
	if err := loop.Shutdown(shutdownCtx); err != nil {
		return nil, fmt.Errorf("driver: shutdown failed: %w", err)
	}

	return report, nil
}

func (d *Driver) writeError(err *interp.GuestException) {
	if _, werr := fmt.Fprintln(d.stderr, err.Message); werr != nil {
		d.logger.Warning().
			Err(werr).
			Log("failed to write error output")
	}
}

// reportRejection writes an unhandled rejection to stderr, as a single line.
func (d *Driver) reportRejection(err *interp.GuestException) {
	d.writeError(err)
	d.logger.Debug().
		Str("category", "promise").
		Err(err).
		Log("unhandled promise rejection")
}
