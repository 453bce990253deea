// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Command jsbridge runs a script on an event loop, with console.log,
// setTimeout, and blockUntilComplete available as globals.
//
// Usage:
//
//	jsbridge [flags] script.js
//
// Configuration is layered: defaults, then the -config TOML file, then
// JSBRIDGE_* environment variables (also read from -env-file, or .env), then
// flags. Guest failures are written to stderr, and only affect the exit code
// with -fail-on-error.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/go-jsbridge/driver"
	"github.com/joeycumines/stumpy"
)

const (
	exitOK = iota
	exitFatal
	exitGuestFailure
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("jsbridge", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		_, _ = fmt.Fprintln(flags.Output(), "usage: jsbridge [flags] script.js")
		flags.PrintDefaults()
	}
	var (
		configPath  = flags.String("config", "", "TOML configuration `file`")
		envFile     = flags.String("env-file", "", "read JSBRIDGE_* variables from this `file` (default .env, if present)")
		module      = flags.Bool("module", false, "evaluate the script as a CommonJS module")
		strict      = flags.Bool("strict", false, "evaluate the script in strict mode")
		logLevel    = flags.String("log-level", "", "log `level`, from trace to emerg, or disabled")
		failOnError = flags.Bool("fail-on-error", false, "exit 2 if the script fails")
	)
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitFatal
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return exitFatal
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fatal(stderr, err)
	}
	lookup, err := envLookup(*envFile)
	if err != nil {
		return fatal(stderr, err)
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return fatal(stderr, err)
	}
	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "module":
			cfg.Module = *module
		case "strict":
			cfg.Strict = *strict
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return fatal(stderr, err)
	}
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(stderr)),
		stumpy.L.WithLevel(level),
	).Logger()

	driverCfg, err := cfg.driverConfig()
	if err != nil {
		return fatal(stderr, err)
	}
	d, err := driver.New(driverCfg,
		driver.WithStdout(stdout),
		driver.WithStderr(stderr),
		driver.WithLogger(logger),
	)
	if err != nil {
		return fatal(stderr, err)
	}

	report, err := d.RunFile(ctx, flags.Arg(0))
	if err != nil {
		return fatal(stderr, err)
	}

	logger.Info().
		Stringer("outcome", report.Outcome).
		Dur("duration", report.Duration).
		Uint64("drain_gave_up", report.Drain.GaveUp).
		Log("done")

	if *failOnError && report.Outcome != driver.Fulfilled {
		return exitGuestFailure
	}
	return exitOK
}

func fatal(stderr io.Writer, err error) int {
	_, _ = fmt.Fprintf(stderr, "jsbridge: %v\n", err)
	return exitFatal
}
