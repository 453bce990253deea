// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package gojahostbridge installs the host callables that guest scripts use
// to reach the event loop: console.log, setTimeout, blockUntilComplete, and a
// loop-backed Promise constructor.
//
// # Binding the Adapter
//
//	loop, _ := eventloop.New()
//	go loop.Run(ctx)
//
//	handle, err := interp.New(loop, interp.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	adapter, err := gojahostbridge.New(handle)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := adapter.Bind(); err != nil {
//	    log.Fatal(err)
//	}
//
// Bind requires the loop to be running, or to be called from the loop.
//
// # Available JavaScript Globals
//
//   - console.log(value) : writes JSON.stringify(value, null, "  ") as one line
//   - setTimeout(callback, delay?) → undefined : runs callback once, after delay ms
//   - blockUntilComplete(promise) → value : runs pending jobs until promise settles
//   - Promise : constructor with then/catch/finally, and the static
//     resolve, reject, all, race, allSettled, any, and withResolvers
//
// The global names are configurable, see [WithGlobalNames].
//
// # Timers
//
// There is no clearTimeout. An exception thrown by a timer callback does not
// stop the loop: it is wrapped in a [*TimerError] and passed to the
// [ErrorHandler], and later timers still fire.
//
// # Draining
//
// blockUntilComplete runs queued jobs while holding the loop, and returns
// as soon as the promise settles. If the queue empties first, for example
// because the promise waits on a timer, it gives up and returns undefined,
// without waiting. The promise still settles later. See [Adapter.DrainStats].
package gojahostbridge
