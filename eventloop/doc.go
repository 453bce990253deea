// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package eventloop provides a single-owner event loop that guards a
// non-thread-safe resource (typically an embedded JavaScript interpreter)
// behind goroutine affinity.
//
// # Architecture
//
// A [Loop] is driven by exactly one goroutine, the one that calls [Loop.Run].
// Every access to the guarded resource is a task executed by that goroutine,
// which makes "holding the loop" equivalent to holding an exclusive permit.
// Work reaches the loop through three queues:
//
//   - Macrotasks, submitted from any goroutine via [Loop.Submit]
//   - Microtasks (pending jobs), scheduled via [Loop.ScheduleMicrotask] and
//     drained after every macrotask
//   - Host tasks, goroutines spawned via [Loop.Go] and [Loop.AfterFunc], which
//     never touch the resource directly and re-enter through [Loop.Submit]
//
// [Loop.RunMicrotask] executes exactly one pending microtask from within a
// running task, reporting whether any work happened. It never suspends.
//
// # Promises
//
// [Promise] is a loop-owned promise whose reactions run as microtasks. It is
// the host half of a guest promise implementation: settling it from a host
// task is safe, reactions always execute on the loop goroutine. Rejections
// left without a handler by the end of the current macrotask are passed to
// the [RejectionHandler] configured via [WithUnhandledRejection].
//
// # Idle and Shutdown
//
// [Loop.Idle] blocks (off the loop) until no macrotask, microtask or host
// task is outstanding. [Loop.Shutdown] stops accepting work, abandons timers
// that have not fired, and drains what is already queued.
//
// # Usage
//
//	loop, err := eventloop.New(eventloop.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go func() { _ = loop.Run(ctx) }()
//
//	_ = loop.Submit(func() {
//	    _ = loop.AfterFunc(100*time.Millisecond, func() {
//	        fmt.Println("fired")
//	    })
//	})
//
//	_ = loop.Idle(ctx)
//	_ = loop.Shutdown(ctx)
package eventloop
