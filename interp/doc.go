// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package interp owns a goja interpreter, guarded by an [eventloop.Loop].
//
// The interpreter is not safe for concurrent use. A [Handle] is bound to a
// single loop, and the loop goroutine is the only goroutine allowed to touch
// the interpreter. Host code enters through [Handle.Do], which runs a
// function as a loop task (or inline, when already on the loop).
//
// # Configuration
//
// [Config] is consumed once, by [New]:
//
//   - MaxStackSize is converted to a call depth, at [StackFrameSize] bytes
//     per frame
//   - GCThreshold becomes the soft memory limit of the process
//   - SearchPaths and Builtins form the require resolver chain, with the
//     util and url modules always available
//
// # Promises
//
// Two kinds of guest promise exist. The interpreter's own promises, created
// by async functions and await, run their jobs when the outermost call into
// the interpreter returns. Loop-backed promises (see [Handle.NewLoopPromiseObject])
// run their reactions as loop microtasks, which is what makes them visible to
// [Handle.ExecutePendingJob]. [GuestPromise] covers both.
//
// Rejections that nothing handles by the end of the macrotask are passed to
// the [RejectionReporter].
package interp
