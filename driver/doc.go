// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package driver evaluates a top-level script against a fresh loop,
// interpreter, and host bridge, and runs the loop until no work remains.
//
// The script is evaluated as an async entry point: if it produces a
// promise, the driver waits for it to settle. Guest failures are written to
// stderr and returned in the [ExitReport], never as an error. Errors returned
// by [Driver.Run] are host failures, such as invalid configuration.
package driver
