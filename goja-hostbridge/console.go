// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package gojahostbridge

import (
	"fmt"

	"github.com/dop251/goja"
)

// consoleLog writes its first argument as pretty-printed JSON.
func (a *Adapter) consoleLog(call goja.FunctionCall) goja.Value {
	a.writeLine(a.format(call.Argument(0)))
	return goja.Undefined()
}

// format stringifies v with two space indentation. Values JSON cannot
// represent, such as undefined or functions, format as "undefined".
// Stringify failures are rethrown.
func (a *Adapter) format(v goja.Value) string {
	out, err := a.stringify(goja.Undefined(), v, goja.Null(), a.runtime.ToValue("  "))
	if err != nil {
		panic(err)
	}
	if out == nil || goja.IsUndefined(out) {
		return "undefined"
	}
	return out.String()
}

func (a *Adapter) writeLine(line string) {
	a.stdoutMu.Lock()
	defer a.stdoutMu.Unlock()
	if _, err := fmt.Fprintln(a.stdout, line); err != nil {
		a.logger.Warning().
			Err(err).
			Log("failed to write console output")
	}
}
