// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package gojahostbridge

import (
	"github.com/dop251/goja"
)

// DrainStats counts blockUntilComplete outcomes.
type DrainStats struct {
	// Settled is the number of calls that returned a settled outcome.
	Settled uint64
	// GaveUp is the number of calls that ran out of jobs while the promise
	// was still pending, and returned undefined.
	GaveUp uint64
}

// DrainStats returns a snapshot of the blockUntilComplete counters.
func (a *Adapter) DrainStats() DrainStats {
	return DrainStats{
		Settled: a.settled.Load(),
		GaveUp:  a.gaveUp.Load(),
	}
}

// blockUntilComplete runs pending jobs, one at a time, until its argument
// settles. The fulfillment value is returned and the rejection reason is
// thrown. If no job is pending while the promise is still pending, it
// returns undefined. Anything other than a promise is returned unchanged.
//
// Only loop jobs can be run. The interpreter's own job queue, which resumes
// await inside async functions, runs only once the outermost call into the
// interpreter returns, so an async function suspended on await cannot settle
// during the drain, and the call gives up.
//
// A rejection consumed here is marked as handled, since it surfaces as a
// guest exception instead.
func (a *Adapter) blockUntilComplete(call goja.FunctionCall) goja.Value {
	arg := call.Argument(0)
	p, ok := a.handle.AsPromise(arg)
	if !ok {
		return arg
	}

	var jobs int
	for {
		if s, settled := p.Poll(); settled {
			a.settled.Add(1)
			a.logger.Debug().
				Str("category", "drain").
				Int("jobs", jobs).
				Bool("rejected", s.Rejected).
				Log("blockUntilComplete settled")
			value := s.Value
			if value == nil {
				value = goja.Undefined()
			}
			if s.Rejected {
				a.handle.MarkHandled(p)
				panic(value)
			}
			return value
		}
		if !a.handle.ExecutePendingJob() {
			a.gaveUp.Add(1)
			a.logger.Warning().
				Str("category", "drain").
				Int("jobs", jobs).
				Log("blockUntilComplete gave up: promise still pending")
			return goja.Undefined()
		}
		jobs++
	}
}
