// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

// SettledResult describes the outcome of one input to [Loop.AllSettled].
type SettledResult struct {
	Value  Result
	Reason Result
	State  PromiseState
}

// All resolves with the values of every input, in input order, or rejects
// with the first rejection reason.
func (l *Loop) All(promises []*Promise) *Promise {
	result, resolve, reject := l.NewPromise()
	if len(promises) == 0 {
		resolve([]Result{})
		return result
	}

	values := make([]Result, len(promises))
	remaining := len(promises)
	for i, p := range promises {
		p.Observe(func(state PromiseState, value Result) {
			if state == Rejected {
				reject(value)
				return
			}
			values[i] = value
			remaining--
			if remaining == 0 {
				resolve(values)
			}
		})
	}
	return result
}

// Race settles the same way as the first input to settle. An empty input
// never settles.
func (l *Loop) Race(promises []*Promise) *Promise {
	result, resolve, reject := l.NewPromise()
	for _, p := range promises {
		p.Observe(func(state PromiseState, value Result) {
			if state == Rejected {
				reject(value)
			} else {
				resolve(value)
			}
		})
	}
	return result
}

// AllSettled resolves with a []SettledResult once every input has settled.
// It never rejects.
func (l *Loop) AllSettled(promises []*Promise) *Promise {
	result, resolve, _ := l.NewPromise()
	if len(promises) == 0 {
		resolve([]SettledResult{})
		return result
	}

	outcomes := make([]SettledResult, len(promises))
	remaining := len(promises)
	for i, p := range promises {
		p.Observe(func(state PromiseState, value Result) {
			if state == Rejected {
				outcomes[i] = SettledResult{State: Rejected, Reason: value}
			} else {
				outcomes[i] = SettledResult{State: Fulfilled, Value: value}
			}
			remaining--
			if remaining == 0 {
				resolve(outcomes)
			}
		})
	}
	return result
}

// Any resolves with the first fulfilled value, or rejects with an
// *AggregateError holding every reason, in input order.
func (l *Loop) Any(promises []*Promise) *Promise {
	result, resolve, reject := l.NewPromise()
	if len(promises) == 0 {
		reject(&AggregateError{})
		return result
	}

	reasons := make([]error, len(promises))
	remaining := len(promises)
	for i, p := range promises {
		p.Observe(func(state PromiseState, value Result) {
			if state == Fulfilled {
				resolve(value)
				return
			}
			reasons[i] = reasonToError(value)
			remaining--
			if remaining == 0 {
				reject(&AggregateError{Errors: reasons})
			}
		})
	}
	return result
}
