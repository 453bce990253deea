// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"context"
	"time"
)

// Go runs fn as a host task: a goroutine tracked by the loop, which must not
// touch loop-guarded state directly, and re-enters via [Loop.Submit].
//
// The context passed to fn is cancelled when the loop begins shutting down.
// The task counts as outstanding (see [Loop.Idle]) until fn returns. Panics
// are recovered and logged.
//
// Returns ErrLoopTerminated once shutdown has begun.
func (l *Loop) Go(fn func(ctx context.Context)) error {
	if fn == nil {
		return nil
	}
	if !l.beginHostTask() {
		return ErrLoopTerminated
	}
	go func() {
		defer l.endHostTask()
		defer func() {
			if r := recover(); r != nil {
				l.metrics.inc(metricPanics)
				l.logger.Err().
					Uint64("loop", l.id).
					Str("kind", "host task").
					Err(PanicError{Value: r}).
					Log("eventloop: host task panicked")
			}
		}()
		fn(l.hostCtx)
	}()
	return nil
}

// AfterFunc starts a host task that waits for delay on a real timer, without
// holding the loop, then submits fn as a macrotask.
//
// The host task stays outstanding until fn has been queued, so [Loop.Idle]
// covers timers that have not yet fired. If the loop begins shutting down
// first, fn is dropped and never called. Timers with a shorter delay that
// were started at the same time are queued first.
func (l *Loop) AfterFunc(delay time.Duration, fn func()) error {
	if fn == nil {
		return nil
	}
	if delay < 0 {
		delay = 0
	}
	return l.Go(func(ctx context.Context) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			if err := l.Submit(fn); err != nil {
				l.abandonTimer(delay, err)
			}
		case <-ctx.Done():
			l.abandonTimer(delay, ctx.Err())
		}
	})
}

func (l *Loop) abandonTimer(delay time.Duration, reason error) {
	l.metrics.inc(metricHostAbandoned)
	l.logger.Debug().
		Uint64("loop", l.id).
		Str("category", "timer").
		Dur("delay", delay).
		Err(reason).
		Log("timer abandoned at shutdown")
}

// beginHostTask registers a host task, unless shutdown has begun.
func (l *Loop) beginHostTask() bool {
	l.hostMu.Lock()
	defer l.hostMu.Unlock()
	if l.hostCtx.Err() != nil {
		return false
	}
	if state := l.state.Load(); state == StateTerminating || state == StateTerminated {
		return false
	}
	l.hostWg.Add(1)
	l.outstanding.Add(1)
	l.metrics.inc(metricHostSpawned)
	return true
}

func (l *Loop) endHostTask() {
	l.metrics.inc(metricHostCompleted)
	l.hostWg.Done()
	l.finishWork()
}
