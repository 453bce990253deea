// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"sync/atomic"
	"time"
)

// Metrics is a point-in-time snapshot of loop statistics, see [Loop.Metrics].
//
// Example:
//
//	loop, _ := New(WithMetrics(true))
//	// ...
//	m := loop.Metrics()
//	fmt.Printf("tasks=%d max=%v\n", m.Tasks, m.MaxTaskLatency)
type Metrics struct {
	// Tasks is the number of macrotasks executed.
	Tasks uint64
	// Microtasks is the number of microtasks executed, including those run
	// via [Loop.RunMicrotask].
	Microtasks uint64
	// HostTasksSpawned counts [Loop.Go] and [Loop.AfterFunc] calls that
	// started a host task.
	HostTasksSpawned uint64
	// HostTasksCompleted counts host tasks that have finished, including
	// abandoned ones.
	HostTasksCompleted uint64
	// HostTasksAbandoned counts timers dropped by shutdown before firing.
	HostTasksAbandoned uint64
	// Panics counts recovered panics.
	Panics uint64
	// UnhandledRejections counts rejections reported as unhandled.
	UnhandledRejections uint64
	// MeanTaskLatency and MaxTaskLatency cover macrotask execution time,
	// including the microtask drain that follows each macrotask.
	MeanTaskLatency time.Duration
	MaxTaskLatency  time.Duration
}

// loopMetrics is the live, atomically updated counterpart of Metrics.
type loopMetrics struct {
	tasks               atomic.Uint64
	microtasks          atomic.Uint64
	hostSpawned         atomic.Uint64
	hostCompleted       atomic.Uint64
	hostAbandoned       atomic.Uint64
	panics              atomic.Uint64
	unhandledRejections atomic.Uint64
	taskNanos           atomic.Int64
	maxTaskNanos        atomic.Int64
}

// recordTask records a macrotask execution. Safe on a nil receiver.
func (m *loopMetrics) recordTask(d time.Duration) {
	if m == nil {
		return
	}
	m.tasks.Add(1)
	m.taskNanos.Add(int64(d))
	for {
		current := m.maxTaskNanos.Load()
		if int64(d) <= current || m.maxTaskNanos.CompareAndSwap(current, int64(d)) {
			return
		}
	}
}

func (m *loopMetrics) snapshot() Metrics {
	if m == nil {
		return Metrics{}
	}
	s := Metrics{
		Tasks:               m.tasks.Load(),
		Microtasks:          m.microtasks.Load(),
		HostTasksSpawned:    m.hostSpawned.Load(),
		HostTasksCompleted:  m.hostCompleted.Load(),
		HostTasksAbandoned:  m.hostAbandoned.Load(),
		Panics:              m.panics.Load(),
		UnhandledRejections: m.unhandledRejections.Load(),
		MaxTaskLatency:      time.Duration(m.maxTaskNanos.Load()),
	}
	if s.Tasks != 0 {
		s.MeanTaskLatency = time.Duration(m.taskNanos.Load() / int64(s.Tasks))
	}
	return s
}

// inc increments counter if metrics are enabled.
func (m *loopMetrics) inc(counter func(*loopMetrics) *atomic.Uint64) {
	if m != nil {
		counter(m).Add(1)
	}
}

func metricMicrotasks(m *loopMetrics) *atomic.Uint64    { return &m.microtasks }
func metricHostSpawned(m *loopMetrics) *atomic.Uint64   { return &m.hostSpawned }
func metricHostCompleted(m *loopMetrics) *atomic.Uint64 { return &m.hostCompleted }
func metricHostAbandoned(m *loopMetrics) *atomic.Uint64 { return &m.hostAbandoned }
func metricPanics(m *loopMetrics) *atomic.Uint64        { return &m.panics }
func metricUnhandled(m *loopMetrics) *atomic.Uint64     { return &m.unhandledRejections }
