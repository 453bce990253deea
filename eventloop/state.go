// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package eventloop

import (
	"sync/atomic"
)

// LoopState represents the current state of the event loop.
//
// State Machine:
//
//	StateAwake (0) → StateRunning (3)         [Run()]
//	StateRunning (3) → StateSleeping (2)      [no work, via CAS]
//	StateSleeping (2) → StateRunning (3)      [woken, via CAS]
//	StateAwake/Running/Sleeping → StateTerminating (4) [Shutdown(), Close(), ctx]
//	StateTerminating (4) → StateTerminated (1) [queues drained]
//	StateTerminated (1) → (terminal)
//
// Use TryTransition for reversible states, Store only for StateTerminated.
type LoopState uint64

const (
	// StateAwake indicates the loop has been created but not started.
	StateAwake LoopState = 0
	// StateTerminated indicates the loop has been stopped and is fully shut down.
	StateTerminated LoopState = 1
	// StateSleeping indicates the loop is blocked waiting for work.
	StateSleeping LoopState = 2
	// StateRunning indicates the loop is actively processing tasks.
	StateRunning LoopState = 3
	// StateTerminating indicates shutdown has been requested but not completed.
	StateTerminating LoopState = 4
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// fastState is a lock-free state holder.
type fastState struct {
	v atomic.Uint64
}

func (s *fastState) Load() LoopState {
	return LoopState(s.v.Load())
}

func (s *fastState) Store(state LoopState) {
	s.v.Store(uint64(state))
}

// TryTransition attempts to atomically transition from one state to another.
func (s *fastState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// beginTermination moves any non-terminal state to StateTerminating, returning
// the state it replaced, or false if termination had already begun.
func (s *fastState) beginTermination() (LoopState, bool) {
	for {
		current := s.Load()
		if current == StateTerminating || current == StateTerminated {
			return current, false
		}
		if s.TryTransition(current, StateTerminating) {
			return current, true
		}
	}
}
