// Package state defines the replay engine's seven-state enum (§3 "Engine
// state") and its derived predicates (§4.3), shared between the feeder
// (which drives transitions) and the replay engine (which queries them).
package state

import "sync/atomic"

// State is the closed set of replay-engine states.
type State int32

const (
	Idle State = iota
	ReadyForFirst
	InitialFetching
	InitialAndFinalFetching
	ReplayingAndFetching
	FinalFetching
	AllFetched
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case ReadyForFirst:
		return "ReadyForFirst"
	case InitialFetching:
		return "InitialFetching"
	case InitialAndFinalFetching:
		return "InitialAndFinalFetching"
	case ReplayingAndFetching:
		return "ReplayingAndFetching"
	case FinalFetching:
		return "FinalFetching"
	case AllFetched:
		return "AllFetched"
	default:
		return "Unknown"
	}
}

// IsFetching reports whether the engine is in any state accepting
// feeder-appended tuples.
func (s State) IsFetching() bool {
	switch s {
	case InitialFetching, InitialAndFinalFetching, ReplayingAndFetching, FinalFetching:
		return true
	default:
		return false
	}
}

// IsReplaying reports whether the engine has begun consuming tuples.
func (s State) IsReplaying() bool {
	switch s {
	case ReplayingAndFetching, FinalFetching, AllFetched:
		return true
	default:
		return false
	}
}

// Atomic is a lock-free holder for State, used wherever the state is read
// from a different goroutine than the one transitioning it (the progress
// surface, the response-ring producer, and the feeder all query state
// concurrently with the replay engine's own transitions).
type Atomic struct {
	v atomic.Int32
}

func (a *Atomic) Load() State      { return State(a.v.Load()) }
func (a *Atomic) Store(s State)    { a.v.Store(int32(s)) }
func (a *Atomic) CAS(old, new State) bool {
	return a.v.CompareAndSwap(int32(old), int32(new))
}
