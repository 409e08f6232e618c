// Package feeder implements the external intake interface of §4.3: the
// upstream calls BeginChunk/AppendKernel/AppendPlatform, and the feeder
// drives the shared engine-state transitions and buffer-pair admission
// those calls imply.
package feeder

import (
	"sync"
	"sync/atomic"

	"github.com/RedCarrottt/recordroid/internal/buffer"
	"github.com/RedCarrottt/recordroid/internal/logging"
	"github.com/RedCarrottt/recordroid/internal/state"
)

// Feeder binds an incoming chunk to a replay-buffer slot and advances the
// shared engine state per the table in §4.3.
type Feeder struct {
	pair  *buffer.Pair
	st    *state.Atomic
	alive *atomic.Bool

	requiredSN atomic.Int64
	finalSN    atomic.Int64

	mu   sync.Mutex
	cond *sync.Cond
	log  *logging.Logger
}

// New constructs a Feeder over a shared buffer pair and state holder. pair
// and st are also owned by the replay engine consuming the same chunks.
func New(pair *buffer.Pair, st *state.Atomic, alive *atomic.Bool, log *logging.Logger) *Feeder {
	if log == nil {
		log = logging.Default()
	}
	f := &Feeder{pair: pair, st: st, alive: alive, log: log}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Init transitions to ReadyForFirst and resets requiredSN to 1, called
// once by the replay engine during startup (§4.4 step 3).
func (f *Feeder) Init() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.Store(state.ReadyForFirst)
	f.requiredSN.Store(1)
}

// RequiredSN returns the sequence number the upstream should produce next.
func (f *Feeder) RequiredSN() int64 { return f.requiredSN.Load() }

// FinalSN returns the sequence number of the final chunk, valid once set
// by the terminal transition to AllFetched.
func (f *Feeder) FinalSN() int64 { return f.finalSN.Load() }

// isWaitingForFirstChunk reports whether the engine has not yet fully
// admitted its first chunk.
func isWaitingForFirstChunk(s state.State) bool {
	switch s {
	case state.ReadyForFirst, state.InitialFetching, state.InitialAndFinalFetching:
		return true
	default:
		return false
	}
}

// WaitUntilFetching blocks until the first chunk has been fully admitted
// (the state has left ReadyForFirst/InitialFetching/InitialAndFinalFetching)
// or alive becomes false. It replaces the original implementation's 1s
// polling sleep with a condition variable (§9 Open Questions).
func (f *Feeder) WaitUntilFetching() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for isWaitingForFirstChunk(f.st.Load()) && f.alive.Load() {
		f.cond.Wait()
	}
}

// Broadcast wakes any goroutine blocked in WaitUntilFetching, used by the
// replay engine when tearing down so a stalled feeder wait does not leak.
func (f *Feeder) Broadcast() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cond.Broadcast()
}

// BeginChunk admits a new chunk into the writer slot and transitions state
// per the table in §4.3. Called with the wrong prior state, it is a
// silent no-op (tolerating late-arriving chunks under teardown).
func (f *Feeder) BeginChunk(hasNext bool, count int, sn int64) {
	f.mu.Lock()
	prior := f.st.Load()
	var next state.State
	switch prior {
	case state.ReadyForFirst:
		if hasNext {
			next = state.InitialFetching
		} else {
			next = state.InitialAndFinalFetching
		}
	case state.ReplayingAndFetching:
		if hasNext {
			next = state.ReplayingAndFetching
		} else {
			next = state.FinalFetching
		}
	default:
		f.mu.Unlock()
		f.log.Debug("beginChunk ignored in unexpected state", "state", prior.String(), "sn", sn)
		return
	}

	slot := f.pair.WriterSlot()
	slot.Lock()
	if err := slot.Admit(sn, count); err != nil {
		slot.Unlock()
		f.mu.Unlock()
		f.log.Warn("beginChunk rejected admission", "err", err, "sn", sn)
		return
	}
	f.st.Store(next)
	if isWaitingForFirstChunk(prior) && !isWaitingForFirstChunk(next) {
		f.cond.Broadcast()
	}
	f.mu.Unlock()

	if count == 0 {
		// The slot completes immediately: append will never be called for
		// this chunk, so drive the end-of-chunk transition here.
		f.completeChunk(slot, sn)
	}
	// Otherwise the slot stays locked by this goroutine until the final
	// AppendKernel/AppendPlatform call observes cursor == size.
}

// AppendKernel writes one kernel-input tuple into the writer slot.
func (f *Feeder) AppendKernel(t buffer.Tuple) {
	t.Kind = buffer.Kernel
	f.append(t)
}

// AppendPlatform writes one platform-event tuple into the writer slot.
func (f *Feeder) AppendPlatform(t buffer.Tuple) {
	t.Kind = buffer.Platform
	f.append(t)
}

func (f *Feeder) append(t buffer.Tuple) {
	st := f.st.Load()
	if !st.IsFetching() || !f.alive.Load() {
		return // silently dropped per §7
	}
	slot := f.pair.WriterSlot()
	if slot.Append(t) {
		f.completeChunk(slot, slot.SN())
	}
}

// completeChunk implements the end-of-chunk transition implied by §4.3,
// advances the writer slot, and bumps requiredSN when the engine remains
// in a fetching state.
func (f *Feeder) completeChunk(slot *buffer.Slot, sn int64) {
	f.mu.Lock()
	prior := f.st.Load()
	next := prior
	switch prior {
	case state.InitialAndFinalFetching, state.FinalFetching:
		next = state.AllFetched
		f.finalSN.Store(sn)
	case state.InitialFetching:
		next = state.ReplayingAndFetching
	}
	if next != prior {
		f.st.Store(next)
		if isWaitingForFirstChunk(prior) && !isWaitingForFirstChunk(next) {
			f.cond.Broadcast()
		}
	}
	f.mu.Unlock()

	slot.Unlock()
	f.pair.AdvanceWriter()
	if next.IsFetching() {
		f.requiredSN.Add(1)
	}
}
