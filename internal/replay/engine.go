// Package replay implements the consumer thread of §4.4: device
// discovery at startup, per-tuple dispatch against the buffer pair
// (kernel write with batching, or platform-event wait against the
// response ring), state transitions, and termination.
package replay

import (
	"sync/atomic"
	"time"

	"github.com/RedCarrottt/recordroid/internal/buffer"
	"github.com/RedCarrottt/recordroid/internal/clock"
	"github.com/RedCarrottt/recordroid/internal/constants"
	"github.com/RedCarrottt/recordroid/internal/feeder"
	"github.com/RedCarrottt/recordroid/internal/logging"
	"github.com/RedCarrottt/recordroid/internal/ring"
	"github.com/RedCarrottt/recordroid/internal/state"
	"github.com/RedCarrottt/recordroid/internal/uapi"
)

// DeviceWriter is the narrow device-I/O surface the engine writes
// batched input_event records to; satisfied by *rawio.Registry in
// production and a fake in tests.
type DeviceWriter interface {
	FD(deviceIndex int) (int, bool)
}

// Writer performs the actual batched write syscall, split out from
// DeviceWriter so tests can intercept writes without a real fd.
type Writer func(fd int, buf []byte) (int, error)

// Observer receives per-operation notifications; any subset may be nil.
type Observer interface {
	ObserveKernelWrite(tuples int, bytes uint64, latencyNs uint64, success bool)
	ObserveWaypointMatch(latencyNs uint64, timedOut bool)
}

// Callbacks is the capability set the engine calls out to, per §6/§9
// Design Notes ("Callback surface").
type Callbacks struct {
	// DoLongSleep blocks the caller ~ms milliseconds using the host's
	// scheduler. Run does not call it: the engine's sleeps go through
	// Config.Clock, which carries its own long-sleep delegate.
	DoLongSleep func(ms int32)
	// DidUpdateReplayingFields delivers a progress snapshot; may be nil.
	DidUpdateReplayingFields func(requiredSN, presentSN int64, cursor, size int32)
}

// Engine is the replay-engine consumer: it owns no buffer-pair or
// response-ring storage itself (those are shared with the feeder and the
// platform-event producer) but drives consumption of one against the
// other.
type Engine struct {
	pair     *buffer.Pair
	response *ring.Response
	st       *state.Atomic
	feed     *feeder.Feeder
	clk      clock.Clock
	alive    *atomic.Bool
	skip     atomic.Bool

	devices DeviceWriter
	write   Writer

	log      *logging.Logger
	obs      Observer
	maxBatch int

	requiredSNSnapshot func() int64
}

// Config bundles the Engine's dependencies.
type Config struct {
	Pair     *buffer.Pair
	Response *ring.Response
	State    *state.Atomic
	Feeder   *feeder.Feeder
	Clock    clock.Clock
	Alive    *atomic.Bool
	Devices  DeviceWriter
	Write    Writer
	Logger   *logging.Logger
	Observer Observer
}

// New constructs an Engine. Write defaults to a raw unix write syscall
// wrapper supplied by the caller (the session controller); tests inject a
// fake.
func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	return &Engine{
		pair:     cfg.Pair,
		response: cfg.Response,
		st:       cfg.State,
		feed:     cfg.Feeder,
		clk:      cfg.Clock,
		alive:    cfg.Alive,
		devices:  cfg.Devices,
		write:    cfg.Write,
		log:      log,
		obs:      cfg.Observer,
		maxBatch: constants.KernelWriteBatchSize,
	}
}

// SkipWait sets the one-shot skip latch iff the engine is currently in an
// isReplaying state, per §4.6.
func (e *Engine) SkipWait() {
	if e.st.Load().IsReplaying() {
		e.skip.Store(true)
	}
}

// SnapshotProgress returns (requiredSN, presentSN, presentCursor,
// presentSize); the last three are zero when not replaying, per §4.6.
func (e *Engine) SnapshotProgress() (requiredSN, presentSN int64, cursor, size int32) {
	requiredSN = e.feed.RequiredSN()
	if !e.st.Load().IsReplaying() {
		return requiredSN, 0, 0, 0
	}
	slot := e.pair.CurrentReaderSlot()
	if slot == nil {
		return requiredSN, 0, 0, 0
	}
	return requiredSN, slot.SN(), int32(slot.Cursor()), int32(slot.Size())
}

// batch accumulates kernel input_event payloads awaiting a flush.
type batch struct {
	device int
	n      int
	buf    []byte // n*uapi.Size bytes, preallocated to maxBatch*uapi.Size
}

func newBatch(maxBatch int) *batch {
	return &batch{buf: make([]byte, 0, maxBatch*uapi.Size)}
}

func (b *batch) reset() {
	b.n = 0
	b.buf = b.buf[:0]
}

func (b *batch) add(ev *uapi.InputEvent) {
	var rec [uapi.Size]byte
	uapi.MarshalInto(rec[:], ev)
	b.buf = append(b.buf, rec[:]...)
	b.n++
}

// Init transitions to ReadyForFirst and resets the feeder's sequence
// counter (§4.4 step 3; the batch buffer of step 2 is allocated by Run).
// Callers must invoke Init synchronously
// before any concurrent BeginChunk/Append calls can land and before
// spawning Run on its own goroutine, so the feeder never observes state
// Idle and silently drops the first chunk.
func (e *Engine) Init() {
	e.st.Store(state.ReadyForFirst)
	e.feed.Init()
}

// Run executes the replay engine's main lifecycle after Init: waiting
// for the first chunk to be fully admitted, the main consume loop, and
// cleanup. It blocks until the engine reaches AllFetched and drains the
// final slot, or alive becomes false.
func (e *Engine) Run(cb Callbacks) {
	e.feed.WaitUntilFetching()
	if !e.alive.Load() {
		e.cleanup()
		return
	}

	slot := e.pair.Take()
	b := newBatch(e.maxBatch)
	forceFlush := false

	for e.alive.Load() {
		if slot.Done() {
			slot.Unlock()
			if e.st.Load() == state.AllFetched && slot.SN() == e.feed.FinalSN() {
				break
			}
			slot = e.pair.Take()
			continue
		}

		t := slot.TupleAt(slot.Cursor())
		if !e.alive.Load() {
			slot.Unlock()
			break
		}

		switch t.Kind {
		case buffer.Kernel:
			ev := &uapi.InputEvent{Type: t.Type, Code: t.Code, Value: t.Value}
			// A device switch mid-batch forces a flush so records never
			// cross devices within one write call.
			if b.n > 0 && b.device != t.DeviceIndex {
				e.flush(b)
			}
			b.device = t.DeviceIndex
			b.add(ev)
			if t.TimestampUs != 0 {
				forceFlush = true
				e.clk.SleepNanos(t.TimestampUs*1000, e.alive)
			}
			if b.n >= e.maxBatch || forceFlush {
				e.flush(b)
				forceFlush = false
			}
		case buffer.Platform:
			e.clk.SleepNanos(t.TimestampUs*1000, e.alive)
			e.waitForWaypoint(t)
		}

		if cb.DidUpdateReplayingFields != nil {
			cb.DidUpdateReplayingFields(e.feed.RequiredSN(), slot.SN(), int32(slot.Cursor()+1), int32(slot.Size()))
		}
		slot.AdvanceRead()
	}

	if b.n > 0 {
		e.flush(b)
	}
	e.cleanup()
}

// flush writes the accumulated batch to its device in one call and
// resets it. A short write is fatal to the session per §7; the engine
// logs and lets alive naturally drain via the caller's loop condition.
func (e *Engine) flush(b *batch) {
	if b.n == 0 || e.write == nil || e.devices == nil {
		b.reset()
		return
	}
	fd, ok := e.devices.FD(b.device)
	if !ok {
		e.log.Warn("flush: no fd for device", "device", b.device)
		b.reset()
		return
	}
	start := time.Now()
	n, err := e.write(fd, b.buf)
	latency := uint64(time.Since(start).Nanoseconds())
	success := err == nil && n == len(b.buf)
	if e.obs != nil {
		e.obs.ObserveKernelWrite(b.n, uint64(n), latency, success)
	}
	if !success {
		e.log.Error("short write to device", "device", b.device, "wrote", n, "want", len(b.buf), "err", err)
		e.alive.Store(false)
	}
	b.reset()
}

// waitForWaypoint implements the waypoint-match loop of §4.4.1.
func (e *Engine) waitForWaypoint(t buffer.Tuple) {
	start := time.Now()
	if e.skip.Load() {
		e.skip.Store(false)
		if e.obs != nil {
			e.obs.ObserveWaypointMatch(uint64(time.Since(start).Nanoseconds()), true)
		}
		return
	}

	backoff := constants.WaypointBackoffStart
	for e.alive.Load() && !e.skip.Load() {
		found := e.response.Match(func(r ring.ResponseTuple) bool {
			return r.PEType == t.PEType && r.Priv == t.Priv && r.SecondPriv == t.SecondPriv
		})
		if found {
			if e.obs != nil {
				e.obs.ObserveWaypointMatch(uint64(time.Since(start).Nanoseconds()), false)
			}
			e.skip.Store(false)
			return
		}
		e.clk.SleepNanos(backoff.Nanoseconds(), e.alive)
		backoff *= 2
		if backoff > constants.WaypointBackoffMax {
			backoff = constants.WaypointBackoffMax
		}
	}
	timedOut := e.skip.Load()
	e.skip.Store(false)
	if e.obs != nil {
		e.obs.ObserveWaypointMatch(uint64(time.Since(start).Nanoseconds()), timedOut)
	}
}

// cleanup releases any held resources and transitions to Idle. The
// caller (session controller) owns closing device fds; the engine only
// resets its own state.
func (e *Engine) cleanup() {
	e.alive.Store(false)
	e.st.Store(state.Idle)
	e.feed.Broadcast()
}
