// Package recordroid implements a device-level event record-and-replay
// engine: it streams previously recorded input events back to a system
// at the original cadence while ingesting new event chunks from an
// upstream producer and correlating live platform-event observations
// against expected waypoints in the recorded trace.
package recordroid

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/RedCarrottt/recordroid/internal/buffer"
	"github.com/RedCarrottt/recordroid/internal/clock"
	"github.com/RedCarrottt/recordroid/internal/constants"
	"github.com/RedCarrottt/recordroid/internal/feeder"
	"github.com/RedCarrottt/recordroid/internal/logging"
	"github.com/RedCarrottt/recordroid/internal/poller"
	"github.com/RedCarrottt/recordroid/internal/rawio"
	"github.com/RedCarrottt/recordroid/internal/replay"
	"github.com/RedCarrottt/recordroid/internal/ring"
	"github.com/RedCarrottt/recordroid/internal/state"
)

// Callbacks is the capability set injected at engine construction time,
// mirroring the four external-collaborator callbacks of §6: a
// long-sleep delegate, a progress snapshot sink, and a raw-poll drain
// sink. The producer feed direction runs the other way (the collaborator
// calls BeginChunk/AppendKernel/AppendPlatform on the Engine), so it is
// not modeled as a callback here.
type Callbacks struct {
	// DoLongSleep blocks the caller ~ms milliseconds using the host's
	// scheduler. A nil value falls back to time.Sleep.
	DoLongSleep func(ms int32)
	// DidUpdateReplayingFields delivers a progress snapshot. Optional.
	DidUpdateReplayingFields func(requiredSN, presentSN int64, cursor, size int32)
	// CompletePoll delivers one drained raw input tuple. Optional.
	CompletePoll func(tvSec, tvUsec int64, deviceIndex, evType, code int32, value int32)
}

// EngineConfig is this repo's analogue of the reference toolkit's
// DeviceParams: the configuration inputs of §6 plus the ambient-stack
// additions of §9.
type EngineConfig struct {
	DeviceDir               string
	DefaultReplayBufferSize int
	MaxSleepMs              int
	ResponseRingCapacity    int
	RawInputRingCapacity    int

	Logger   *logging.Logger
	Observer Observer
}

// DefaultEngineConfig returns a populated config using the tuned
// defaults of internal/constants.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DeviceDir:               constants.DeviceDirDefault,
		DefaultReplayBufferSize: constants.DefaultReplayBufferSize,
		MaxSleepMs:              0,
		ResponseRingCapacity:    constants.ResponseRingCapacity,
		RawInputRingCapacity:    constants.RawInputRingCapacity,
	}
}

// Engine assembles the clock, buffer pair, response ring, raw input
// ring, feeder, replay engine, poller and device registry behind one
// public API, per §4.8 "Session controller". It owns all mutable state
// that the original source kept as file-scope globals.
type Engine struct {
	cfg EngineConfig
	cb  Callbacks
	log *logging.Logger

	alive *atomic.Bool
	st    *state.Atomic

	pair     *buffer.Pair
	response *ring.Response
	rawRing  *ring.Raw
	registry *rawio.Registry
	clk      clock.Clock

	feed   *feeder.Feeder
	engine *replay.Engine
	poll   *poller.Poller

	metrics *Metrics
	obs     Observer

	wg      sync.WaitGroup
	stopped chan struct{}
}

// NewEngine constructs an Engine, opening the device directory and
// scanning for event devices (§4.4 step 1 / §4.7). A directory-open
// failure is fatal per §7.
func NewEngine(cfg EngineConfig, cb Callbacks) (*Engine, error) {
	if cfg.DeviceDir == "" {
		cfg.DeviceDir = constants.DeviceDirDefault
	}
	if cfg.DefaultReplayBufferSize <= 0 {
		cfg.DefaultReplayBufferSize = constants.DefaultReplayBufferSize
	}
	if cfg.ResponseRingCapacity <= 0 {
		cfg.ResponseRingCapacity = constants.ResponseRingCapacity
	}
	if cfg.RawInputRingCapacity <= 0 {
		cfg.RawInputRingCapacity = constants.RawInputRingCapacity
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}

	registry, err := rawio.Open(cfg.DeviceDir, log)
	if err != nil {
		return nil, WrapError("DEVICE_DIR_OPEN", err)
	}

	alive := &atomic.Bool{}
	alive.Store(true)
	st := &state.Atomic{}
	pair := buffer.NewPair(cfg.DefaultReplayBufferSize)
	response := ring.NewResponse(cfg.ResponseRingCapacity)
	rawRing := ring.NewRaw(cfg.RawInputRingCapacity)
	feed := feeder.New(pair, st, alive, log)

	longSleep := cb.DoLongSleep
	clk := clock.NewReal(longSleep, cfg.MaxSleepMs)

	metrics := NewMetrics()
	obs := cfg.Observer
	if obs == nil {
		obs = NewMetricsObserver(metrics)
	}

	e := &Engine{
		cfg:      cfg,
		cb:       cb,
		log:      log,
		alive:    alive,
		st:       st,
		pair:     pair,
		response: response,
		rawRing:  rawRing,
		registry: registry,
		clk:      clk,
		feed:     feed,
		metrics:  metrics,
		obs:      obs,
		stopped:  make(chan struct{}),
	}

	e.engine = replay.New(replay.Config{
		Pair:     pair,
		Response: response,
		State:    st,
		Feeder:   feed,
		Clock:    clk,
		Alive:    alive,
		Devices:  registry,
		Write:    writeFD,
		Logger:   log,
		Observer: replayObserverAdapter{obs},
	})
	e.poll = poller.New(cfg.DeviceDir, registry, rawRing, alive, clk.NowMicros, log)

	return e, nil
}

func writeFD(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}

// replayObserverAdapter satisfies replay.Observer against the broader
// Observer interface, so the session controller only has one Observer
// type to accept from callers.
type replayObserverAdapter struct{ Observer }

// Init transitions the engine to ReadyForFirst. Callers must invoke Init
// synchronously before starting any goroutine that calls
// BeginChunk/AppendKernel/AppendPlatform and before calling Run, so the
// feeder never observes state Idle and silently drops the first chunk
// (§4.3's "any other -> no-op").
func (e *Engine) Init() { e.engine.Init() }

// Run starts the poller and replay-engine goroutines, blocks until both
// exit or ctx is canceled, and always runs cleanup. It returns nil on
// clean shutdown. Init must already have been called.
func (e *Engine) Run(ctx context.Context) error {
	e.wg.Add(2)

	go func() {
		defer e.wg.Done()
		e.engine.Run(replay.Callbacks{
			DoLongSleep:              e.cb.DoLongSleep,
			DidUpdateReplayingFields: e.cb.DidUpdateReplayingFields,
		})
	}()

	go func() {
		defer e.wg.Done()
		if err := e.poll.Run(func(dropped bool) { e.obs.ObservePollerEvent(dropped) }); err != nil {
			e.log.Error("poller exited", "err", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		e.Stop()
		<-done
		e.cleanup()
		return ctx.Err()
	case <-done:
		e.cleanup()
		return nil
	}
}

// Stop flips the process-wide alive flag false, causing the replay
// engine and poller to unwind at their next loop boundary per §5
// "Cancellation".
func (e *Engine) Stop() {
	e.alive.Store(false)
	e.feed.Broadcast()
}

func (e *Engine) cleanup() {
	close(e.stopped)
	if err := e.registry.Close(); err != nil {
		e.log.Warn("error closing device registry", "err", err)
	}
	e.metrics.Stop()
}

// BeginChunk admits a new chunk into the feeder, per §4.3.
func (e *Engine) BeginChunk(hasNext bool, count int, sn int64) {
	e.feed.BeginChunk(hasNext, count, sn)
}

// AppendKernel writes one kernel-input tuple into the feeder, per §4.3.
func (e *Engine) AppendKernel(t buffer.Tuple) { e.feed.AppendKernel(t) }

// AppendPlatform writes one platform-event tuple into the feeder, per §4.3.
func (e *Engine) AppendPlatform(t buffer.Tuple) { e.feed.AppendPlatform(t) }

// OnPlatformObservation delivers a live platform-event observation to
// the response ring, per §4.4.2. Observations received outside
// isReplaying or while not alive are silently dropped.
func (e *Engine) OnPlatformObservation(peType int32, responseTimeUs, priv, secondPriv int64) {
	if !e.st.Load().IsReplaying() || !e.alive.Load() {
		return
	}
	now := time.Now()
	e.response.Produce(ring.ResponseTuple{
		Deadline:       now.Add(constants.ResponseDeadline),
		PEType:         peType,
		ResponseTimeUs: responseTimeUs,
		Priv:           priv,
		SecondPriv:     secondPriv,
	}, now)
}

// SkipWait sets the one-shot skip latch, per §4.6.
func (e *Engine) SkipWait() { e.engine.SkipWait() }

// SnapshotProgress reads (requiredSN, presentSN, presentCursor,
// presentSize) and delivers it via the DidUpdateReplayingFields
// callback, per §4.6.
func (e *Engine) SnapshotProgress() (requiredSN, presentSN int64, cursor, size int32) {
	requiredSN, presentSN, cursor, size = e.engine.SnapshotProgress()
	if e.cb.DidUpdateReplayingFields != nil {
		e.cb.DidUpdateReplayingFields(requiredSN, presentSN, cursor, size)
	}
	return requiredSN, presentSN, cursor, size
}

// Chunk drains the raw input ring under the "readable" predicate (at
// least 2 entries normally, or 1 when urgent), delivering each tuple to
// CompletePoll. It returns true iff at least one tuple was delivered,
// per §4.5.
func (e *Engine) Chunk(urgent bool) bool {
	if !e.rawRing.Readable(urgent) {
		return false
	}
	delivered := e.rawRing.Drain(urgent, func(t ring.RawTuple) {
		if e.cb.CompletePoll != nil {
			e.cb.CompletePoll(t.TvSec, t.TvUsec, int32(t.DeviceIndex), int32(t.Type), int32(t.Code), t.Value)
		}
	})
	return delivered > 0
}

// Metrics returns the engine's metrics collector.
func (e *Engine) Metrics() *Metrics { return e.metrics }
