package feeder

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/RedCarrottt/recordroid/internal/buffer"
	"github.com/RedCarrottt/recordroid/internal/state"
)

func newTestFeeder() (*Feeder, *buffer.Pair, *state.Atomic, *atomic.Bool) {
	pair := buffer.NewPair(4)
	var st state.Atomic
	var alive atomic.Bool
	alive.Store(true)
	f := New(pair, &st, &alive, nil)
	return f, pair, &st, &alive
}

func TestBeginChunkTransitionsReadyForFirst(t *testing.T) {
	f, _, st, _ := newTestFeeder()
	f.Init()

	f.BeginChunk(true, 2, 1)
	if st.Load() != state.InitialFetching {
		t.Fatalf("expected InitialFetching, got %s", st.Load())
	}
}

func TestBeginChunkNoNextGoesToInitialAndFinal(t *testing.T) {
	f, _, st, _ := newTestFeeder()
	f.Init()

	f.BeginChunk(false, 2, 1)
	if st.Load() != state.InitialAndFinalFetching {
		t.Fatalf("expected InitialAndFinalFetching, got %s", st.Load())
	}
}

func TestBeginChunkIgnoredInWrongState(t *testing.T) {
	f, _, st, _ := newTestFeeder()
	// st starts at zero value Idle; BeginChunk should no-op.
	f.BeginChunk(true, 2, 1)
	if st.Load() != state.Idle {
		t.Fatalf("expected state unchanged at Idle, got %s", st.Load())
	}
}

func TestScenarioASingleChunkAllKernel(t *testing.T) {
	f, pair, st, _ := newTestFeeder()
	f.Init()

	f.BeginChunk(false, 3, 1)
	f.AppendKernel(buffer.Tuple{DeviceIndex: 0, Type: 1, Code: 2, Value: 3})
	f.AppendKernel(buffer.Tuple{DeviceIndex: 0, Type: 1, Code: 2, Value: 4})
	f.AppendKernel(buffer.Tuple{DeviceIndex: 0, Type: 1, Code: 2, Value: 5, TimestampUs: 1000})

	if st.Load() != state.AllFetched {
		t.Fatalf("expected AllFetched, got %s", st.Load())
	}
	if f.FinalSN() != 1 {
		t.Fatalf("expected finalSN=1, got %d", f.FinalSN())
	}
	if pair.WriterIndex() != 1 {
		t.Fatalf("expected writer slot to have advanced to 1, got %d", pair.WriterIndex())
	}
}

func TestScenarioEChunkBoundarySequence(t *testing.T) {
	f, _, st, _ := newTestFeeder()
	f.Init()

	if f.RequiredSN() != 1 {
		t.Fatalf("expected requiredSN=1 initially, got %d", f.RequiredSN())
	}

	f.BeginChunk(true, 2, 1)
	if st.Load() != state.InitialFetching {
		t.Fatalf("expected InitialFetching, got %s", st.Load())
	}
	f.AppendKernel(buffer.Tuple{Value: 1})
	f.AppendKernel(buffer.Tuple{Value: 2})
	if st.Load() != state.ReplayingAndFetching {
		t.Fatalf("expected ReplayingAndFetching, got %s", st.Load())
	}
	if f.RequiredSN() != 2 {
		t.Fatalf("expected requiredSN=2, got %d", f.RequiredSN())
	}

	f.BeginChunk(false, 2, 2)
	if st.Load() != state.FinalFetching {
		t.Fatalf("expected FinalFetching, got %s", st.Load())
	}
	f.AppendKernel(buffer.Tuple{Value: 3})
	f.AppendKernel(buffer.Tuple{Value: 4})
	if st.Load() != state.AllFetched {
		t.Fatalf("expected AllFetched, got %s", st.Load())
	}
	if f.RequiredSN() != 2 {
		t.Fatalf("expected requiredSN unchanged at terminal chunk, got %d", f.RequiredSN())
	}
}

func TestAppendIgnoredWhenNotAlive(t *testing.T) {
	f, pair, st, alive := newTestFeeder()
	f.Init()
	f.BeginChunk(true, 2, 1)
	alive.Store(false)
	f.AppendKernel(buffer.Tuple{Value: 1})

	if st.Load() != state.InitialFetching {
		t.Fatalf("expected no state transition while dead, got %s", st.Load())
	}
	if pair.WriterSlot().Cursor() != 0 {
		t.Fatal("expected append to be dropped while alive is false")
	}
}

func TestBeginChunkZeroCountCompletesImmediately(t *testing.T) {
	f, _, st, _ := newTestFeeder()
	f.Init()
	f.BeginChunk(false, 0, 1)

	if st.Load() != state.AllFetched {
		t.Fatalf("expected AllFetched immediately for zero-count terminal chunk, got %s", st.Load())
	}
	if f.FinalSN() != 1 {
		t.Fatalf("expected finalSN=1, got %d", f.FinalSN())
	}
}

func TestWaitUntilFetchingUnblocksOnTransition(t *testing.T) {
	f, _, _, _ := newTestFeeder()
	f.Init()

	done := make(chan struct{})
	go func() {
		f.WaitUntilFetching()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	f.BeginChunk(true, 1, 1)
	// The wait ends once the first chunk is fully admitted, i.e. on its
	// final append, not on BeginChunk alone.
	f.AppendKernel(buffer.Tuple{Value: 1})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitUntilFetching did not unblock after the first chunk was fully admitted")
	}
}

func TestWaitUntilFetchingUnblocksOnDeath(t *testing.T) {
	f, _, _, alive := newTestFeeder()
	f.Init()

	done := make(chan struct{})
	go func() {
		f.WaitUntilFetching()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	alive.Store(false)
	f.Broadcast()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitUntilFetching did not unblock after death")
	}
}
