package ring

import (
	"testing"
	"time"
)

func TestResponseProduceAndMatch(t *testing.T) {
	r := NewResponse(4)
	now := time.Unix(0, 0)
	r.Produce(ResponseTuple{PEType: 7, Priv: 42, SecondPriv: 9, Deadline: now.Add(time.Minute)}, now)

	matched := r.Match(func(rt ResponseTuple) bool {
		return rt.PEType == 7 && rt.Priv == 42 && rt.SecondPriv == 9
	})
	if !matched {
		t.Fatal("expected match on produced observation")
	}

	matchedAgain := r.Match(func(rt ResponseTuple) bool {
		return rt.PEType == 7 && rt.Priv == 42 && rt.SecondPriv == 9
	})
	if matchedAgain {
		t.Fatal("expected no second match; validity bit should have been cleared")
	}
}

func TestResponseDuplicateObservationsConsumeDistinctSlots(t *testing.T) {
	r := NewResponse(4)
	now := time.Unix(0, 0)
	r.Produce(ResponseTuple{PEType: 1, Priv: 1, Deadline: now.Add(time.Minute)}, now)
	r.Produce(ResponseTuple{PEType: 1, Priv: 1, Deadline: now.Add(time.Minute)}, now)

	pred := func(rt ResponseTuple) bool { return rt.PEType == 1 && rt.Priv == 1 }
	if !r.Match(pred) {
		t.Fatal("expected first match")
	}
	if !r.Match(pred) {
		t.Fatal("expected second match to consume the duplicate observation")
	}
	if r.Match(pred) {
		t.Fatal("expected no third match")
	}
}

func TestResponseStaleSlotIsOverwritable(t *testing.T) {
	r := NewResponse(1)
	t0 := time.Unix(0, 0)
	r.Produce(ResponseTuple{PEType: 1, Deadline: t0.Add(60 * time.Second)}, t0)

	t70 := t0.Add(70 * time.Second)
	r.Produce(ResponseTuple{PEType: 2, Deadline: t70.Add(60 * time.Second)}, t70)

	if r.Match(func(rt ResponseTuple) bool { return rt.PEType == 1 }) {
		t.Fatal("stale observation should have been overwritten, not matched")
	}
	if !r.Match(func(rt ResponseTuple) bool { return rt.PEType == 2 }) {
		t.Fatal("expected the newer observation to be matchable")
	}
}

func TestRawEnqueueRespectsWritability(t *testing.T) {
	r := NewRaw(3)
	if !r.TryEnqueue(RawTuple{Value: 1}) {
		t.Fatal("expected first enqueue to succeed")
	}
	if !r.TryEnqueue(RawTuple{Value: 2}) {
		t.Fatal("expected second enqueue to succeed")
	}
	if r.TryEnqueue(RawTuple{Value: 3}) {
		t.Fatal("expected third enqueue to fail: ring must always keep one slot empty")
	}
}

func TestRawReadableThresholds(t *testing.T) {
	r := NewRaw(4)
	if r.Readable(true) || r.Readable(false) {
		t.Fatal("empty ring should not be readable")
	}
	r.TryEnqueue(RawTuple{Value: 1})
	if !r.Readable(true) {
		t.Fatal("one entry should satisfy the urgent threshold")
	}
	if r.Readable(false) {
		t.Fatal("one entry should not satisfy the normal threshold")
	}
	r.TryEnqueue(RawTuple{Value: 2})
	if !r.Readable(false) {
		t.Fatal("two entries should satisfy the normal threshold")
	}
}

func TestRawDrainDeliversInFIFOOrder(t *testing.T) {
	r := NewRaw(8)
	for i := 0; i < 3; i++ {
		r.TryEnqueue(RawTuple{Value: int32(i)})
	}

	var got []int32
	delivered := r.Drain(false, func(rt RawTuple) { got = append(got, rt.Value) })
	if delivered != 3 {
		t.Fatalf("expected 3 delivered, got %d", delivered)
	}
	for i, v := range got {
		if v != int32(i) {
			t.Fatalf("expected FIFO order, got %v", got)
		}
	}

	if r.available() != 0 {
		t.Fatalf("expected ring empty after drain, got %d available", r.available())
	}
}

func TestRawDrainBelowThresholdDeliversNothing(t *testing.T) {
	r := NewRaw(8)
	r.TryEnqueue(RawTuple{Value: 1})

	delivered := r.Drain(false, func(RawTuple) {})
	if delivered != 0 {
		t.Fatal("expected no delivery below the normal readability threshold")
	}

	delivered = r.Drain(true, func(RawTuple) {})
	if delivered != 1 {
		t.Fatal("expected urgent drain to deliver the single available tuple")
	}
}
