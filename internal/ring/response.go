// Package ring implements the two bounded circular queues of §3: the
// response ring (validity bitmap + deadline-based invalidation) and the
// raw input ring (single-producer/single-consumer with writability and
// readability predicates). Both borrow the cache-conscious slot technique
// of a generic wait-free SPSC ring from the broader example pack, adapted
// here to carry a validity bit and deadline per slot instead of a bare
// sequence number.
package ring

import (
	"sync"
	"sync/atomic"
	"time"
)

// ResponseTuple is one live platform-event observation held in the
// response ring, per §3 "Response ring".
type ResponseTuple struct {
	Deadline       time.Time
	PEType         int32
	ResponseTimeUs int64
	Priv           int64
	SecondPriv     int64
}

// Response is the bounded circular queue of §3/§4.4.2, capacity R. A
// coarse lock guards the single ambiguous position where the read and
// write cursors coincide; the common case proceeds lock-free, with the
// per-slot validity flag acting as the release/acquire publication point
// between producer and consumer (see Design Notes, Open Questions).
type Response struct {
	mu       sync.Mutex
	capacity int
	tuples   []ResponseTuple
	valid    []atomic.Bool

	readCursor  atomic.Int32
	writeCursor atomic.Int32
}

// NewResponse allocates a response ring of the given fixed capacity.
func NewResponse(capacity int) *Response {
	return &Response{
		capacity: capacity,
		tuples:   make([]ResponseTuple, capacity),
		valid:    make([]atomic.Bool, capacity),
	}
}

// Match scans up to one full revolution of the ring starting at the
// current read cursor, in order, skipping invalid slots, looking for a
// slot whose tuple satisfies pred. On success it clears the slot's
// validity bit and returns true; the cursor always advances by the number
// of slots examined (§4.4.1 "the reader consumes slots in order").
func (r *Response) Match(pred func(ResponseTuple) bool) bool {
	for i := 0; i < r.capacity; i++ {
		rc := int(r.readCursor.Load())
		wc := int(r.writeCursor.Load())
		locked := rc == wc
		if locked {
			r.mu.Lock()
		}

		found := false
		if r.valid[rc].Load() { // acquire: pairs with the release store in Produce
			t := r.tuples[rc]
			if pred(t) {
				r.valid[rc].Store(false) // release: consumption publishes the slot as free
				found = true
			}
		}

		if locked {
			r.mu.Unlock()
		}
		r.readCursor.Store(int32((rc + 1) % r.capacity))
		if found {
			return true
		}
	}
	return false
}

// Produce records a live platform-event observation. Starting from the
// write cursor it probes up to one full revolution for a slot that is
// either invalid or past its deadline; if none is found it overwrites the
// write cursor's slot regardless (§4.4.2 step 2). The coarse lock is
// acquired only when the read and write cursors coincide at the moment of
// the probe.
func (r *Response) Produce(t ResponseTuple, now time.Time) {
	wc := int(r.writeCursor.Load())
	target := wc
	for i := 0; i < r.capacity; i++ {
		idx := (wc + i) % r.capacity
		if !r.valid[idx].Load() || !r.tuples[idx].Deadline.After(now) {
			target = idx
			break
		}
	}

	rc := int(r.readCursor.Load())
	locked := rc == wc
	if locked {
		r.mu.Lock()
	}

	r.tuples[target] = t // payload stores happen-before the validity release below
	r.valid[target].Store(true)

	if locked {
		r.mu.Unlock()
	}
	r.writeCursor.Store(int32((target + 1) % r.capacity))
}

// Capacity returns R.
func (r *Response) Capacity() int { return r.capacity }
