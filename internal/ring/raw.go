package ring

import "sync"

// RawTuple is one raw kernel input_event observed by the poller, tagged
// with its receive timestamp and originating device, per §3 "Raw input
// ring".
type RawTuple struct {
	TvSec       int64
	TvUsec      int64
	Type        uint16
	Code        uint16
	Value       int32
	DeviceIndex int
}

// Raw is the single-producer/single-consumer ring of §3/§4.5, capacity Q.
// The mutex guards only cursor reads and updates; the data slots
// themselves are unguarded, safety coming from the writability and
// readability predicates plus the single-writer/single-reader discipline.
type Raw struct {
	mu          sync.Mutex
	capacity    int
	data        []RawTuple
	readCursor  int
	writeCursor int
}

// NewRaw allocates a raw input ring of the given fixed capacity.
func NewRaw(capacity int) *Raw {
	return &Raw{capacity: capacity, data: make([]RawTuple, capacity)}
}

// TryEnqueue attempts to write one tuple at the write cursor. It returns
// false when the ring is full per the writability predicate (at least one
// empty slot is always kept so write never catches read); the poller
// retries by spin-waiting on TryEnqueue.
func (r *Raw) TryEnqueue(t RawTuple) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	gap := (r.readCursor - r.writeCursor + r.capacity) % r.capacity
	if gap == 1 {
		return false
	}
	r.data[r.writeCursor] = t
	r.writeCursor = (r.writeCursor + 1) % r.capacity
	return true
}

// available returns the number of unread tuples currently in the ring.
func (r *Raw) available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (r.writeCursor - r.readCursor + r.capacity) % r.capacity
}

// Readable reports whether the ring has enough entries to drain: at least
// 2 for a normal chunk, or at least 1 for an urgent chunk.
func (r *Raw) Readable(urgent bool) bool {
	threshold := 2
	if urgent {
		threshold = 1
	}
	return r.available() >= threshold
}

// Drain delivers every currently available tuple to fn, in FIFO order,
// provided the readability threshold for urgent is met; otherwise it
// delivers nothing. It returns the count of tuples delivered.
func (r *Raw) Drain(urgent bool, fn func(RawTuple)) int {
	r.mu.Lock()
	threshold := 2
	if urgent {
		threshold = 1
	}
	n := (r.writeCursor - r.readCursor + r.capacity) % r.capacity
	if n < threshold {
		r.mu.Unlock()
		return 0
	}
	rc, wc := r.readCursor, r.writeCursor
	r.mu.Unlock()

	count := 0
	for rc != wc {
		fn(r.data[rc])
		rc = (rc + 1) % r.capacity
		count++
	}

	r.mu.Lock()
	r.readCursor = rc
	r.mu.Unlock()
	return count
}
