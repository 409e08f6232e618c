package buffer

import (
	"fmt"
	"sync"
)

// Slot is one replay-buffer slot: a fixed region sized at pair-init time
// plus an elastic region allocated only when an admitted chunk exceeds the
// fixed size. Exactly one of {feeder, engine} holds the lock at any instant.
type Slot struct {
	mu sync.Mutex

	fixed       []Tuple
	elastic     []Tuple
	defaultSize int

	sn     int64
	size   int
	cursor int
}

// NewSlot allocates a slot's fixed region to defaultSize.
func NewSlot(defaultSize int) *Slot {
	return &Slot{
		fixed:       make([]Tuple, defaultSize),
		defaultSize: defaultSize,
	}
}

// Lock/Unlock expose the slot's mutex directly; the feeder holds it across
// an entire chunk admission, the engine holds it across an entire
// consumption, per §4.2.
func (s *Slot) Lock()   { s.mu.Lock() }
func (s *Slot) Unlock() { s.mu.Unlock() }

// Admit sets this slot's chunk sequence number and size, resets the write
// cursor, and reallocates the elastic region only when size differs from
// the slot's previous size (the amortization policy of §9/Design Notes).
// Caller must hold the lock. size < 0 is rejected.
func (s *Slot) Admit(sn int64, size int) error {
	if size < 0 {
		return fmt.Errorf("buffer: admit rejected, size %d < 0", size)
	}
	if size != s.size {
		if size > s.defaultSize {
			s.elastic = make([]Tuple, size-s.defaultSize)
		} else {
			s.elastic = nil
		}
	}
	s.sn = sn
	s.size = size
	s.cursor = 0
	return nil
}

// Append writes into the slot at its cursor and advances the cursor by
// one. Caller must hold the lock. Returns done=true when cursor reaches
// size (end of chunk).
func (s *Slot) Append(t Tuple) (done bool) {
	s.tupleSlot(s.cursor, &t, true)
	s.cursor++
	return s.cursor == s.size
}

// TupleAt returns the tuple at the given index via the fixed/elastic
// split. Caller must hold the lock.
func (s *Slot) TupleAt(i int) Tuple {
	var t Tuple
	s.tupleSlot(i, &t, false)
	return t
}

func (s *Slot) tupleSlot(i int, t *Tuple, write bool) {
	if i < s.defaultSize {
		if write {
			s.fixed[i] = *t
		} else {
			*t = s.fixed[i]
		}
		return
	}
	j := i - s.defaultSize
	if write {
		s.elastic[j] = *t
	} else {
		*t = s.elastic[j]
	}
}

// SN returns the slot's current chunk sequence number. Caller must hold the lock.
func (s *Slot) SN() int64 { return s.sn }

// Size returns the slot's current admitted size. Caller must hold the lock.
func (s *Slot) Size() int { return s.size }

// Cursor returns the slot's current cursor. Caller must hold the lock.
func (s *Slot) Cursor() int { return s.cursor }

// ResetCursorForRead rewinds the cursor to 0 without touching size/sn,
// used by Pair.Take when handing a slot to the reader side.
func (s *Slot) ResetCursorForRead() { s.cursor = 0 }

// AdvanceRead moves the read cursor forward by one, used by the replay
// engine after dispatching the tuple at the current cursor. Caller must
// hold the lock.
func (s *Slot) AdvanceRead() { s.cursor++ }

// Done reports whether the read cursor has reached size. Caller must hold the lock.
func (s *Slot) Done() bool { return s.cursor == s.size }
