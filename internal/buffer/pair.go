package buffer

import "sync/atomic"

// Pair holds exactly two replay-buffer slots, alternated between a feeder
// writer and the replay-engine reader per §3 "Buffer pair".
type Pair struct {
	slots [2]*Slot

	readerSlot   atomic.Int32 // slot currently being consumed by the engine
	nextReadSlot atomic.Int32 // slot the engine will Take() next
	writerSlot   atomic.Int32 // slot the feeder is currently filling
}

// NewPair allocates both slots' fixed storage to defaultSize and sets all
// three cursors to slot 0.
func NewPair(defaultSize int) *Pair {
	return &Pair{
		slots: [2]*Slot{NewSlot(defaultSize), NewSlot(defaultSize)},
	}
}

// WriterSlot returns the slot the feeder should admit/append into.
func (p *Pair) WriterSlot() *Slot { return p.slots[p.writerSlot.Load()] }

// WriterIndex returns the index of the current writer slot.
func (p *Pair) WriterIndex() int { return int(p.writerSlot.Load()) }

// AdvanceWriter flips the writer slot to the other half of the pair,
// called by the feeder once a chunk's final tuple has been appended.
func (p *Pair) AdvanceWriter() {
	p.writerSlot.Store(1 - p.writerSlot.Load())
}

// Take acquires the reader side: picks slot nextReadSlot, advances
// readerSlot := nextReadSlot, nextReadSlot := 1 - nextReadSlot, locks the
// picked slot and resets its cursor for reading. Returns the locked slot;
// callers must Unlock() it once consumption of the slot completes.
func (p *Pair) Take() *Slot {
	next := p.nextReadSlot.Load()
	p.readerSlot.Store(next)
	p.nextReadSlot.Store(1 - next)

	slot := p.slots[next]
	slot.Lock()
	slot.ResetCursorForRead()
	return slot
}

// ReaderIndex returns the index of the slot currently (or most recently)
// handed to the reader via Take.
func (p *Pair) ReaderIndex() int { return int(p.readerSlot.Load()) }

// CurrentReaderSlot returns the slot currently (or most recently) handed
// to the reader, for progress snapshots (§4.6). Callers other than the
// replay engine itself must treat the returned slot's mutable fields
// (cursor, size, sn) as a best-effort snapshot, not a locked read.
func (p *Pair) CurrentReaderSlot() *Slot { return p.slots[p.readerSlot.Load()] }
