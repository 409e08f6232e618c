// Package queue provides pooled byte buffers for the raw input poller's
// per-read input_event records, grounded on the reference toolkit's
// internal/queue buffer pool.
package queue

import (
	"sync"

	"github.com/RedCarrottt/recordroid/internal/uapi"
)

// Record-count size classes, sized for batches of 24-byte input_event
// records rather than the reference toolkit's megabyte-scale I/O
// buffers. The poller reads one record at a time and so only draws from
// the single-record class; the larger classes serve callers that need
// room for several records in one buffer.
const (
	records1   = 1
	records8   = 8
	records32  = 32
	records128 = 128
)

var globalPool = struct {
	pool1   sync.Pool
	pool8   sync.Pool
	pool32  sync.Pool
	pool128 sync.Pool
}{
	pool1:   sync.Pool{New: func() any { b := make([]byte, records1*uapi.Size); return &b }},
	pool8:   sync.Pool{New: func() any { b := make([]byte, records8*uapi.Size); return &b }},
	pool32:  sync.Pool{New: func() any { b := make([]byte, records32*uapi.Size); return &b }},
	pool128: sync.Pool{New: func() any { b := make([]byte, records128*uapi.Size); return &b }},
}

// GetRecordBuffer returns a pooled buffer sized for at least n
// input_event records. Requests above records128 are allocated directly
// rather than taken from a pool. Caller must call PutRecordBuffer when done.
func GetRecordBuffer(n int) []byte {
	size := n * uapi.Size
	switch {
	case n <= records1:
		return (*globalPool.pool1.Get().(*[]byte))[:size]
	case n <= records8:
		return (*globalPool.pool8.Get().(*[]byte))[:size]
	case n <= records32:
		return (*globalPool.pool32.Get().(*[]byte))[:size]
	case n <= records128:
		return (*globalPool.pool128.Get().(*[]byte))[:size]
	default:
		return make([]byte, size)
	}
}

// PutRecordBuffer returns a buffer to the pool its capacity belongs to.
// Buffers with a non-standard capacity (e.g. grown past records128) are
// not returned to any pool and are left for the garbage collector.
func PutRecordBuffer(buf []byte) {
	c := cap(buf)
	buf = buf[:c]
	switch c {
	case records1 * uapi.Size:
		globalPool.pool1.Put(&buf)
	case records8 * uapi.Size:
		globalPool.pool8.Put(&buf)
	case records32 * uapi.Size:
		globalPool.pool32.Put(&buf)
	case records128 * uapi.Size:
		globalPool.pool128.Put(&buf)
	}
}
