package recordroid

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds,
// covering 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks performance and operational statistics for one Engine.
type Metrics struct {
	TuplesReplayed   atomic.Uint64
	KernelWrites     atomic.Uint64 // number of batched device write() calls
	KernelWriteBytes atomic.Uint64
	KernelWriteErrors atomic.Uint64

	WaypointMatches  atomic.Uint64
	WaypointTimeouts atomic.Uint64 // skipWait invoked mid-wait

	PollerEventsIngested  atomic.Uint64
	PollerEventsDropped   atomic.Uint64 // dropped for predating the zero-time origin
	ResponseOverwrites    atomic.Uint64 // producer forced to overwrite a stale slot

	// Latency histogram buckets (cumulative counts) over waypoint wait time
	// and device write latency combined.
	LatencyBuckets [numLatencyBuckets]atomic.Uint64
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordKernelWrite records one batched device write.
func (m *Metrics) RecordKernelWrite(tuples int, bytes uint64, latencyNs uint64, success bool) {
	m.KernelWrites.Add(1)
	m.TuplesReplayed.Add(uint64(tuples))
	if success {
		m.KernelWriteBytes.Add(bytes)
	} else {
		m.KernelWriteErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordWaypointMatch records a successful waypoint match, with the total
// wait latency observed.
func (m *Metrics) RecordWaypointMatch(latencyNs uint64) {
	m.WaypointMatches.Add(1)
	m.TuplesReplayed.Add(1)
	m.recordLatency(latencyNs)
}

// RecordWaypointTimeout records a waypoint wait abandoned via skipWait.
func (m *Metrics) RecordWaypointTimeout(latencyNs uint64) {
	m.WaypointTimeouts.Add(1)
	m.TuplesReplayed.Add(1)
	m.recordLatency(latencyNs)
}

// RecordPollerEvent records one raw input event observed by the poller.
func (m *Metrics) RecordPollerEvent(dropped bool) {
	if dropped {
		m.PollerEventsDropped.Add(1)
		return
	}
	m.PollerEventsIngested.Add(1)
}

// RecordResponseOverwrite records the response-ring producer being forced
// to overwrite a stale slot rather than finding one already invalid.
func (m *Metrics) RecordResponseOverwrite() {
	m.ResponseOverwrites.Add(1)
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the engine as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics.
type MetricsSnapshot struct {
	TuplesReplayed    uint64
	KernelWrites      uint64
	KernelWriteBytes  uint64
	KernelWriteErrors uint64
	WaypointMatches   uint64
	WaypointTimeouts  uint64
	PollerEventsIngested uint64
	PollerEventsDropped  uint64
	ResponseOverwrites   uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyHistogram [numLatencyBuckets]uint64
}

// Snapshot creates a point-in-time snapshot of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		TuplesReplayed:       m.TuplesReplayed.Load(),
		KernelWrites:         m.KernelWrites.Load(),
		KernelWriteBytes:     m.KernelWriteBytes.Load(),
		KernelWriteErrors:    m.KernelWriteErrors.Load(),
		WaypointMatches:      m.WaypointMatches.Load(),
		WaypointTimeouts:     m.WaypointTimeouts.Load(),
		PollerEventsIngested: m.PollerEventsIngested.Load(),
		PollerEventsDropped:  m.PollerEventsDropped.Load(),
		ResponseOverwrites:   m.ResponseOverwrites.Load(),
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}
	return snap
}

// Observer allows pluggable observation of engine operations without
// hardening a dependency on the concrete Metrics type.
type Observer interface {
	ObserveKernelWrite(tuples int, bytes uint64, latencyNs uint64, success bool)
	ObserveWaypointMatch(latencyNs uint64, timedOut bool)
	ObservePollerEvent(dropped bool)
}

// NoOpObserver is a no-op Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveKernelWrite(int, uint64, uint64, bool) {}
func (NoOpObserver) ObserveWaypointMatch(uint64, bool)            {}
func (NoOpObserver) ObservePollerEvent(bool)                      {}

// MetricsObserver implements Observer by recording into a Metrics value.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveKernelWrite(tuples int, bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordKernelWrite(tuples, bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveWaypointMatch(latencyNs uint64, timedOut bool) {
	if timedOut {
		o.metrics.RecordWaypointTimeout(latencyNs)
		return
	}
	o.metrics.RecordWaypointMatch(latencyNs)
}

func (o *MetricsObserver) ObservePollerEvent(dropped bool) {
	o.metrics.RecordPollerEvent(dropped)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
