// Package constants holds the tuned magic numbers of the replay pipeline.
package constants

import "time"

// Replay buffer pair sizing.
const (
	// DefaultReplayBufferSize is the fixed-region slot count allocated at
	// pair init, before any elastic growth.
	DefaultReplayBufferSize = 256

	// KernelWriteBatchSize is the number of kernel input_event records
	// coalesced into a single device write.
	KernelWriteBatchSize = 5
)

// Response ring sizing and timing.
const (
	// ResponseRingCapacity is the fixed slot count of the response ring (R).
	ResponseRingCapacity = 100

	// ResponseDeadline is the TTL a platform-event observation is held for
	// before it becomes eligible for overwrite by a later observation.
	ResponseDeadline = 60 * time.Second

	// WaypointBackoffStart is the initial sleep between waypoint-match scans.
	WaypointBackoffStart = 1 * time.Millisecond

	// WaypointBackoffMax is the backoff ceiling; doubling saturates here.
	WaypointBackoffMax = 10 * time.Millisecond
)

// Raw input poller sizing and timing.
const (
	// RawInputRingCapacity is the fixed slot count of the raw input ring (Q).
	RawInputRingCapacity = 5000

	// PollTimeout bounds each poll(2) call in the raw input poller.
	PollTimeout = 1 * time.Second

	// DeviceDirDefault is the default directory scanned for event devices.
	DeviceDirDefault = "/dev/input"

	// MaxDeviceIndex bounds the numeric suffix accepted from device names.
	MaxDeviceIndex = 99
)

// ShortSleepThreshold is the dispatch boundary between shortSleep (busy-tolerant,
// sub-millisecond) and longSleep (delegated to the host scheduler).
const ShortSleepThreshold = 1 * time.Millisecond
