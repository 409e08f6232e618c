// Package poller implements the raw input poller of §4.5: a single
// worker multiplexes poll(2) across every open /dev/input/event<N> fd
// plus an inotify watch for hot-plug, enqueuing observed input_event
// records into a bounded ring for later draining.
package poller

import (
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/RedCarrottt/recordroid/internal/logging"
	"github.com/RedCarrottt/recordroid/internal/queue"
	"github.com/RedCarrottt/recordroid/internal/rawio"
	"github.com/RedCarrottt/recordroid/internal/ring"
)

// NowFunc returns the current monotonic microsecond timestamp, injected
// so tests can supply a deterministic source (mirrors clock.Clock.NowMicros
// without requiring a full Clock for this single call site).
type NowFunc func() int64

// Poller is the multi-device monitor of §4.5.
type Poller struct {
	dir      string
	registry *rawio.Registry
	ring     *ring.Raw
	alive    *atomic.Bool
	now      NowFunc
	log      *logging.Logger

	inotifyFd int
	zeroTime  int64
}

// New constructs a Poller over a shared device registry and raw ring.
// The registry must already be open (§4.7); the poller adds/removes
// entries from it as devices are hot-plugged.
func New(dir string, registry *rawio.Registry, r *ring.Raw, alive *atomic.Bool, now NowFunc, log *logging.Logger) *Poller {
	if log == nil {
		log = logging.Default()
	}
	return &Poller{dir: dir, registry: registry, ring: r, alive: alive, now: now, log: log}
}

// Run initializes the inotify watch and loops polling every registered
// device fd plus the watch fd until alive becomes false. It captures the
// zero-time origin once at start; events observed before it are dropped
// (§4.5).
func (p *Poller) Run(onEvent func(dropped bool)) error {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK)
	if err != nil {
		return fmt.Errorf("poller: inotify init: %w", err)
	}
	p.inotifyFd = fd
	defer unix.Close(fd)

	if _, err := unix.InotifyAddWatch(fd, p.dir, unix.IN_CREATE|unix.IN_DELETE); err != nil {
		return fmt.Errorf("poller: inotify watch on %s: %w", p.dir, err)
	}

	p.zeroTime = p.now()

	for p.alive.Load() {
		fds := p.buildPollSet()
		n, err := unix.Poll(fds, 1000)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			p.log.Warn("poll failed", "err", err)
			continue
		}
		if n == 0 {
			continue
		}

		for i, pfd := range fds {
			if pfd.Revents == 0 {
				continue
			}
			if i == 0 {
				p.drainInotify()
				continue
			}
			if pfd.Revents&unix.POLLIN != 0 {
				p.readOneEvent(int(pfd.Fd), onEvent)
			}
		}
	}
	return nil
}

func (p *Poller) buildPollSet() []unix.PollFd {
	devices := p.registry.All()
	fds := make([]unix.PollFd, 0, len(devices)+1)
	fds = append(fds, unix.PollFd{Fd: int32(p.inotifyFd), Events: unix.POLLIN})
	for _, idx := range devices {
		fd, ok := p.registry.FD(idx)
		if !ok {
			continue
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}
	return fds
}

// drainInotify reads and processes CREATE/DELETE events against the
// shared device registry; a short read interrupted by EINTR is
// recoverable per §7.
func (p *Poller) drainInotify() {
	buf := make([]byte, unix.SizeofInotifyEvent+unix.NAME_MAX+1)
	n, err := unix.Read(p.inotifyFd, buf)
	if err != nil {
		if err != unix.EINTR && err != unix.EAGAIN {
			p.log.Warn("inotify read failed", "err", err)
		}
		return
	}

	offset := 0
	for offset+unix.SizeofInotifyEvent <= n {
		mask := le32(buf[offset+4 : offset+8])
		nameLen := int(le32(buf[offset+12 : offset+16]))
		nameStart := offset + unix.SizeofInotifyEvent
		name := ""
		if nameLen > 0 && nameStart+nameLen <= n {
			name = cString(buf[nameStart : nameStart+nameLen])
		}
		offset = nameStart + nameLen

		idx, ok := rawio.ParseDeviceIndex(name)
		if !ok {
			continue
		}
		switch {
		case mask&unix.IN_CREATE != 0:
			path := p.dir + "/" + name
			devFd, err := unix.Open(path, unix.O_RDWR, 0)
			if err != nil {
				p.log.Warn("hot-plug open failed", "path", path, "err", err)
				continue
			}
			p.registry.Add(idx, devFd)
		case mask&unix.IN_DELETE != 0:
			if devFd, ok := p.registry.Remove(idx); ok {
				unix.Close(devFd)
			}
		}
	}
}

// readOneEvent reads a single input_event from fd, synthesizes a raw
// ring tuple, and spin-enqueues it. Events predating the poller's
// zero-time origin are dropped (§4.5).
func (p *Poller) readOneEvent(fd int, onEvent func(dropped bool)) {
	rec := queue.GetRecordBuffer(1)
	defer queue.PutRecordBuffer(rec)
	n, err := unix.Read(fd, rec)
	if err != nil || n != len(rec) {
		return
	}

	now := p.now()
	if now < p.zeroTime {
		if onEvent != nil {
			onEvent(true)
		}
		return
	}

	idx := deviceIndexForFD(p.registry, fd)
	t := ring.RawTuple{
		TvSec:       now / 1_000_000,
		TvUsec:      now % 1_000_000,
		Type:        le16(rec[16:18]),
		Code:        le16(rec[18:20]),
		Value:       int32(le32(rec[20:24])),
		DeviceIndex: idx,
	}

	for !p.ring.TryEnqueue(t) {
		if !p.alive.Load() {
			return
		}
		time.Sleep(time.Microsecond)
	}
	if onEvent != nil {
		onEvent(false)
	}
}

func deviceIndexForFD(r *rawio.Registry, fd int) int {
	for _, idx := range r.All() {
		if f, ok := r.FD(idx); ok && f == fd {
			return idx
		}
	}
	return -1
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
