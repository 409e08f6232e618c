// Package rawio owns discovery and lifecycle of open /dev/input/event<N>
// file descriptors, shared read-write between the replay engine (writer
// of input_event batches) and the raw input poller (reader of live kernel
// events), per §4.7.
package rawio

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/RedCarrottt/recordroid/internal/constants"
	"github.com/RedCarrottt/recordroid/internal/logging"
)

// eviocgversion is the ioctl request number for EVIOCGVERSION
// (_IOR('E', 0x01, int)); the kernel header does not export a stable Go
// constant for it so it is pinned here, mirroring how the reference
// toolkit pins its own uring opcode constants.
const eviocgversion = 0x80044501

// Registry owns a set of open device file descriptors keyed by the
// numeric suffix parsed from their device path (e.g. event3 -> 3).
type Registry struct {
	mu  sync.RWMutex
	dir string
	fds map[int]int
	log *logging.Logger
}

// AcceptDeviceName reports whether a directory entry name should be
// treated as an input device, per the device-discovery rule of §4.4/§4.5:
// the name starts with "event" and has length >= 6. A prior implementation
// of this filter used `strncmp(name, "event", strlen("event") != 0)`,
// which evaluates the boolean `strlen("event") != 0` (always true) as the
// comparison length and so only ever compares one byte; this is that
// defect's corrected intent, not a copy of it.
func AcceptDeviceName(name string) bool {
	return len(name) >= 6 && strings.HasPrefix(name, "event")
}

// ParseDeviceIndex extracts the numeric suffix from an accepted device
// name (e.g. "event12" -> 12, true). Suffixes outside
// 0..constants.MaxDeviceIndex are rejected.
func ParseDeviceIndex(name string) (int, bool) {
	if !AcceptDeviceName(name) {
		return 0, false
	}
	n, err := strconv.Atoi(name[len("event"):])
	if err != nil || n < 0 || n > constants.MaxDeviceIndex {
		return 0, false
	}
	return n, true
}

// Open scans dir for entries accepted by AcceptDeviceName, opens each
// read-write, and returns a Registry owning the resulting descriptors. A
// directory-open failure is fatal (§7); an individual device's open or
// version-ioctl failure is logged and the device is skipped (recoverable).
func Open(dir string, log *logging.Logger) (*Registry, error) {
	if log == nil {
		log = logging.Default()
	}
	entries, err := readDirNames(dir)
	if err != nil {
		return nil, fmt.Errorf("rawio: opening device directory %s: %w", dir, err)
	}

	r := &Registry{dir: dir, fds: make(map[int]int), log: log}
	for _, name := range entries {
		idx, ok := ParseDeviceIndex(name)
		if !ok {
			continue
		}
		path := dir + "/" + name
		fd, err := unix.Open(path, unix.O_RDWR, 0)
		if err != nil {
			log.Warn("failed to open input device", "path", path, "err", err)
			continue
		}
		if _, err := unix.IoctlGetInt(fd, eviocgversion); err != nil {
			log.Warn("EVIOCGVERSION failed, continuing anyway", "path", path, "err", err)
		}
		r.fds[idx] = fd
	}
	return r, nil
}

func readDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// FD returns the open file descriptor for a device index, if present.
func (r *Registry) FD(deviceIndex int) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fd, ok := r.fds[deviceIndex]
	return fd, ok
}

// All returns the currently registered device indices, sorted.
func (r *Registry) All() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, 0, len(r.fds))
	for idx := range r.fds {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Add registers a newly hot-plugged device, used by the raw input
// poller's inotify CREATE handling.
func (r *Registry) Add(deviceIndex, fd int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fds[deviceIndex] = fd
}

// Remove unregisters and returns a device's descriptor, used by the raw
// input poller's inotify DELETE handling. The caller is responsible for
// closing the returned fd.
func (r *Registry) Remove(deviceIndex int) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fd, ok := r.fds[deviceIndex]
	if ok {
		delete(r.fds, deviceIndex)
	}
	return fd, ok
}

// Close closes every owned file descriptor.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for idx, fd := range r.fds {
		if err := unix.Close(fd); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("rawio: closing device %d: %w", idx, err)
		}
	}
	r.fds = make(map[int]int)
	return firstErr
}
