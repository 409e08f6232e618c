package recordroid

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// Error represents a structured replay-engine error with context and
// errno mapping, grounded on the reference toolkit's errors.go.
type Error struct {
	Op    string    // Operation that failed (e.g. "BEGIN_CHUNK", "DEVICE_OPEN")
	Slot  int       // Replay-buffer slot number (-1 if not applicable)
	SN    int64     // Chunk sequence number (0 if not applicable)
	Code  ErrorCode // High-level error category
	Errno syscall.Errno
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Slot >= 0 {
		parts = append(parts, fmt.Sprintf("slot=%d", e.Slot))
	}
	if e.SN != 0 {
		parts = append(parts, fmt.Sprintf("sn=%d", e.SN))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("recordroid: %s (%s)", msg, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("recordroid: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if le, ok := target.(ReplayError); ok {
		return e.Code == ErrorCode(le)
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode represents a high-level error category.
type ErrorCode string

const (
	ErrCodeInvalidParameters ErrorCode = "invalid parameters"
	ErrCodeDeviceNotFound    ErrorCode = "device not found"
	ErrCodeDeviceOpenFailed  ErrorCode = "device open failed"
	ErrCodeShortWrite        ErrorCode = "short write to device"
	ErrCodeDirOpenFailed     ErrorCode = "device directory open failed"
	ErrCodeAllocationFailed  ErrorCode = "buffer allocation failed"
	ErrCodePermissionDenied  ErrorCode = "permission denied"
	ErrCodeTimeout           ErrorCode = "timeout"
	ErrCodeIOError           ErrorCode = "I/O error"
	ErrCodeInotifyFailed     ErrorCode = "inotify init failed"
	ErrCodeScanFailed        ErrorCode = "device scan failed"
)

// ReplayError is a simple sentinel error type, kept for straightforward
// equality checks against the legacy-style error constants below.
type ReplayError string

func (e ReplayError) Error() string { return string(e) }

const (
	ErrInvalidParameters ReplayError = "invalid parameters"
	ErrDeviceNotFound    ReplayError = "device not found"
	ErrDeviceOpenFailed  ReplayError = "device open failed"
)

// NewError creates a new structured error.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Slot: -1, Code: code, Msg: msg}
}

// NewSlotError creates a new slot-specific structured error.
func NewSlotError(op string, slot int, sn int64, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Slot: slot, SN: sn, Code: code, Msg: msg}
}

// WrapError wraps an existing error with recordroid context, mapping
// syscall errnos to a high-level code.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if re, ok := inner.(*Error); ok {
		return &Error{Op: op, Slot: re.Slot, SN: re.SN, Code: re.Code, Errno: re.Errno, Msg: re.Msg, Inner: re.Inner}
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Slot: -1, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Slot: -1, Code: ErrCodeIOError, Msg: inner.Error(), Inner: inner}
}

func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.ENOENT:
		return ErrCodeDeviceNotFound
	case syscall.EINVAL, syscall.E2BIG:
		return ErrCodeInvalidParameters
	case syscall.EPERM, syscall.EACCES:
		return ErrCodePermissionDenied
	case syscall.ENOMEM, syscall.ENOSPC:
		return ErrCodeAllocationFailed
	case syscall.ETIMEDOUT:
		return ErrCodeTimeout
	default:
		return ErrCodeIOError
	}
}

// IsCode reports whether err carries the given ErrorCode.
func IsCode(err error, code ErrorCode) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsErrno reports whether err carries the given errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Errno == errno
	}
	return false
}
