package recordroid

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewError(t *testing.T) {
	err := NewError("BEGIN_CHUNK", ErrCodeInvalidParameters, "bad size")
	require.Error(t, err)
	assert.Equal(t, "BEGIN_CHUNK", err.Op)
	assert.Equal(t, -1, err.Slot)
	assert.Equal(t, ErrCodeInvalidParameters, err.Code)
	assert.Contains(t, err.Error(), "bad size")
	assert.Contains(t, err.Error(), "op=BEGIN_CHUNK")
}

func TestNewSlotError(t *testing.T) {
	err := NewSlotError("APPEND", 1, 42, ErrCodeAllocationFailed, "elastic alloc failed")
	assert.Equal(t, 1, err.Slot)
	assert.Equal(t, int64(42), err.SN)
	assert.Contains(t, err.Error(), "slot=1")
}

func TestWrapError_Errno(t *testing.T) {
	err := WrapError("DEVICE_OPEN", syscall.ENOENT)
	require.Error(t, err)
	assert.Equal(t, ErrCodeDeviceNotFound, err.Code)
	assert.Equal(t, syscall.ENOENT, err.Errno)
}

func TestWrapError_Nested(t *testing.T) {
	inner := NewError("SCAN", ErrCodeScanFailed, "dir open failed")
	outer := WrapError("INIT", inner)
	assert.Equal(t, ErrCodeScanFailed, outer.Code)
	assert.ErrorIs(t, outer, inner)
}

func TestWrapError_Nil(t *testing.T) {
	assert.Nil(t, WrapError("X", nil))
}

func TestErrorIs(t *testing.T) {
	err := NewError("OPEN", ErrCodeDeviceNotFound, "missing")
	assert.True(t, errors.Is(err, ReplayError(ErrCodeDeviceNotFound)))
}

func TestIsCode(t *testing.T) {
	err := NewError("OPEN", ErrCodeShortWrite, "short")
	assert.True(t, IsCode(err, ErrCodeShortWrite))
	assert.False(t, IsCode(err, ErrCodeTimeout))
	assert.False(t, IsCode(errors.New("plain"), ErrCodeShortWrite))
}

func TestIsErrno(t *testing.T) {
	err := WrapError("WRITE", syscall.EACCES)
	assert.True(t, IsErrno(err, syscall.EACCES))
	assert.False(t, IsErrno(err, syscall.ENOENT))
}

func TestMapErrnoToCode(t *testing.T) {
	cases := map[syscall.Errno]ErrorCode{
		syscall.ENOENT:    ErrCodeDeviceNotFound,
		syscall.EINVAL:    ErrCodeInvalidParameters,
		syscall.EPERM:     ErrCodePermissionDenied,
		syscall.ENOMEM:    ErrCodeAllocationFailed,
		syscall.ETIMEDOUT: ErrCodeTimeout,
	}
	for errno, want := range cases {
		got := WrapError("OP", errno)
		assert.Equal(t, want, got.Code, "errno %v", errno)
	}
}
