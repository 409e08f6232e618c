package uapi

import (
	"encoding/binary"
	"errors"
)

// ErrInsufficientData indicates a buffer too short to unmarshal a record.
var ErrInsufficientData = errors.New("uapi: insufficient data")

// Marshal encodes an InputEvent into its 24-byte wire form.
func Marshal(e *InputEvent) []byte {
	buf := make([]byte, Size)
	MarshalInto(buf, e)
	return buf
}

// MarshalInto encodes an InputEvent into a caller-supplied buffer, which
// must be at least Size bytes. Used by the batch writer to avoid an
// allocation per tuple.
func MarshalInto(buf []byte, e *InputEvent) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.TimeSec))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(e.TimeUsec))
	binary.LittleEndian.PutUint16(buf[16:18], e.Type)
	binary.LittleEndian.PutUint16(buf[18:20], e.Code)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(e.Value))
}

// Unmarshal decodes a 24-byte wire record into e.
func Unmarshal(data []byte, e *InputEvent) error {
	if len(data) < Size {
		return ErrInsufficientData
	}
	e.TimeSec = int64(binary.LittleEndian.Uint64(data[0:8]))
	e.TimeUsec = int64(binary.LittleEndian.Uint64(data[8:16]))
	e.Type = binary.LittleEndian.Uint16(data[16:18])
	e.Code = binary.LittleEndian.Uint16(data[18:20])
	e.Value = int32(binary.LittleEndian.Uint32(data[20:24]))
	return nil
}
