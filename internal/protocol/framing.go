package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Each frame on the wire is a 4-byte big-endian length followed by that
// many payload bytes.

// FrameHeaderSize is the length prefix size in bytes.
const FrameHeaderSize = 4

// MaxFrameSize bounds a single frame. Envelopes are small; anything
// bigger than this is a corrupt stream, not a real message.
const MaxFrameSize = 1 << 20

// ErrFrameTooLarge reports a length prefix above MaxFrameSize.
var ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum size")

// Frame prepends the length prefix to payload.
func Frame(payload []byte) []byte {
	buf := make([]byte, FrameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[:FrameHeaderSize], uint32(len(payload)))
	copy(buf[FrameHeaderSize:], payload)
	return buf
}

// Deframer reassembles frames from a byte stream. Partial trailing
// bytes stay buffered until more data arrives.
type Deframer struct {
	buf []byte
}

// Push appends data and returns every complete frame now available, in
// order. On a malformed length prefix it returns the frames extracted
// so far together with the error; the stream is not recoverable past
// that point.
func (d *Deframer) Push(data []byte) ([][]byte, error) {
	d.buf = append(d.buf, data...)

	var frames [][]byte
	for {
		if len(d.buf) < FrameHeaderSize {
			return frames, nil
		}
		n := binary.BigEndian.Uint32(d.buf[:FrameHeaderSize])
		if n > MaxFrameSize {
			return frames, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
		}
		total := FrameHeaderSize + int(n)
		if len(d.buf) < total {
			return frames, nil
		}
		frame := make([]byte, n)
		copy(frame, d.buf[FrameHeaderSize:total])
		d.buf = d.buf[total:]
		frames = append(frames, frame)
	}
}

// Pending reports how many buffered bytes await completion.
func (d *Deframer) Pending() int {
	return len(d.buf)
}
