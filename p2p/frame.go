package p2p

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/drep-project/p2p-core/p2p/wire"
)

// frameHeaderAllowance is added on top of AnnouncementMaxSize to bound the
// largest legal frame: a Request/Response/Handshake carries a little
// structure besides the opaque payload, so the limit can't be exactly
// AnnouncementMaxSize.
const frameHeaderAllowance = 256

// FramedConnection wraps one Stream with length-prefixed framing: each frame
// on the wire is `u32 length (little-endian) || kind byte || payload`. It
// knows nothing about handshake state machines or peer bookkeeping; Peer
// Task owns that.
type FramedConnection struct {
	stream  Stream
	maxSize int
}

// NewFramedConnection wraps stream, bounding any single frame's payload
// (post length-prefix) to maxFrameSize bytes.
func NewFramedConnection(stream Stream, maxFrameSize int) *FramedConnection {
	return &FramedConnection{stream: stream, maxSize: maxFrameSize}
}

// ReadFrame blocks until a complete frame has arrived, or returns an error
// (including a *MessageTooLargeError for an oversize length prefix).
func (c *FramedConnection) ReadFrame() (wire.Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.stream, lenBuf[:]); err != nil {
		return wire.Frame{}, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if int(n) > c.maxSize {
		return wire.Frame{}, &MessageTooLargeError{Actual: int(n), Max: c.maxSize}
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(c.stream, body); err != nil {
		return wire.Frame{}, err
	}
	frame, err := wire.Decode(body)
	if err != nil {
		return wire.Frame{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return frame, nil
}

// WriteFrame encodes and writes f, prefixed with its little-endian u32
// length. It fails with *MessageTooLargeError before writing anything if
// the encoded frame would exceed maxSize.
func (c *FramedConnection) WriteFrame(f wire.Frame) error {
	body, err := wire.Encode(f)
	if err != nil {
		return err
	}
	if len(body) > c.maxSize {
		return &MessageTooLargeError{Actual: len(body), Max: c.maxSize}
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := c.stream.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = c.stream.Write(body)
	return err
}

// Close closes the underlying stream.
func (c *FramedConnection) Close() error { return c.stream.Close() }

// RemoteAddress reports the underlying stream's remote address.
func (c *FramedConnection) RemoteAddress() Address { return c.stream.RemoteAddress() }
