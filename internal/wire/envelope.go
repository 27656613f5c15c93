package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameSize bounds a single frame of an envelope; none of the fixed
// records defined in this package come close, it only guards against a
// corrupt length prefix driving an unbounded allocation.
const maxFrameSize = 1 << 20

const lengthPrefixSize = 4

// EnvelopeFrames is the fixed three-frame unit exchanged on every channel:
// an identity frame, an empty separator frame, and a data frame. Request
// and dispatch channels always carry all three; the identity frame is
// empty on ephemeral request/reply exchanges that never needed routing.
type EnvelopeFrames struct {
	Identity []byte
	Data     []byte
}

// WriteEnvelope writes the three frames of e to w, each as a 4-byte
// big-endian length prefix followed by the payload. The empty separator
// frame carries no payload and is still written, to keep the frame count
// on the wire matching the routing layout.
func WriteEnvelope(w io.Writer, e EnvelopeFrames) error {
	if err := writeFrame(w, e.Identity); err != nil {
		return fmt.Errorf("write envelope: identity frame:\n%w", err)
	}
	if err := writeFrame(w, nil); err != nil {
		return fmt.Errorf("write envelope: empty frame:\n%w", err)
	}
	if err := writeFrame(w, e.Data); err != nil {
		return fmt.Errorf("write envelope: data frame:\n%w", err)
	}
	return nil
}

// ReadEnvelope reads the three frames of an envelope from r.
func ReadEnvelope(r io.Reader) (EnvelopeFrames, error) {
	identity, err := readFrame(r)
	if err != nil {
		return EnvelopeFrames{}, fmt.Errorf("read envelope: identity frame:\n%w", err)
	}
	if _, err := readFrame(r); err != nil {
		return EnvelopeFrames{}, fmt.Errorf("read envelope: empty frame:\n%w", err)
	}
	data, err := readFrame(r)
	if err != nil {
		return EnvelopeFrames{}, fmt.Errorf("read envelope: data frame:\n%w", err)
	}
	return EnvelopeFrames{Identity: identity, Data: data}, nil
}

// WriteFrame and ReadFrame expose the single length-prefixed frame used by
// channels that never carry routing frames (health pings). Router and
// dealer channel traffic, client replies included, goes through
// WriteEnvelope/ReadEnvelope.
func WriteFrame(w io.Writer, payload []byte) error {
	return writeFrame(w, payload)
}

func ReadFrame(r io.Reader) ([]byte, error) {
	return readFrame(r)
}

func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("frame size %d exceeds limit %d", n, maxFrameSize)
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
