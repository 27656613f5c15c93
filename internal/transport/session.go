package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/Gyro91/CBSD-Project/internal/wire"
)

// Session wraps one persistent bidirectional QUIC stream used for the
// continuous traffic of a router or dealer channel: a worker's dispatch
// connection, or a client's long-lived request connection. Writes are
// serialized through a mutex so that a goroutine-spawned reply and the
// owning event loop never interleave partial frames on the wire.
type Session struct {
	conn   quic.Connection
	stream quic.Stream
	mu     sync.Mutex
}

// Accept opens the one bidirectional stream a freshly-accepted connection
// will use for the lifetime of the session. The dispatching party calls
// this on its end; the dialing party calls Open on the other.
func Accept(ctx context.Context, conn quic.Connection) (*Session, error) {
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("accept session stream: %w", err)
	}
	return &Session{conn: conn, stream: stream}, nil
}

// Open opens the session's one bidirectional stream from the dialing side.
func Open(ctx context.Context, conn quic.Connection) (*Session, error) {
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("open session stream: %w", err)
	}
	return &Session{conn: conn, stream: stream}, nil
}

// RemoteAddr identifies the peer for logging.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// SetDeadline bounds the next read/write on the session's stream, used by
// one-shot callers (RouterRequest) that want a context timeout to actually
// cut off a reply that never arrives.
func (s *Session) SetDeadline(t time.Time) error {
	return s.stream.SetDeadline(t)
}

// WriteEnvelope writes a three-frame envelope, safe for concurrent callers.
func (s *Session) WriteEnvelope(e wire.EnvelopeFrames) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return wire.WriteEnvelope(s.stream, e)
}

// ReadEnvelope reads the next three-frame envelope. Only the session's
// owning goroutine may call this; QUIC streams have a single reader side
// in this system's usage, the same single-reader discipline the broker and
// worker event loops apply to every other channel.
func (s *Session) ReadEnvelope() (wire.EnvelopeFrames, error) {
	return wire.ReadEnvelope(s.stream)
}

// WriteFrame writes a single length-prefixed frame (no routing frames),
// used on channels that never carry identity/empty frames.
func (s *Session) WriteFrame(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return wire.WriteFrame(s.stream, payload)
}

// ReadFrame reads a single length-prefixed frame.
func (s *Session) ReadFrame() ([]byte, error) {
	return wire.ReadFrame(s.stream)
}

// Close tears down the session's stream and underlying connection.
func (s *Session) Close() error {
	s.stream.Close()
	return s.conn.CloseWithError(0, "closed")
}
