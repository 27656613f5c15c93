package transport

import (
	"context"
	"fmt"

	"github.com/quic-go/quic-go"

	"github.com/Gyro91/CBSD-Project/internal/wire"
)

// Exchange opens a fresh bidirectional stream, writes one frame, reads one
// frame back, and closes the stream. It backs the health-checker's
// ping/pong traffic, which the design keeps off the persistent router and
// dealer streams entirely so liveness probing never queues behind
// application data.
func Exchange(ctx context.Context, conn quic.Connection, payload []byte) ([]byte, error) {
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange: open stream: %w", err)
	}
	defer stream.Close()

	if deadline, ok := ctx.Deadline(); ok {
		stream.SetDeadline(deadline)
	}

	if err := wire.WriteFrame(stream, payload); err != nil {
		return nil, fmt.Errorf("exchange: write: %w", err)
	}
	resp, err := wire.ReadFrame(stream)
	if err != nil {
		return nil, fmt.Errorf("exchange: read: %w", err)
	}
	return resp, nil
}

// Serve answers exactly one ephemeral exchange arriving on a freshly
// accepted bidirectional stream, handing the request payload to handle and
// writing back whatever it returns.
func Serve(ctx context.Context, conn quic.Connection, handle func([]byte) []byte) error {
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		return fmt.Errorf("serve: accept stream: %w", err)
	}
	defer stream.Close()

	req, err := wire.ReadFrame(stream)
	if err != nil {
		return fmt.Errorf("serve: read: %w", err)
	}
	resp := handle(req)
	if err := wire.WriteFrame(stream, resp); err != nil {
		return fmt.Errorf("serve: write: %w", err)
	}
	return nil
}
