package transport

import (
	"context"
	"sync"

	"github.com/Gyro91/CBSD-Project/internal/logger"
)

// PongServer answers every inbound health exchange with an empty payload,
// the synchronous request/reply pattern spec.md §4.3 requires for the
// health channel: never multiplexed with application data, so it gets its
// own listener and its own ephemeral-stream accept loop rather than
// sharing a router or dealer channel's persistent sessions.
type PongServer struct {
	listener *Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPongServer binds addr and starts answering pings in the background.
func NewPongServer(cfg Config, addr string) (*PongServer, error) {
	l, err := Listen(cfg, addr)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &PongServer{listener: l, ctx: ctx, cancel: cancel}
	p.wg.Add(1)
	go p.acceptLoop()
	return p, nil
}

// Addr returns the bound listen address.
func (p *PongServer) Addr() string { return p.listener.Addr() }

// Close stops accepting new pings.
func (p *PongServer) Close() error {
	p.cancel()
	err := p.listener.Close()
	p.wg.Wait()
	return err
}

func (p *PongServer) acceptLoop() {
	defer p.wg.Done()
	for {
		conn, err := p.listener.Accept(p.ctx)
		if err != nil {
			return
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := Serve(p.ctx, conn, func([]byte) []byte { return nil }); err != nil {
				logger.Debug("pong server: exchange failed", "error", err)
			}
			conn.CloseWithError(0, "done")
		}()
	}
}

// Ping performs one health round trip against a PongServer's address.
func Ping(ctx context.Context, cfg Config, addr string) error {
	conn, err := Dial(ctx, cfg, addr)
	if err != nil {
		return err
	}
	defer conn.CloseWithError(0, "done")
	_, err = Exchange(ctx, conn, nil)
	return err
}
