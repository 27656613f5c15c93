package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/Gyro91/CBSD-Project/internal/logger"
	"github.com/Gyro91/CBSD-Project/internal/wire"
)

// DealerMessage is one inbound dispatch-channel envelope, tagged with the
// session it arrived on so the broker can route a later heartbeat or
// result back to the same replica. Identity carries whatever correlation
// token the broker attached on the way out (a client id, or the fixed
// heartbeat identity); a replica's job is only ever to echo it back
// unchanged on its reply, never to interpret it.
type DealerMessage struct {
	Session  *Session
	Identity []byte
	Data     []byte
}

// DealerChannel accepts persistent worker sessions for one service's
// dispatch channel and multiplexes their traffic; the number of sessions
// it accepts is not capped at the cohort size. It mirrors a ZeroMQ DEALER
// socket from the broker's side: one
// socket, many connected workers, round-trip framing preserved per
// session.
type DealerChannel struct {
	listener *Listener

	inbound chan DealerMessage

	mu       sync.Mutex
	sessions map[*Session]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDealerChannel binds addr and starts accepting worker sessions.
func NewDealerChannel(cfg Config, addr string) (*DealerChannel, error) {
	l, err := Listen(cfg, addr)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	dc := &DealerChannel{
		listener: l,
		inbound:  make(chan DealerMessage, 64),
		sessions: make(map[*Session]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	dc.wg.Add(1)
	go dc.acceptLoop()
	return dc, nil
}

// Addr returns the bound listen address.
func (dc *DealerChannel) Addr() string { return dc.listener.Addr() }

// Inbound exposes the channel's multiplexed message stream.
func (dc *DealerChannel) Inbound() <-chan DealerMessage { return dc.inbound }

// SendTo writes an envelope carrying identity to one specific worker
// session.
func (dc *DealerChannel) SendTo(sess *Session, identity, data []byte) error {
	return sess.WriteEnvelope(wire.EnvelopeFrames{Identity: identity, Data: data})
}

// Broadcast writes the same envelope to every currently connected worker
// session. The broker's heartbeat fan-out does not use it; it sends to
// each reliable replica's session with SendTo.
func (dc *DealerChannel) Broadcast(identity, data []byte) {
	dc.mu.Lock()
	sessions := make([]*Session, 0, len(dc.sessions))
	for s := range dc.sessions {
		sessions = append(sessions, s)
	}
	dc.mu.Unlock()

	for _, s := range sessions {
		if err := s.WriteEnvelope(wire.EnvelopeFrames{Identity: identity, Data: data}); err != nil {
			logger.Debug("dealer channel: broadcast to session failed", "error", err)
		}
	}
}

// Sessions returns a snapshot of the currently connected worker sessions.
func (dc *DealerChannel) Sessions() []*Session {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	out := make([]*Session, 0, len(dc.sessions))
	for s := range dc.sessions {
		out = append(out, s)
	}
	return out
}

// Close stops accepting and tears down every session.
func (dc *DealerChannel) Close() error {
	dc.cancel()
	err := dc.listener.Close()
	dc.mu.Lock()
	for s := range dc.sessions {
		s.Close()
	}
	dc.sessions = make(map[*Session]struct{})
	dc.mu.Unlock()
	dc.wg.Wait()
	return err
}

func (dc *DealerChannel) acceptLoop() {
	defer dc.wg.Done()
	for {
		conn, err := dc.listener.Accept(dc.ctx)
		if err != nil {
			return
		}
		dc.wg.Add(1)
		go dc.handleConn(conn)
	}
}

func (dc *DealerChannel) handleConn(conn quic.Connection) {
	defer dc.wg.Done()

	sess, err := Accept(dc.ctx, conn)
	if err != nil {
		logger.Debug("dealer channel: accept session failed", "error", err)
		return
	}

	dc.mu.Lock()
	dc.sessions[sess] = struct{}{}
	dc.mu.Unlock()

	defer func() {
		dc.mu.Lock()
		delete(dc.sessions, sess)
		dc.mu.Unlock()
		sess.Close()
	}()

	for {
		env, err := sess.ReadEnvelope()
		if err != nil {
			return
		}
		select {
		case dc.inbound <- DealerMessage{Session: sess, Identity: env.Identity, Data: env.Data}:
		case <-dc.ctx.Done():
			return
		}
	}
}

// Connect dials a dealer channel from the worker side, opening the one
// persistent stream it will use for the lifetime of its dispatch session.
func Connect(ctx context.Context, cfg Config, addr string) (*Session, error) {
	conn, err := Dial(ctx, cfg, addr)
	if err != nil {
		return nil, fmt.Errorf("connect dealer: %w", err)
	}
	sess, err := Open(ctx, conn)
	if err != nil {
		conn.CloseWithError(1, "open failed")
		return nil, err
	}
	return sess, nil
}
