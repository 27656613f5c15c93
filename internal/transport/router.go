package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/quic-go/quic-go"

	"github.com/Gyro91/CBSD-Project/internal/logger"
	"github.com/Gyro91/CBSD-Project/internal/wire"
)

// RouterMessage is one inbound frame pair, tagged with the client session
// that sent it, the Go analogue of a ROUTER socket's implicit identity
// frame.
type RouterMessage struct {
	ClientID uint64
	Data     []byte
}

// RouterChannel accepts many persistent client connections and multiplexes
// their traffic onto one inbound Go channel, mirroring a ZeroMQ ROUTER
// socket: many dealers in, one poll point out. Used for the request and
// registration channels.
type RouterChannel struct {
	listener *Listener
	inbound  chan RouterMessage

	mu       sync.Mutex
	sessions map[uint64]*Session
	nextID   atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRouterChannel binds addr and starts accepting sessions in the
// background. Callers read inbound traffic from Inbound and send client
// replies through Reply.
func NewRouterChannel(cfg Config, addr string) (*RouterChannel, error) {
	l, err := Listen(cfg, addr)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	rc := &RouterChannel{
		listener: l,
		inbound:  make(chan RouterMessage, 64),
		sessions: make(map[uint64]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
	rc.wg.Add(1)
	go rc.acceptLoop()
	return rc, nil
}

// Addr returns the bound listen address.
func (rc *RouterChannel) Addr() string { return rc.listener.Addr() }

// Inbound exposes the channel's multiplexed message stream.
func (rc *RouterChannel) Inbound() <-chan RouterMessage { return rc.inbound }

// Reply sends data back on the client session identified by clientID. The
// identity frame carries clientID big-endian, matching the broker's
// documented client-id extraction even though the QUIC session already
// disambiguates the connection on its own.
func (rc *RouterChannel) Reply(clientID uint64, data []byte) error {
	rc.mu.Lock()
	sess, ok := rc.sessions[clientID]
	rc.mu.Unlock()
	if !ok {
		return fmt.Errorf("router reply: unknown client %d", clientID)
	}
	return sess.WriteEnvelope(wire.EnvelopeFrames{Identity: wire.ClientIdentity(clientID), Data: data})
}

// Close stops accepting and tears down every session.
func (rc *RouterChannel) Close() error {
	rc.cancel()
	err := rc.listener.Close()
	rc.mu.Lock()
	for _, s := range rc.sessions {
		s.Close()
	}
	rc.sessions = make(map[uint64]*Session)
	rc.mu.Unlock()
	rc.wg.Wait()
	return err
}

func (rc *RouterChannel) acceptLoop() {
	defer rc.wg.Done()
	for {
		conn, err := rc.listener.Accept(rc.ctx)
		if err != nil {
			return
		}
		rc.wg.Add(1)
		go rc.handleConn(conn)
	}
}

func (rc *RouterChannel) handleConn(conn quic.Connection) {
	defer rc.wg.Done()

	sess, err := Accept(rc.ctx, conn)
	if err != nil {
		logger.Debug("router channel: accept session failed", "error", err)
		return
	}

	id := rc.nextID.Add(1)
	rc.mu.Lock()
	rc.sessions[id] = sess
	rc.mu.Unlock()

	defer func() {
		rc.mu.Lock()
		delete(rc.sessions, id)
		rc.mu.Unlock()
		sess.Close()
	}()

	for {
		env, err := sess.ReadEnvelope()
		if err != nil {
			return
		}
		select {
		case rc.inbound <- RouterMessage{ClientID: id, Data: env.Data}:
		case <-rc.ctx.Done():
			return
		}
	}
}

// RouterRequest performs one round trip against a router channel: dial,
// open the channel's persistent stream, write one envelope, read one
// envelope back, tear the connection down. It is a convenience for
// one-shot callers (the reference client) that don't want to manage a
// long-lived Session themselves.
func RouterRequest(ctx context.Context, cfg Config, addr string, data []byte) ([]byte, error) {
	conn, err := Dial(ctx, cfg, addr)
	if err != nil {
		return nil, err
	}
	defer conn.CloseWithError(0, "done")

	sess, err := Open(ctx, conn)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		sess.SetDeadline(deadline)
	}
	if err := sess.WriteEnvelope(wire.EnvelopeFrames{Data: data}); err != nil {
		return nil, fmt.Errorf("router request: write: %w", err)
	}
	env, err := sess.ReadEnvelope()
	if err != nil {
		return nil, fmt.Errorf("router request: read: %w", err)
	}
	return env.Data, nil
}
