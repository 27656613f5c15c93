package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/Gyro91/CBSD-Project/internal/logger"
	"github.com/Gyro91/CBSD-Project/internal/servicetable"
	"github.com/Gyro91/CBSD-Project/internal/transport"
	"github.com/Gyro91/CBSD-Project/internal/wire"
)

// workDuration simulates the cost of running a service body, standing in
// for the original's busy-wait workload; a real body's own cost dominates
// in practice, this only keeps a request from finishing suspiciously fast
// in demos and tests.
const workDuration = 500 * time.Microsecond

// dispatchRetryDelay throttles the registration retry loop while a cohort
// is still forming and its dispatch listener isn't up yet.
const dispatchRetryDelay = 100 * time.Millisecond

// errBrokerDead signals that LIVENESS consecutive heartbeat windows passed
// with no traffic on the reply channel, or that the reply channel itself
// closed under the worker: the worker's registration state
// machine transitions REGISTERED -> UNREGISTERED and re-enters
// registration against whatever broker answers next.
var errBrokerDead = errors.New("worker: broker presumed dead")

// Session is a worker's identity (replica_id, service_type) plus the state
// machine described by spec.md §4.5/§4.6: register, serve requests and
// pings over the reply channel, detect broker death, and re-register.
type Session struct {
	cfg        transport.Config
	replicaID  wire.ReplicaId
	service    wire.ServiceType
	signature  string
	brokerAddr string
	table      *servicetable.Table
}

// NewSession builds a worker session. signature is the opaque per-replica
// identity used only to deduplicate simultaneous registrations.
func NewSession(cfg transport.Config, replicaID wire.ReplicaId, service wire.ServiceType, signature, brokerAddr string, table *servicetable.Table) *Session {
	return &Session{
		cfg:        cfg,
		replicaID:  replicaID,
		service:    service,
		signature:  signature,
		brokerAddr: brokerAddr,
		table:      table,
	}
}

// HealthAddr is the deterministic local address an external health checker
// can dial for this replica: BASE + replica_id + service_type*MAX_NMR.
func (s *Session) HealthAddr() string {
	port := wire.ServerPongPort + int(s.replicaID) + int(s.service)*wire.MaxNMR
	return fmt.Sprintf(":%d", port)
}

// Run drives the session until ctx is cancelled: register, serve, and on
// broker death or registration timeout, retry. It returns only on a fatal
// registration failure (reply == 0) or ctx cancellation.
func (s *Session) Run(ctx context.Context) error {
	log := logger.With("worker", s.replicaID, "service", s.service)

	health, err := transport.NewPongServer(s.cfg, s.HealthAddr())
	if err != nil {
		return fmt.Errorf("worker: health channel:\n%w", err)
	}
	defer health.Close()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		dispatchSess, err := s.registerAndConnect(ctx, log)
		if err != nil {
			return err
		}

		log.Info("worker registered")
		err = s.serve(ctx, dispatchSess, log)
		dispatchSess.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, errBrokerDead) {
			log.Warn("broker presumed dead, re-registering")
			continue
		}
		return err
	}
}

// registerAndConnect performs the single-shot registration exchange,
// retrying on timeout (per Registrator's documented contract) and
// terminating fatally on a malformed reply.
func (s *Session) registerAndConnect(ctx context.Context, log *slog.Logger) (*transport.Session, error) {
	reg := NewRegistrator(s.cfg, s.brokerAddr)
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		port, err := reg.Register(ctx, s.signature, s.service)
		switch {
		case errors.Is(err, ErrTimeout):
			log.Warn("registration timed out, retrying")
			continue
		case errors.Is(err, ErrMalformed):
			return nil, fmt.Errorf("worker: registration:\n%w", err)
		case err != nil:
			return nil, fmt.Errorf("worker: registration:\n%w", err)
		}

		dispatchAddr := fmt.Sprintf("%s:%d", brokerHost(s.brokerAddr), port)
		sess, err := transport.Connect(ctx, s.cfg, dispatchAddr)
		if err != nil {
			// The dispatch listener only comes up once the cohort reaches
			// N distinct signatures; until then this is expected, not an
			// error worth spamming a retry loop over.
			log.Debug("dispatch not ready yet, retrying registration", "error", err)
			select {
			case <-time.After(dispatchRetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}

		// Unsolicited self-identifying pong: the dispatch session carries
		// no handshake payload of its own, so the broker learns
		// session -> replica_id from the first ServerReply it sees on the
		// channel, folded into its ordinary heartbeat-ack handling.
		hello := wire.ServerReply{ID: s.replicaID, Heartbeat: true, Service: s.service}
		if err := sess.WriteEnvelope(wire.EnvelopeFrames{Data: hello.Encode()}); err != nil {
			sess.Close()
			log.Warn("dispatch hello failed, retrying registration", "error", err)
			continue
		}
		return sess, nil
	}
}

// inboundFrame is one decoded envelope pulled off the reply channel by the
// reader goroutine.
type inboundFrame struct {
	identity []byte
	sm       wire.ServiceModule
}

// outbound is a ServerReply queued by a detached task for the main loop to
// write; the main loop is the sole writer of task-originated replies,
// though it may also write its own pongs directly (spec.md §4.5).
type outbound struct {
	identity []byte
	reply    wire.ServerReply
}

// serve runs the steady-state loop against one dispatch session: request/
// ping disambiguation, detached task offload, and liveness tracking.
func (s *Session) serve(ctx context.Context, dispatchSess *transport.Session, log *slog.Logger) error {
	inbound := make(chan inboundFrame, 16)
	readErr := make(chan error, 1)
	go func() {
		for {
			env, err := dispatchSess.ReadEnvelope()
			if err != nil {
				readErr <- err
				return
			}
			sm, err := wire.DecodeServiceModule(env.Data)
			if err != nil {
				logger.Debug("worker: dropped malformed service module", "error", err)
				continue
			}
			inbound <- inboundFrame{identity: env.Identity, sm: sm}
		}
	}()

	mailbox := make(chan outbound, 16)

	var pingID, requestID uint32
	sawTraffic := false
	missed := 0

	ticker := time.NewTicker(wire.HeartbeatInterval + wire.WCDPing)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			return fmt.Errorf("%w: reply channel closed:\n%w", errBrokerDead, err)

		case frame := <-inbound:
			sawTraffic = true
			missed = 0
			s.handleInbound(frame, &pingID, &requestID, dispatchSess, mailbox, log)

		case out := <-mailbox:
			if err := dispatchSess.WriteEnvelope(wire.EnvelopeFrames{Identity: out.identity, Data: out.reply.Encode()}); err != nil {
				log.Warn("worker: reply write failed", "error", err)
			}

		case <-ticker.C:
			if !sawTraffic {
				missed++
				if missed >= wire.Liveness {
					return errBrokerDead
				}
			} else {
				missed = 0
			}
			sawTraffic = false
		}
	}
}

// resyncPing implements the heartbeat side of the worker's seq_id
// resynchronization logic (spec.md §4.5, P5): a pingID of 0 means the
// worker has never seen a ping, so it adopts seq as its baseline; either
// way, a value matching the current expectation advances it. A mismatch
// leaves pingID untouched — the caller still replies with a pong.
func resyncPing(pingID, seq uint32) uint32 {
	if pingID == 0 {
		pingID = seq
	}
	if seq == pingID {
		pingID++
	}
	return pingID
}

// acceptRequest implements the request side of the same resync logic
// (P6): a requestID of 0 adopts seq as the baseline so the very first
// request is always accepted. A seq matching the current expectation is
// accepted and the expectation advances; anything else is a duplicate
// delivery, rejected without advancing.
func acceptRequest(requestID, seq uint32) (next uint32, accept bool) {
	if requestID == 0 {
		requestID = seq
	}
	if seq != requestID {
		return requestID, false
	}
	return requestID + 1, true
}

func (s *Session) handleInbound(frame inboundFrame, pingID, requestID *uint32, sess *transport.Session, mailbox chan<- outbound, log *slog.Logger) {
	sm := frame.sm

	if sm.Heartbeat {
		*pingID = resyncPing(*pingID, sm.SeqID)
		reply := wire.ServerReply{ID: s.replicaID, Heartbeat: true, Service: s.service}
		if err := sess.WriteEnvelope(wire.EnvelopeFrames{Identity: frame.identity, Data: reply.Encode()}); err != nil {
			log.Warn("worker: pong write failed", "error", err)
		}
		return
	}

	next, accept := acceptRequest(*requestID, sm.SeqID)
	*requestID = next
	if !accept {
		reply := wire.ServerReply{ID: s.replicaID, Heartbeat: false, Duplicated: true, Service: s.service}
		if err := sess.WriteEnvelope(wire.EnvelopeFrames{Identity: frame.identity, Data: reply.Encode()}); err != nil {
			log.Warn("worker: duplicate reply write failed", "error", err)
		}
		return
	}

	body, ok := s.table.Lookup(s.service)
	if !ok {
		log.Warn("worker: no service body registered", "service", s.service)
		return
	}

	parameter := sm.Parameter()
	replicaID := s.replicaID
	service := s.service
	identity := frame.identity
	go func() {
		time.Sleep(workDuration)
		result := body(parameter)
		mailbox <- outbound{
			identity: identity,
			reply:    wire.ServerReply{ID: replicaID, Heartbeat: false, Duplicated: false, Service: service, Result: result},
		}
	}()
}

// brokerHost strips the port off a "host:port" address so a dispatch
// address can be built against the same host with the port the broker
// allocated at registration time.
func brokerHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
