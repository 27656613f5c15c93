package broker

import (
	"context"
	"fmt"

	"github.com/Gyro91/CBSD-Project/internal/clock"
	"github.com/Gyro91/CBSD-Project/internal/logger"
	"github.com/Gyro91/CBSD-Project/internal/transport"
	"github.com/Gyro91/CBSD-Project/internal/wire"
)

// Config holds everything the broker loop needs to bind its channels.
type Config struct {
	N          int
	RouterAddr string // client request channel
	RegAddr    string // worker registration channel
	HealthAddr string // broker health-pong channel
	Transport  transport.Config
}

// Broker drives the single-goroutine dispatch-and-voting loop described by
// the broker's admission, registration, response, and heartbeat paths. All
// mutable state lives on this goroutine; the Service Database is never
// touched from anywhere else.
type Broker struct {
	cfg     Config
	db      *ServiceDatabase
	metrics *Metrics
	clock   clock.Clock

	router *transport.RouterChannel
	reg    *transport.RouterChannel
	health *transport.PongServer

	dispatch chan dispatchEvent
	nextPort uint16
}

type dispatchEvent struct {
	service wire.ServiceType
	msg     transport.DealerMessage
}

// New binds the request and registration channels and constructs an empty
// service database for an NMR factor of cfg.N.
func New(cfg Config, m *Metrics) (*Broker, error) {
	router, err := transport.NewRouterChannel(cfg.Transport, cfg.RouterAddr)
	if err != nil {
		return nil, fmt.Errorf("broker: request channel:\n%w", err)
	}
	reg, err := transport.NewRouterChannel(cfg.Transport, cfg.RegAddr)
	if err != nil {
		router.Close()
		return nil, fmt.Errorf("broker: registration channel:\n%w", err)
	}

	var health *transport.PongServer
	if cfg.HealthAddr != "" {
		health, err = transport.NewPongServer(cfg.Transport, cfg.HealthAddr)
		if err != nil {
			router.Close()
			reg.Close()
			return nil, fmt.Errorf("broker: health channel:\n%w", err)
		}
	}

	b := &Broker{
		cfg:      cfg,
		db:       NewServiceDatabase(cfg.N),
		metrics:  m,
		clock:    clock.Real{},
		router:   router,
		reg:      reg,
		health:   health,
		dispatch: make(chan dispatchEvent, 256),
		nextPort: wire.DealerStartPort,
	}
	if m != nil {
		m.SetCohortsReadyFunc(func() float64 { return float64(len(b.db.ReadyCohorts())) })
	}
	return b, nil
}

// RouterAddr and RegAddr report the bound listen addresses, useful when
// the caller passed a ":0" port.
func (b *Broker) RouterAddr() string { return b.router.Addr() }
func (b *Broker) RegAddr() string    { return b.reg.Addr() }

// HealthAddr reports the bound health-pong address, or "" if the broker
// was configured without one.
func (b *Broker) HealthAddr() string {
	if b.health == nil {
		return ""
	}
	return b.health.Addr()
}

// Close tears down every channel the broker owns.
func (b *Broker) Close() error {
	b.router.Close()
	b.reg.Close()
	if b.health != nil {
		b.health.Close()
	}
	for _, c := range b.db.cohorts {
		if c.Dealer != nil {
			c.Dealer.Close()
		}
	}
	return nil
}

// Run drives the broker loop until ctx is cancelled. It multiplexes the
// request channel, the registration channel, every ready cohort's dispatch
// channel (fanned into one internal event channel), and a heartbeat
// ticker — the idiomatic analogue of the original's poll over a vector of
// pollitems.
func (b *Broker) Run(ctx context.Context) error {
	ticker := b.clock.NewTicker(wire.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case rm, ok := <-b.router.Inbound():
			if !ok {
				return fmt.Errorf("broker: request channel closed")
			}
			b.handleRequest(rm)

		case rm, ok := <-b.reg.Inbound():
			if !ok {
				return fmt.Errorf("broker: registration channel closed")
			}
			b.handleRegistration(rm)

		case de := <-b.dispatch:
			b.handleDispatchMessage(de)

		case <-ticker.C():
			b.handleHeartbeatTick()
		}
	}
}

func (b *Broker) handleRequest(rm transport.RouterMessage) {
	req, err := wire.DecodeRequestModule(rm.Data)
	if err != nil {
		logger.Debug("broker: dropped malformed request", "error", err)
		return
	}
	if b.metrics != nil {
		b.metrics.RequestAdmitted()
	}

	cohort, ok := b.db.Cohort(req.Service)
	if !ok || !cohort.Ready {
		b.replyNotAvailable(rm.ClientID)
		return
	}

	sm := wire.ServiceModule{
		Heartbeat:  false,
		SeqID:      cohort.RequestSeq,
		Parameters: wire.ParameterOf(req.Parameter),
	}
	cohort.RequestSeq++
	payload := sm.Encode()
	identity := wire.ClientIdentity(rm.ClientID)

	for _, id := range cohort.BoundReplicas() {
		sess, ok := cohort.SessionFor(id)
		if !ok {
			continue
		}
		if err := cohort.Dealer.SendTo(sess, identity, payload); err != nil {
			logger.Debug("broker: dispatch send failed", "service", req.Service, "replica", id, "error", err)
		}
	}

	cohort.Pending[rm.ClientID] = &ResultAccumulator{ClientID: rm.ClientID}
	cohort.NextHeartbeat.Reset(wire.HeartbeatInterval)
}

func (b *Broker) replyNotAvailable(clientID uint64) {
	if b.metrics != nil {
		b.metrics.ResponseUnavailable()
	}
	resp := wire.ResponseModule{ServiceStatus: wire.NotAvailable, Result: 0}
	if err := b.router.Reply(clientID, resp.Encode()); err != nil {
		logger.Debug("broker: not-available reply failed", "error", err)
	}
}

func (b *Broker) handleRegistration(rm transport.RouterMessage) {
	reg, err := wire.DecodeRegistrationModule(rm.Data)
	if err != nil {
		logger.Debug("broker: dropped malformed registration", "error", err)
		return
	}

	cohort := b.db.EnsureCohort(reg.Service)
	if cohort.DispatchPort == 0 {
		cohort.DispatchPort = b.allocatePort()
	}

	becameReady := cohort.Register(reg.Signature)
	if becameReady {
		if err := b.openDispatchChannel(cohort); err != nil {
			logger.Error("broker: failed to open dispatch channel", "service", reg.Service, "error", err)
			return
		}
		cohort.NextHeartbeat = clock.NewDeadline(b.clock, wire.HeartbeatInterval)
	}

	if err := b.reg.Reply(rm.ClientID, wire.EncodeDispatchPort(cohort.DispatchPort)); err != nil {
		logger.Debug("broker: registration reply failed", "error", err)
	}
}

func (b *Broker) allocatePort() uint16 {
	port := b.nextPort
	b.nextPort++
	return port
}

func (b *Broker) openDispatchChannel(c *Cohort) error {
	addr := fmt.Sprintf(":%d", c.DispatchPort)
	dealer, err := transport.NewDealerChannel(b.cfg.Transport, addr)
	if err != nil {
		return fmt.Errorf("open dispatch channel on %s:\n%w", addr, err)
	}
	c.Dealer = dealer

	go func() {
		for msg := range dealer.Inbound() {
			b.dispatch <- dispatchEvent{service: c.Service, msg: msg}
		}
	}()

	return nil
}

func (b *Broker) handleDispatchMessage(de dispatchEvent) {
	cohort, ok := b.db.Cohort(de.service)
	if !ok {
		return
	}

	reply, err := wire.DecodeServerReply(de.msg.Data)
	if err != nil {
		logger.Debug("broker: dropped malformed server reply", "service", de.service, "error", err)
		return
	}

	if reply.Heartbeat {
		if _, bound := cohort.SessionFor(reply.ID); !bound {
			cohort.BindSession(reply.ID, de.msg.Session)
			logger.Debug("broker: bound dispatch session", "service", de.service, "replica", reply.ID)
		}
		cohort.RecordPong(reply.ID)
		return
	}

	clientID, ok := wire.DecodeClientIdentity(de.msg.Identity)
	if !ok {
		logger.Debug("broker: result envelope missing client identity", "service", de.service, "replica", reply.ID)
		return
	}
	b.handleResult(cohort, clientID, reply)
}

// handleResult appends a result reply to the accumulator for clientID. The
// replica echoes back the identity frame the broker attached when it
// dispatched the request, which is how a reply is matched to its client
// even though more than one client's request can be outstanding against
// the same cohort at once.
func (b *Broker) handleResult(cohort *Cohort, clientID uint64, reply wire.ServerReply) {
	acc, ok := cohort.Pending[clientID]
	if !ok {
		logger.Debug("broker: result for no pending request", "service", cohort.Service, "client", clientID, "replica", reply.ID)
		return
	}

	acc.Replies = append(acc.Replies, reply.Result)
	if len(acc.Replies) < cohort.N {
		return
	}

	delete(cohort.Pending, clientID)

	value, decisive := Vote(acc.Replies)
	if !decisive {
		if b.metrics != nil {
			b.metrics.VoteIndecisive()
		}
		return
	}

	if b.metrics != nil {
		b.metrics.ResponseAvailable()
	}
	resp := wire.ResponseModule{ServiceStatus: wire.Available, Result: value}
	if err := b.router.Reply(clientID, resp.Encode()); err != nil {
		logger.Debug("broker: response reply failed", "error", err)
	}
}

func (b *Broker) handleHeartbeatTick() {
	for _, cohort := range b.db.ReadyCohorts() {
		if !cohort.NextHeartbeat.Expired() {
			continue
		}

		before := cohort.PopCount()
		reliable := cohort.BeginHeartbeatRound()
		if lost := before - len(reliable); lost > 0 && b.metrics != nil {
			b.metrics.ReplicaMarkedUnreliable(lost)
		}

		sm := wire.ServiceModule{Heartbeat: true, SeqID: cohort.PingSeq}
		cohort.PingSeq++
		payload := sm.Encode()
		identity := wire.HeartbeatIdentity()

		for _, id := range reliable {
			sess, ok := cohort.SessionFor(id)
			if !ok {
				continue
			}
			if err := cohort.Dealer.SendTo(sess, identity, payload); err != nil {
				logger.Debug("broker: heartbeat send failed", "service", cohort.Service, "replica", id, "error", err)
				continue
			}
			if b.metrics != nil {
				b.metrics.HeartbeatSent()
			}
		}

		cohort.NextHeartbeat.Reset(wire.HeartbeatInterval)
	}
}
