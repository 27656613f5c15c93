// Package broker implements the dispatch-and-voting engine: the service
// database that tracks cohorts and pending requests, the plurality voter,
// and the event loop that ties them to the transport.
package broker

import (
	"github.com/Gyro91/CBSD-Project/internal/clock"
	"github.com/Gyro91/CBSD-Project/internal/transport"
	"github.com/Gyro91/CBSD-Project/internal/wire"
)

// ResultAccumulator gathers the replies of one in-flight request until all
// N replicas have answered or the request is coalesced by a newer one.
type ResultAccumulator struct {
	ClientID uint64
	Replies  []int32
}

// Cohort is the per-service record the broker maintains: the set of
// registered replicas, their believed liveness, and the requests currently
// awaiting a vote.
type Cohort struct {
	Service wire.ServiceType
	N       int

	signatures map[string]struct{}
	Ready      bool

	reliableMask    []byte
	sessionOf       map[wire.ReplicaId]*transport.Session
	pongedThisRound map[wire.ReplicaId]bool

	// PingSeq is the broker->replica heartbeat sequence, strictly
	// increasing per cohort (P4). RequestSeq is a separate per-cohort
	// counter stamped on dispatched ServiceModule.seq_id for ordinary
	// requests, so the worker's duplicate-suppression logic (P5/P6) has a
	// real value to resynchronize against; the original source leaves
	// this field unset on the request path, which only works at all
	// because nothing there actually exercises resync.
	PingSeq    uint32
	RequestSeq uint32

	Pending       map[uint64]*ResultAccumulator
	NextHeartbeat clock.Deadline

	Dealer       *transport.DealerChannel
	DispatchPort uint16
}

func newCohort(service wire.ServiceType, n int) *Cohort {
	return &Cohort{
		Service:         service,
		N:               n,
		signatures:      make(map[string]struct{}),
		reliableMask:    make([]byte, (n+7)/8),
		sessionOf:       make(map[wire.ReplicaId]*transport.Session),
		pongedThisRound: make(map[wire.ReplicaId]bool),
		Pending:         make(map[uint64]*ResultAccumulator),
	}
}

// Register records a signature for this cohort. It is idempotent: a
// signature seen before changes nothing and returns becameReady=false. The
// cohort transitions to ready exactly when it accumulates N distinct
// signatures for the first time. A distinct signature arriving once the
// cohort already holds N is rejected, per the documented policy for the
// (N+1)th registrant.
func (c *Cohort) Register(signature string) (becameReady bool) {
	if _, seen := c.signatures[signature]; seen {
		return false
	}
	if len(c.signatures) >= c.N {
		return false
	}
	c.signatures[signature] = struct{}{}
	if len(c.signatures) == c.N && !c.Ready {
		c.Ready = true
		return true
	}
	return false
}

// BindSession associates a replica id with the dispatch session it is
// using, learned from the id field of its first ServerReply rather than
// from registration (the registration handshake itself carries no id).
func (c *Cohort) BindSession(id wire.ReplicaId, sess *transport.Session) {
	c.sessionOf[id] = sess
	c.setReliable(id)
}

// SessionFor returns the dispatch session bound to a replica, if any.
func (c *Cohort) SessionFor(id wire.ReplicaId) (*transport.Session, bool) {
	sess, ok := c.sessionOf[id]
	return sess, ok
}

// ReliableReplicas returns the replica ids currently believed live.
func (c *Cohort) ReliableReplicas() []wire.ReplicaId {
	out := make([]wire.ReplicaId, 0, c.N)
	for id := range c.sessionOf {
		if c.isReliable(id) {
			out = append(out, id)
		}
	}
	return out
}

// BoundReplicas returns every replica id with a dispatch session bound,
// regardless of believed liveness. Ordinary request fan-out targets this
// set unconditionally: a missed heartbeat degrades the reliable mask but
// does not itself stop the broker from also trying a replica with a
// request, mirroring the original dispatch loop's unconditional N sends.
func (c *Cohort) BoundReplicas() []wire.ReplicaId {
	out := make([]wire.ReplicaId, 0, len(c.sessionOf))
	for id := range c.sessionOf {
		out = append(out, id)
	}
	return out
}

func (c *Cohort) setReliable(id wire.ReplicaId) {
	c.reliableMask[id/8] |= 1 << (id % 8)
}

func (c *Cohort) clearReliable(id wire.ReplicaId) {
	c.reliableMask[id/8] &^= 1 << (id % 8)
}

func (c *Cohort) isReliable(id wire.ReplicaId) bool {
	return c.reliableMask[id/8]&(1<<(id%8)) != 0
}

// PopCount returns the number of replicas currently believed live.
func (c *Cohort) PopCount() int {
	n := 0
	for _, b := range c.reliableMask {
		for b != 0 {
			n += int(b & 1)
			b >>= 1
		}
	}
	return n
}

// Functional reports whether the cohort's reliable set still meets the
// majority threshold, per the majority-threshold invariant.
func (c *Cohort) Functional() bool {
	return c.PopCount() >= wire.MajorityThreshold(c.N)
}

// RecordPong marks a replica as having answered the current heartbeat
// round.
func (c *Cohort) RecordPong(id wire.ReplicaId) {
	c.pongedThisRound[id] = true
	c.setReliable(id)
}

// BeginHeartbeatRound marks every bound replica that did not pong during
// the previous round as unreliable, then clears the round's pong tracking
// for the next cycle. It returns the replicas still considered reliable
// after the sweep.
func (c *Cohort) BeginHeartbeatRound() []wire.ReplicaId {
	for id := range c.sessionOf {
		if !c.pongedThisRound[id] {
			c.clearReliable(id)
		}
	}
	c.pongedThisRound = make(map[wire.ReplicaId]bool)
	return c.ReliableReplicas()
}

// ServiceDatabase is the broker's single-owner registry of cohorts. It is
// accessed exclusively from the broker loop's goroutine; no locking is
// used or needed.
type ServiceDatabase struct {
	n       int
	cohorts map[wire.ServiceType]*Cohort
}

// NewServiceDatabase creates an empty database for an NMR factor of n.
func NewServiceDatabase(n int) *ServiceDatabase {
	return &ServiceDatabase{n: n, cohorts: make(map[wire.ServiceType]*Cohort)}
}

// Cohort returns the cohort for a service, if one has been created.
func (db *ServiceDatabase) Cohort(service wire.ServiceType) (*Cohort, bool) {
	c, ok := db.cohorts[service]
	return c, ok
}

// EnsureCohort returns the cohort for a service, creating a fresh FORMING
// cohort on first reference.
func (db *ServiceDatabase) EnsureCohort(service wire.ServiceType) *Cohort {
	c, ok := db.cohorts[service]
	if !ok {
		c = newCohort(service, db.n)
		db.cohorts[service] = c
	}
	return c
}

// ReadyCohorts returns every cohort that has reached readiness.
func (db *ServiceDatabase) ReadyCohorts() []*Cohort {
	out := make([]*Cohort, 0, len(db.cohorts))
	for _, c := range db.cohorts {
		if c.Ready {
			out = append(out, c)
		}
	}
	return out
}
