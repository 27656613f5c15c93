// Package wire defines the fixed-layout envelope and record formats
// exchanged between clients, the broker, and workers, along with the
// protocol constants that govern timing and sizing across the system.
package wire

import (
	"encoding/binary"
	"time"
)

// ServiceType identifies a computation (0..K-1); the body function itself
// is resolved out of scope.
type ServiceType uint16

// ReplicaId identifies one copy within a service cohort, in [0, N).
type ReplicaId uint8

// ServiceStatus reports whether a cohort could be reached for a request.
type ServiceStatus uint8

const (
	NotAvailable ServiceStatus = 0
	Available    ServiceStatus = 1
)

// Protocol constants, authoritative per the broker/worker contract.
const (
	NumFrames  = 3
	IDFrame    = 0
	EmptyFrame = 1
	DataFrame  = 2
	Envelope   = NumFrames

	MaxLengthSignature = 32
	MaxNMR             = 3
	ParamSize           = 4

	// LengthIDFrame is the size, in bytes, of the fixed non-routable
	// identity frame the broker stamps on heartbeats it originates.
	LengthIDFrame = 5

	HeartbeatInterval   = 2 * time.Second
	WCDPing             = 1 * time.Second
	Liveness            = 3
	RegistrationTimeout = 5 * time.Second

	DealerStartPort  = 6100
	BrokerPongPort   = 6200
	ServerPongPort   = 7000
)

// HeartbeatIdentity is the fixed, non-routable identity frame the broker
// stamps on heartbeats it emits to replicas: byte 0 is zero, the remainder
// is 'a'. It carries no addressing meaning in this transport (dispatch
// sessions are addressed directly) and exists purely so the envelope on the
// wire matches the documented layout.
func HeartbeatIdentity() []byte {
	id := make([]byte, LengthIDFrame)
	for i := 1; i < LengthIDFrame; i++ {
		id[i] = 'a'
	}
	return id
}

// MajorityThreshold returns the minimum popcount of a cohort's reliable_mask
// required for the cohort to be considered functional: ceil((n+1)/2).
func MajorityThreshold(n int) int {
	return (n + 2) / 2
}

// ClientIdentity encodes a client id as the envelope identity frame the
// broker attaches to a dispatched request. A replica's transport layer
// never inspects this frame, but it echoes it back unchanged on the
// ServerReply answering that request, the same way the identity frame a
// ROUTER/DEALER pair threads through a REP socket never needs the
// application code in between to touch it. That echo is what lets the
// broker tell which pending client a given reply belongs to, since more
// than one client's request can be outstanding against the same cohort at
// once.
func ClientIdentity(clientID uint64) []byte {
	id := make([]byte, 8)
	binary.BigEndian.PutUint64(id, clientID)
	return id
}

// DecodeClientIdentity decodes an identity frame produced by ClientIdentity.
// It fails closed on any frame of the wrong length, including the fixed
// HeartbeatIdentity frame a broker-originated ping carries.
func DecodeClientIdentity(b []byte) (uint64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(b), true
}
