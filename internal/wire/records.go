package wire

import (
	"encoding/binary"
	"fmt"
)

// RequestModule is sent by a client to the broker's request channel.
// Layout: service(2 LE) | parameter(4 LE).
type RequestModule struct {
	Service   ServiceType
	Parameter int32
}

func (r RequestModule) Encode() []byte {
	buf := make([]byte, 6)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(r.Service))
	binary.LittleEndian.PutUint32(buf[2:6], uint32(r.Parameter))
	return buf
}

func DecodeRequestModule(b []byte) (RequestModule, error) {
	if len(b) != 6 {
		return RequestModule{}, fmt.Errorf("decode request module: want 6 bytes, got %d", len(b))
	}
	return RequestModule{
		Service:   ServiceType(binary.LittleEndian.Uint16(b[0:2])),
		Parameter: int32(binary.LittleEndian.Uint32(b[2:6])),
	}, nil
}

// ServiceModule is sent by the broker to a replica on a dispatch channel,
// either to deliver a request (Heartbeat=false) or to probe liveness
// (Heartbeat=true). Layout: heartbeat(1) | seq_id(4 BE) | parameters(4 LE).
type ServiceModule struct {
	Heartbeat  bool
	SeqID      uint32
	Parameters [ParamSize]byte
}

func (s ServiceModule) Encode() []byte {
	buf := make([]byte, 1+4+ParamSize)
	buf[0] = boolByte(s.Heartbeat)
	binary.BigEndian.PutUint32(buf[1:5], s.SeqID)
	copy(buf[5:5+ParamSize], s.Parameters[:])
	return buf
}

func DecodeServiceModule(b []byte) (ServiceModule, error) {
	if len(b) != 1+4+ParamSize {
		return ServiceModule{}, fmt.Errorf("decode service module: want %d bytes, got %d", 1+4+ParamSize, len(b))
	}
	var sm ServiceModule
	sm.Heartbeat = b[0] != 0
	sm.SeqID = binary.BigEndian.Uint32(b[1:5])
	copy(sm.Parameters[:], b[5:5+ParamSize])
	return sm, nil
}

// ParameterOf packs a single int32 parameter into a ServiceModule's fixed
// buffer, host-endian.
func ParameterOf(p int32) [ParamSize]byte {
	var buf [ParamSize]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(p))
	return buf
}

// Parameter unpacks the int32 parameter from a ServiceModule's fixed buffer.
func (s ServiceModule) Parameter() int32 {
	return int32(binary.LittleEndian.Uint32(s.Parameters[:]))
}

// ServerReply is sent by a replica back to the broker, either in answer to
// a heartbeat, a duplicate-suppressed request, or a completed computation.
// Layout: id(1) | heartbeat(1) | duplicated(1) | service(2 BE) | result(4 BE).
type ServerReply struct {
	ID         ReplicaId
	Heartbeat  bool
	Duplicated bool
	Service    ServiceType
	Result     int32
}

func (s ServerReply) Encode() []byte {
	buf := make([]byte, 1+1+1+2+4)
	buf[0] = byte(s.ID)
	buf[1] = boolByte(s.Heartbeat)
	buf[2] = boolByte(s.Duplicated)
	binary.BigEndian.PutUint16(buf[3:5], uint16(s.Service))
	binary.BigEndian.PutUint32(buf[5:9], uint32(s.Result))
	return buf
}

func DecodeServerReply(b []byte) (ServerReply, error) {
	if len(b) != 1+1+1+2+4 {
		return ServerReply{}, fmt.Errorf("decode server reply: want 9 bytes, got %d", len(b))
	}
	return ServerReply{
		ID:         ReplicaId(b[0]),
		Heartbeat:  b[1] != 0,
		Duplicated: b[2] != 0,
		Service:    ServiceType(binary.BigEndian.Uint16(b[3:5])),
		Result:     int32(binary.BigEndian.Uint32(b[5:9])),
	}, nil
}

// ResponseModule is the broker's answer to a client.
// Layout: service_status(1) | result(4 LE).
type ResponseModule struct {
	ServiceStatus ServiceStatus
	Result        int32
}

func (r ResponseModule) Encode() []byte {
	buf := make([]byte, 5)
	buf[0] = byte(r.ServiceStatus)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(r.Result))
	return buf
}

func DecodeResponseModule(b []byte) (ResponseModule, error) {
	if len(b) != 5 {
		return ResponseModule{}, fmt.Errorf("decode response module: want 5 bytes, got %d", len(b))
	}
	return ResponseModule{
		ServiceStatus: ServiceStatus(b[0]),
		Result:        int32(binary.LittleEndian.Uint32(b[1:5])),
	}, nil
}

// RegistrationModule is sent by a worker to the broker's registration
// channel. Layout: siglen(1) | signature(siglen bytes) | service(2 LE).
type RegistrationModule struct {
	Signature string
	Service   ServiceType
}

func (r RegistrationModule) Encode() ([]byte, error) {
	if len(r.Signature) > MaxLengthSignature {
		return nil, fmt.Errorf("encode registration module: signature %q exceeds %d bytes", r.Signature, MaxLengthSignature)
	}
	buf := make([]byte, 1+len(r.Signature)+2)
	buf[0] = byte(len(r.Signature))
	copy(buf[1:1+len(r.Signature)], r.Signature)
	binary.LittleEndian.PutUint16(buf[1+len(r.Signature):], uint16(r.Service))
	return buf, nil
}

func DecodeRegistrationModule(b []byte) (RegistrationModule, error) {
	if len(b) < 3 {
		return RegistrationModule{}, fmt.Errorf("decode registration module: too short (%d bytes)", len(b))
	}
	siglen := int(b[0])
	if siglen > MaxLengthSignature || len(b) != 1+siglen+2 {
		return RegistrationModule{}, fmt.Errorf("decode registration module: bad signature length %d", siglen)
	}
	return RegistrationModule{
		Signature: string(b[1 : 1+siglen]),
		Service:   ServiceType(binary.LittleEndian.Uint16(b[1+siglen:])),
	}, nil
}

// EncodeDispatchPort and DecodeDispatchPort carry the u16 dispatch port the
// broker hands back to a registering worker. Layout: port(2 LE).
func EncodeDispatchPort(port uint16) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, port)
	return buf
}

func DecodeDispatchPort(b []byte) (uint16, error) {
	if len(b) != 2 {
		return 0, fmt.Errorf("decode dispatch port: want 2 bytes, got %d", len(b))
	}
	return binary.LittleEndian.Uint16(b), nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
