package wire

import (
	"bytes"
	"testing"
)

func TestRequestModuleRoundTrip(t *testing.T) {
	want := RequestModule{Service: 7, Parameter: -42}
	got, err := DecodeRequestModule(want.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestServiceModuleRoundTrip(t *testing.T) {
	want := ServiceModule{Heartbeat: true, SeqID: 123456, Parameters: ParameterOf(99)}
	got, err := DecodeServiceModule(want.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if got.Parameter() != 99 {
		t.Fatalf("parameter got %d, want 99", got.Parameter())
	}
}

func TestServerReplyRoundTrip(t *testing.T) {
	want := ServerReply{ID: 2, Heartbeat: false, Duplicated: true, Service: 9, Result: -7}
	got, err := DecodeServerReply(want.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestResponseModuleRoundTrip(t *testing.T) {
	want := ResponseModule{ServiceStatus: Available, Result: 55}
	got, err := DecodeResponseModule(want.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestRegistrationModuleRoundTrip(t *testing.T) {
	want := RegistrationModule{Signature: "worker-sig-0", Service: 3}
	enc, err := want.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeRegistrationModule(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestRegistrationModuleSignatureTooLong(t *testing.T) {
	long := make([]byte, MaxLengthSignature+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err := RegistrationModule{Signature: string(long), Service: 1}.Encode()
	if err == nil {
		t.Fatalf("expected error for oversized signature")
	}
}

func TestDispatchPortRoundTrip(t *testing.T) {
	got, err := DecodeDispatchPort(EncodeDispatchPort(6123))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != 6123 {
		t.Fatalf("got %d, want 6123", got)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := EnvelopeFrames{Identity: []byte("abc"), Data: []byte("payload")}
	if err := WriteEnvelope(&buf, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadEnvelope(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got.Identity, want.Identity) || !bytes.Equal(got.Data, want.Data) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestEnvelopeEmptyIdentity(t *testing.T) {
	var buf bytes.Buffer
	want := EnvelopeFrames{Identity: nil, Data: []byte("x")}
	if err := WriteEnvelope(&buf, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadEnvelope(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got.Identity) != 0 {
		t.Fatalf("got identity %v, want empty", got.Identity)
	}
	if !bytes.Equal(got.Data, want.Data) {
		t.Fatalf("got data %v, want %v", got.Data, want.Data)
	}
}

func TestHeartbeatIdentity(t *testing.T) {
	id := HeartbeatIdentity()
	if len(id) != LengthIDFrame {
		t.Fatalf("got length %d, want %d", len(id), LengthIDFrame)
	}
	if id[0] != 0 {
		t.Fatalf("got first byte %d, want 0", id[0])
	}
	for i := 1; i < len(id); i++ {
		if id[i] != 'a' {
			t.Fatalf("byte %d = %q, want 'a'", i, id[i])
		}
	}
}

func TestMajorityThreshold(t *testing.T) {
	cases := map[int]int{1: 1, 2: 2, 3: 2, 4: 3, 5: 3, 6: 4}
	for n, want := range cases {
		if got := MajorityThreshold(n); got != want {
			t.Errorf("MajorityThreshold(%d) = %d, want %d", n, got, want)
		}
	}
}
