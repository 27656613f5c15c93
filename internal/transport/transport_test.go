package transport

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/Gyro91/CBSD-Project/internal/wire"
)

func TestRouterChannelRoundTrip(t *testing.T) {
	rc, err := NewRouterChannel(Config{}, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("new router channel: %v", err)
	}
	defer rc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Dial(ctx, Config{}, rc.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseWithError(0, "done")

	sess, err := Open(ctx, conn)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}

	want := []byte("hello router")
	if err := sess.WriteEnvelope(wire.EnvelopeFrames{Data: want}); err != nil {
		t.Fatalf("write envelope: %v", err)
	}

	msg := <-rc.Inbound()
	if !bytes.Equal(msg.Data, want) {
		t.Fatalf("got %q, want %q", msg.Data, want)
	}

	reply := []byte("hello client")
	if err := rc.Reply(msg.ClientID, reply); err != nil {
		t.Fatalf("reply: %v", err)
	}

	env, err := sess.ReadEnvelope()
	if err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	if !bytes.Equal(env.Data, reply) {
		t.Fatalf("got %q, want %q", env.Data, reply)
	}
}

func TestDealerChannelBroadcast(t *testing.T) {
	dc, err := NewDealerChannel(Config{}, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("new dealer channel: %v", err)
	}
	defer dc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := Connect(ctx, Config{}, dc.Addr())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	// Give the accept loop a moment to register the session.
	time.Sleep(50 * time.Millisecond)

	dc.Broadcast(wire.HeartbeatIdentity(), []byte("ping"))

	env, err := sess.ReadEnvelope()
	if err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	if string(env.Data) != "ping" {
		t.Fatalf("got %q, want %q", env.Data, "ping")
	}
	if !bytes.Equal(env.Identity, wire.HeartbeatIdentity()) {
		t.Fatalf("got identity %v, want heartbeat identity", env.Identity)
	}
}

func TestExchangeEphemeral(t *testing.T) {
	l, err := Listen(Config{}, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverDone := make(chan error, 1)
	go func() {
		conn, err := l.Accept(ctx)
		if err != nil {
			serverDone <- err
			return
		}
		serverDone <- Serve(ctx, conn, func(req []byte) []byte {
			return append([]byte("echo:"), req...)
		})
	}()

	conn, err := Dial(ctx, Config{}, l.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseWithError(0, "done")

	resp, err := Exchange(ctx, conn, []byte("ping"))
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if string(resp) != "echo:ping" {
		t.Fatalf("got %q, want %q", resp, "echo:ping")
	}
	if err := <-serverDone; err != nil {
		t.Fatalf("serve: %v", err)
	}
}

func TestRouterRequestHelper(t *testing.T) {
	rc, err := NewRouterChannel(Config{}, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("new router channel: %v", err)
	}
	defer rc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		msg := <-rc.Inbound()
		rc.Reply(msg.ClientID, append([]byte("got:"), msg.Data...))
	}()

	resp, err := RouterRequest(ctx, Config{}, rc.Addr(), []byte("hi"))
	if err != nil {
		t.Fatalf("router request: %v", err)
	}
	if string(resp) != "got:hi" {
		t.Fatalf("got %q, want %q", resp, "got:hi")
	}
}
