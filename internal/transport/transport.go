// Package transport carries the broker/worker/client wire protocol over
// QUIC, standing in for the ZeroMQ ROUTER/DEALER/REQ/REP sockets the
// original design assumed. Persistent connections get one long-lived
// bidirectional stream (router and dealer channels); one-off exchanges
// (health pings, client requests) get a fresh stream per call.
package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/quic-go/quic-go"
)

const alpnProtocol = "nmrbroker/1"

const (
	maxIdleTimeout  = 30 * time.Second
	keepAlivePeriod = 10 * time.Second
)

// Config configures a Listener or an outbound Dial.
type Config struct {
	// Seed is an optional ed25519 seed; a fresh key is generated when nil.
	Seed []byte
}

func tlsConfig(priv ed25519.PrivateKey) (*tls.Config, error) {
	cert, err := generateCertificate(priv)
	if err != nil {
		return nil, fmt.Errorf("generate certificate: %w", err)
	}
	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		ClientAuth:         tls.RequireAnyClientCert,
		InsecureSkipVerify: true,
		NextProtos:         []string{alpnProtocol},
	}, nil
}

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  maxIdleTimeout,
		KeepAlivePeriod: keepAlivePeriod,
	}
}

// Listener accepts incoming QUIC connections on one address; each accepted
// connection carries exactly one logical channel (a worker's dispatch
// session, or a client's request connection).
type Listener struct {
	ql *quic.Listener
}

// Listen binds addr and starts accepting QUIC connections.
func Listen(cfg Config, addr string) (*Listener, error) {
	priv, err := loadOrGenerateKey(cfg.Seed)
	if err != nil {
		return nil, err
	}
	tc, err := tlsConfig(priv)
	if err != nil {
		return nil, err
	}
	ql, err := quic.ListenAddr(addr, tc, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Listener{ql: ql}, nil
}

// Addr returns the address the listener is bound to.
func (l *Listener) Addr() string {
	return l.ql.Addr().String()
}

// Accept blocks until a connection arrives or ctx is done.
func (l *Listener) Accept(ctx context.Context) (quic.Connection, error) {
	conn, err := l.ql.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("accept: %w", err)
	}
	return conn, nil
}

// Close stops accepting and tears down the listener.
func (l *Listener) Close() error {
	return l.ql.Close()
}

// Dial opens a QUIC connection to a remote Listener.
func Dial(ctx context.Context, cfg Config, addr string) (quic.Connection, error) {
	priv, err := loadOrGenerateKey(cfg.Seed)
	if err != nil {
		return nil, err
	}
	tc, err := tlsConfig(priv)
	if err != nil {
		return nil, err
	}
	conn, err := quic.DialAddr(ctx, addr, tc, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}
