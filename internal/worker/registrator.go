package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gyro91/CBSD-Project/internal/transport"
	"github.com/Gyro91/CBSD-Project/internal/wire"
)

// ErrMalformed signals a registration reply that failed to decode, or
// decoded to a port of 0 — the single-shot exchange's documented `0`
// protocol-level failure, which is fatal at the caller. ErrTimeout covers
// every other failure bounded by the registration timeout, including a
// broker that hasn't started listening yet; the caller retries on this one.
var (
	ErrMalformed = errors.New("registration: malformed reply")
	ErrTimeout   = errors.New("registration: timed out")
)

// Registrator performs the worker's single-shot registration exchange
// against the broker's registration channel.
type Registrator struct {
	cfg        transport.Config
	brokerAddr string
}

// NewRegistrator targets the registration channel at brokerAddr
// ("host:port").
func NewRegistrator(cfg transport.Config, brokerAddr string) *Registrator {
	return &Registrator{cfg: cfg, brokerAddr: brokerAddr}
}

// Register sends one RegistrationModule and returns the allocated dispatch
// port. It never retries; callers implement the retry-on-timeout,
// terminate-on-malformed policy described by the worker registration state
// machine.
func (r *Registrator) Register(ctx context.Context, signature string, service wire.ServiceType) (uint16, error) {
	ctx, cancel := context.WithTimeout(ctx, wire.RegistrationTimeout)
	defer cancel()

	reg := wire.RegistrationModule{Signature: signature, Service: service}
	payload, err := reg.Encode()
	if err != nil {
		return 0, fmt.Errorf("registration: encode:\n%w", err)
	}

	resp, err := transport.RouterRequest(ctx, r.cfg, r.brokerAddr, payload)
	if err != nil {
		return 0, ErrTimeout
	}

	port, err := wire.DecodeDispatchPort(resp)
	if err != nil || port == 0 {
		return 0, ErrMalformed
	}
	return port, nil
}
