// Package integration exercises the broker, worker, and wire packages
// together over the real QUIC transport, in-process, the way the teacher's
// own test/integration package drives multi-node scenarios but without
// spawning separate binaries — everything here is one service's cohort
// worth of goroutines against localhost.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/Gyro91/CBSD-Project/internal/broker"
	"github.com/Gyro91/CBSD-Project/internal/servicetable"
	"github.com/Gyro91/CBSD-Project/internal/transport"
	"github.com/Gyro91/CBSD-Project/internal/wire"
	"github.com/Gyro91/CBSD-Project/internal/worker"
)

// startBroker binds a broker with N replicas per cohort on ephemeral ports
// and runs its loop until the test cleans up.
func startBroker(t *testing.T, n int) *broker.Broker {
	t.Helper()

	b, err := broker.New(broker.Config{
		N:          n,
		RouterAddr: "127.0.0.1:0",
		RegAddr:    "127.0.0.1:0",
		HealthAddr: "",
		Transport:  transport.Config{},
	}, nil)
	if err != nil {
		t.Fatalf("start broker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		b.Close()
	})

	return b
}

// startWorker registers a replica that answers every request on service
// with a fixed result, regardless of parameter — enough control to drive
// the majority/dissent/no-majority scenarios deterministically.
func startWorker(t *testing.T, brokerAddr string, id wire.ReplicaId, service wire.ServiceType, signature string, result int32) {
	t.Helper()

	table := servicetable.New()
	table.Register(service, func(int32) int32 { return result })

	sess := worker.NewSession(transport.Config{}, id, service, signature, brokerAddr, table)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// cohortSettleTime is how long a freshly started cohort needs to complete
// registration and dispatch-session connect before it can be trusted to
// answer a real test request, mirroring the fixed stabilization waits the
// teacher's own multi-node integration tests use rather than polling.
const cohortSettleTime = 1 * time.Second

// sendRequest performs one client round trip against the broker's request
// channel.
func sendRequest(t *testing.T, routerAddr string, service wire.ServiceType, parameter int32, timeout time.Duration) (wire.ResponseModule, error) {
	t.Helper()

	req := wire.RequestModule{Service: service, Parameter: parameter}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := transport.RouterRequest(ctx, transport.Config{}, routerAddr, req.Encode())
	if err != nil {
		return wire.ResponseModule{}, err
	}
	return wire.DecodeResponseModule(resp)
}
