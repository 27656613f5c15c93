package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Gyro91/CBSD-Project/internal/logger"
	"github.com/Gyro91/CBSD-Project/internal/servicetable"
	"github.com/Gyro91/CBSD-Project/internal/transport"
	"github.com/Gyro91/CBSD-Project/internal/wire"
	"github.com/Gyro91/CBSD-Project/internal/worker"
)

func runWorker(args []string) error {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	id := fs.Uint("id", 0, "replica id, unique within the service's cohort")
	service := fs.Uint("service", 0, "service type this replica computes")
	brokerHost := fs.String("broker-addr", "127.0.0.1", "broker host")
	brokerPort := fs.Uint("broker-port", 6001, "broker registration channel port")
	signature := fs.String("signature", "", "registration signature, defaults to a value derived from id")
	fs.Parse(args)

	sig := *signature
	if sig == "" {
		sig = fmt.Sprintf("replica-%d", *id)
	}

	sess := worker.NewSession(
		transport.Config{},
		wire.ReplicaId(*id),
		wire.ServiceType(*service),
		sig,
		fmt.Sprintf("%s:%d", *brokerHost, *brokerPort),
		servicetable.Reference(),
	)

	logger.Info("worker starting",
		"id", *id,
		"service", *service,
		"broker", fmt.Sprintf("%s:%d", *brokerHost, *brokerPort),
		"health", sess.HealthAddr(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		logger.Info("shutting down", "signal", s.String())
		cancel()
	}()

	if err := sess.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("worker session:\n%w", err)
	}
	return nil
}
