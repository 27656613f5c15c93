package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Gyro91/CBSD-Project/internal/broker"
	"github.com/Gyro91/CBSD-Project/internal/logger"
	"github.com/Gyro91/CBSD-Project/internal/transport"
)

func runBroker(args []string) error {
	fs := flag.NewFlagSet("broker", flag.ExitOnError)
	nmr := fs.Int("nmr", 3, "number of replicas per service cohort")
	routerAddr := fs.String("router", ":6000", "client request channel address")
	regAddr := fs.String("reg", ":6001", "worker registration channel address")
	healthAddr := fs.String("health", ":6002", "health-checker pong channel address")
	metricsAddr := fs.String("metrics", "", "Prometheus /metrics listen address (disabled if empty)")
	fs.Parse(args)

	var m *broker.Metrics
	if *metricsAddr != "" {
		m = broker.NewMetrics()
		go func() {
			if err := m.Serve(*metricsAddr); err != nil {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	b, err := broker.New(broker.Config{
		N:          *nmr,
		RouterAddr: *routerAddr,
		RegAddr:    *regAddr,
		HealthAddr: *healthAddr,
		Transport:  transport.Config{},
	}, m)
	if err != nil {
		return fmt.Errorf("create broker:\n%w", err)
	}
	defer b.Close()

	logger.Info("broker listening",
		"nmr", *nmr,
		"router", b.RouterAddr(),
		"reg", b.RegAddr(),
		"health", b.HealthAddr(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	if err := b.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("broker loop:\n%w", err)
	}
	return nil
}
