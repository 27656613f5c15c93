package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/Gyro91/CBSD-Project/internal/transport"
	"github.com/Gyro91/CBSD-Project/internal/wire"
)

// runClient is the reference client: submit one request on the broker's
// request channel and print the consolidated response. The client
// library proper is out of scope (spec.md §1); this is the minimal
// end-to-end exerciser the CLI surface names.
func runClient(args []string) error {
	fs := flag.NewFlagSet("client", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:6000", "broker request channel address")
	service := fs.Uint("service", 0, "service type to invoke")
	param := fs.Int("param", 0, "int32 parameter")
	timeout := fs.Duration("timeout", 10*time.Second, "how long to wait for a response")
	fs.Parse(args)

	req := wire.RequestModule{Service: wire.ServiceType(*service), Parameter: int32(*param)}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := transport.RouterRequest(ctx, transport.Config{}, *addr, req.Encode())
	if err != nil {
		return fmt.Errorf("client: request:\n%w", err)
	}

	rm, err := wire.DecodeResponseModule(resp)
	if err != nil {
		return fmt.Errorf("client: decode response:\n%w", err)
	}

	if rm.ServiceStatus == wire.NotAvailable {
		fmt.Println("service not available")
		return nil
	}
	fmt.Printf("result: %d\n", rm.Result)
	return nil
}
