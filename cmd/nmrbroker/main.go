// Command nmrbroker drives the three roles of the NMR request/reply
// system: the broker, a worker replica, and a reference client.
package main

import (
	"fmt"
	"os"

	"github.com/Gyro91/CBSD-Project/internal/logger"
)

func main() {
	logger.Init()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: nmrbroker <broker|worker|client> [flags]")
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "broker":
		err = runBroker(os.Args[2:])
	case "worker":
		err = runWorker(os.Args[2:])
	case "client":
		err = runClient(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown role %q: want broker, worker, or client\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
