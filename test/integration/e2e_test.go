package integration

import (
	"testing"
	"time"

	"github.com/Gyro91/CBSD-Project/internal/wire"
)

// TestHappyPath covers spec.md §8 scenario 1: three agreeing replicas
// produce one AVAILABLE response carrying their shared result.
func TestHappyPath(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	b := startBroker(t, 3)
	const service = wire.ServiceType(7)

	startWorker(t, b.RegAddr(), 0, service, "A", 42)
	startWorker(t, b.RegAddr(), 1, service, "B", 42)
	startWorker(t, b.RegAddr(), 2, service, "C", 42)
	time.Sleep(cohortSettleTime)

	resp, err := sendRequest(t, b.RouterAddr(), service, 5, 5*time.Second)
	if err != nil {
		t.Fatalf("send request: %v", err)
	}
	if resp.ServiceStatus != wire.Available {
		t.Fatalf("got status %v, want Available", resp.ServiceStatus)
	}
	if resp.Result != 42 {
		t.Fatalf("got result %d, want 42", resp.Result)
	}
}

// TestSingleDissent covers scenario 2: one replica disagrees, the
// plurality still wins.
func TestSingleDissent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	b := startBroker(t, 3)
	const service = wire.ServiceType(7)

	startWorker(t, b.RegAddr(), 0, service, "A", 42)
	startWorker(t, b.RegAddr(), 1, service, "B", 42)
	startWorker(t, b.RegAddr(), 2, service, "C", 99)
	time.Sleep(cohortSettleTime)

	resp, err := sendRequest(t, b.RouterAddr(), service, 5, 5*time.Second)
	if err != nil {
		t.Fatalf("send request: %v", err)
	}
	if resp.ServiceStatus != wire.Available || resp.Result != 42 {
		t.Fatalf("got %+v, want Available/42", resp)
	}
}

// TestNoMajority covers scenario 3: three distinct replies never resolve
// to a majority, so the client sees no reply at all and times out.
func TestNoMajority(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	b := startBroker(t, 3)
	const service = wire.ServiceType(7)

	startWorker(t, b.RegAddr(), 0, service, "A", 1)
	startWorker(t, b.RegAddr(), 1, service, "B", 2)
	startWorker(t, b.RegAddr(), 2, service, "C", 3)
	time.Sleep(cohortSettleTime)

	_, err := sendRequest(t, b.RouterAddr(), service, 5, 1*time.Second)
	if err == nil {
		t.Fatalf("expected no reply on an indecisive vote, got one")
	}
}

// TestUnknownService covers scenario 4: a service nobody has registered
// for gets an immediate NOT_AVAILABLE, no dispatch attempted.
func TestUnknownService(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	b := startBroker(t, 3)

	resp, err := sendRequest(t, b.RouterAddr(), wire.ServiceType(99), 5, 2*time.Second)
	if err != nil {
		t.Fatalf("send request: %v", err)
	}
	if resp.ServiceStatus != wire.NotAvailable {
		t.Fatalf("got status %v, want NotAvailable", resp.ServiceStatus)
	}
	if resp.Result != 0 {
		t.Fatalf("got result %d, want 0", resp.Result)
	}
}

// TestDuplicateSignatureRegistersOnce covers the boundary case: the same
// signature registering twice occupies one slot (idempotent
// registration), so three workers with two distinct signatures leave the
// cohort unready. The port reply each registrant receives is not checked
// here.
func TestDuplicateSignatureRegistersOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	b := startBroker(t, 3)
	const service = wire.ServiceType(11)

	startWorker(t, b.RegAddr(), 0, service, "same-sig", 7)
	startWorker(t, b.RegAddr(), 1, service, "same-sig", 7)
	startWorker(t, b.RegAddr(), 2, service, "C", 7)
	time.Sleep(cohortSettleTime)

	// Only two distinct signatures were ever registered ("same-sig" and
	// "C"), so the cohort never reaches 3 distinct signatures and stays
	// unready: the request must come back NOT_AVAILABLE, never a vote.
	resp, err := sendRequest(t, b.RouterAddr(), service, 1, 2*time.Second)
	if err != nil {
		t.Fatalf("send request: %v", err)
	}
	if resp.ServiceStatus != wire.NotAvailable {
		t.Fatalf("got status %v, want NotAvailable (cohort never reached 3 distinct signatures)", resp.ServiceStatus)
	}
}
