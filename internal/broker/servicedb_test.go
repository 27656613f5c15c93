package broker

import (
	"testing"

	"github.com/Gyro91/CBSD-Project/internal/wire"
)

func TestCohortBecomesReadyAtNDistinctSignatures(t *testing.T) {
	db := NewServiceDatabase(3)
	c := db.EnsureCohort(wire.ServiceType(7))

	if c.Register("A") {
		t.Fatalf("ready after 1 signature")
	}
	if c.Register("B") {
		t.Fatalf("ready after 2 signatures")
	}
	if !c.Register("C") {
		t.Fatalf("expected ready after 3rd distinct signature")
	}
	if !c.Ready {
		t.Fatalf("cohort not marked ready")
	}
}

func TestCohortDuplicateSignatureIsIdempotent(t *testing.T) {
	db := NewServiceDatabase(3)
	c := db.EnsureCohort(wire.ServiceType(7))
	c.Register("A")
	c.Register("B")
	c.Register("C")

	if c.Register("A") {
		t.Fatalf("re-registering a known signature should not report becameReady")
	}
	if len(c.signatures) != 3 {
		t.Fatalf("got %d signatures, want 3", len(c.signatures))
	}
}

func TestCohortRejectsNPlusOnethSignature(t *testing.T) {
	db := NewServiceDatabase(3)
	c := db.EnsureCohort(wire.ServiceType(7))
	c.Register("A")
	c.Register("B")
	c.Register("C")
	c.Register("D")

	if len(c.signatures) != 3 {
		t.Fatalf("got %d signatures, want 3 (4th rejected)", len(c.signatures))
	}
}

func TestCohortHeartbeatRoundMarksMissingPongsUnreliable(t *testing.T) {
	db := NewServiceDatabase(3)
	c := db.EnsureCohort(wire.ServiceType(7))
	c.BindSession(0, nil)
	c.BindSession(1, nil)
	c.BindSession(2, nil)

	if c.PopCount() != 3 {
		t.Fatalf("got popcount %d, want 3", c.PopCount())
	}

	c.RecordPong(0)
	c.RecordPong(1)
	// replica 2 does not pong this round.
	reliable := c.BeginHeartbeatRound()

	if len(reliable) != 2 {
		t.Fatalf("got %d reliable replicas, want 2", len(reliable))
	}
	if c.Functional() {
		// threshold for N=3 is 2, so 2 reliable is still functional.
	}
	if !c.Functional() {
		t.Fatalf("cohort should still be functional with 2/3 reliable")
	}
}

func TestCohortDegradedBelowMajority(t *testing.T) {
	db := NewServiceDatabase(3)
	c := db.EnsureCohort(wire.ServiceType(7))
	c.BindSession(0, nil)
	c.BindSession(1, nil)
	c.BindSession(2, nil)

	c.RecordPong(0)
	// replicas 1 and 2 miss this round.
	c.BeginHeartbeatRound()

	if c.Functional() {
		t.Fatalf("cohort with 1/3 reliable should be degraded")
	}
}
