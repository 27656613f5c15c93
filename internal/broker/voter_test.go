package broker

import "testing"

func TestVoteUnanimous(t *testing.T) {
	v, ok := Vote([]int32{42, 42, 42})
	if !ok || v != 42 {
		t.Fatalf("got (%d, %v), want (42, true)", v, ok)
	}
}

func TestVoteSingleDissent(t *testing.T) {
	v, ok := Vote([]int32{42, 42, 99})
	if !ok || v != 42 {
		t.Fatalf("got (%d, %v), want (42, true)", v, ok)
	}
}

func TestVoteV1EqualsV2(t *testing.T) {
	v, ok := Vote([]int32{1, 2, 2})
	if !ok || v != 2 {
		t.Fatalf("got (%d, %v), want (2, true)", v, ok)
	}
}

func TestVoteNoMajority(t *testing.T) {
	_, ok := Vote([]int32{1, 2, 3})
	if ok {
		t.Fatalf("expected no majority")
	}
}

func TestVoteGeneralizedN5(t *testing.T) {
	// threshold = ceil(6/2) = 3
	v, ok := Vote([]int32{7, 7, 7, 8, 9})
	if !ok || v != 7 {
		t.Fatalf("got (%d, %v), want (7, true)", v, ok)
	}
}

func TestVoteGeneralizedN5NoMajority(t *testing.T) {
	_, ok := Vote([]int32{7, 7, 8, 8, 9})
	if ok {
		t.Fatalf("expected no majority")
	}
}
