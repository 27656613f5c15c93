package clock

import (
	"testing"
	"time"
)

func TestDeadlineExpiry(t *testing.T) {
	fc := NewFake(time.Unix(0, 0))
	dl := NewDeadline(fc, 3*time.Second)
	if dl.Expired() {
		t.Fatalf("deadline expired immediately")
	}
	fc.Advance(2 * time.Second)
	if dl.Expired() {
		t.Fatalf("deadline expired early")
	}
	fc.Advance(2 * time.Second)
	if !dl.Expired() {
		t.Fatalf("deadline did not expire")
	}
}

func TestDeadlineReset(t *testing.T) {
	fc := NewFake(time.Unix(0, 0))
	dl := NewDeadline(fc, 1*time.Second)
	fc.Advance(900 * time.Millisecond)
	dl.Reset(1 * time.Second)
	fc.Advance(900 * time.Millisecond)
	if dl.Expired() {
		t.Fatalf("deadline expired after reset")
	}
}

func TestFakeTicker(t *testing.T) {
	fc := NewFake(time.Unix(0, 0))
	tk := fc.NewTicker(time.Second)
	defer tk.Stop()

	select {
	case <-tk.C():
		t.Fatalf("ticker fired before advancing")
	default:
	}

	fc.Advance(2500 * time.Millisecond)

	ticks := 0
	for i := 0; i < 3; i++ {
		select {
		case <-tk.C():
			ticks++
		default:
		}
	}
	if ticks == 0 {
		t.Fatalf("ticker did not fire after advancing")
	}
}
