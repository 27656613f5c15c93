package transport

import (
	"context"
	"testing"
	"time"
)

func TestDebugAcceptTiming(t *testing.T) {
	dc, err := NewDealerChannel(Config{}, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("new dealer channel: %v", err)
	}
	defer dc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = Connect(ctx, Config{}, dc.Addr())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	for i := 0; i < 20; i++ {
		time.Sleep(50 * time.Millisecond)
		n := len(dc.Sessions())
		t.Logf("after %dms: sessions=%d", (i+1)*50, n)
		if n > 0 {
			break
		}
	}
}
