package proxyadapter

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mcpgateway/transport-proxy/internal/stdio"
)

func TestMultiplexerCallRoutesResponseByID(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a subprocess")
	}
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := stdio.Open(ctx, stdio.Params{Command: "cat"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sess.Close()

	mux := NewMultiplexer(sess, nil)

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	go func() { _ = mux.Run(runCtx) }()

	frame := []byte(`{"jsonrpc":"2.0","id":"1","method":"ping"}`)
	resp, err := mux.Call(ctx, "\"1\"", frame)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if string(resp) != string(frame) {
		t.Errorf("got %q, want %q", resp, frame)
	}
}

func TestMultiplexerBroadcastsUnclaimedFrames(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a subprocess")
	}
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := stdio.Open(ctx, stdio.Params{Command: "cat"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sess.Close()

	mux := NewMultiplexer(sess, nil)

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	go func() { _ = mux.Run(runCtx) }()

	sub, unsub := mux.Subscribe(4)
	defer unsub()

	notification := []byte(`{"jsonrpc":"2.0","method":"notifications/progress"}`)
	if err := mux.Notify(notification); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	select {
	case got := <-sub:
		if string(got) != string(notification) {
			t.Errorf("got %q, want %q", got, notification)
		}
	case <-time.After(4 * time.Second):
		t.Fatal("timed out waiting for broadcast frame")
	}
}

func TestMultiplexerCallTimesOutOnContextCancel(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a subprocess")
	}
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := stdio.Open(ctx, stdio.Params{Command: "cat"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sess.Close()

	mux := NewMultiplexer(sess, nil)
	// No Run goroutine started, so nothing ever claims the pending call.

	callCtx, callCancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer callCancel()

	_, err = mux.Call(callCtx, "\"orphan\"", []byte(`{"jsonrpc":"2.0","id":"orphan","method":"ping"}`))
	if err == nil {
		t.Error("expected Call to time out")
	}
}
