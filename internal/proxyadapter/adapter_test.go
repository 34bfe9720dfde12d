package proxyadapter

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mcpgateway/transport-proxy/internal/stdio"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunPumpsFramesRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a subprocess")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// cat reflects each line written to its stdin back out on stdout,
	// standing in for a backend that echoes whatever the client sends.
	sess, err := stdio.Open(ctx, stdio.Params{Command: "cat"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sess.Close()

	adapter := New(sess, nil)

	in := make(chan []byte, 4)
	in <- []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)

	var mu sync.Mutex
	var received [][]byte
	done := make(chan struct{})

	read := func() ([]byte, error) {
		select {
		case frame, ok := <-in:
			if !ok {
				return nil, io.EOF
			}
			return frame, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	write := func(frame []byte) error {
		mu.Lock()
		received = append(received, frame)
		n := len(received)
		mu.Unlock()
		if n == 1 {
			close(done)
		}
		return nil
	}

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()

	go func() { _ = adapter.Run(runCtx, read, write) }()

	select {
	case <-done:
	case <-time.After(4 * time.Second):
		t.Fatal("timed out waiting for echoed frame")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected exactly 1 frame, got %d", len(received))
	}
	want := `{"jsonrpc":"2.0","id":1,"method":"ping"}`
	if string(received[0]) != want {
		t.Errorf("got %q, want %q", received[0], want)
	}
}

func TestRunReturnsOnContextCancel(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a subprocess")
	}

	ctx := context.Background()
	sess, err := stdio.Open(ctx, stdio.Params{Command: "cat"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sess.Close()

	adapter := New(sess, nil)

	runCtx, runCancel := context.WithCancel(ctx)
	read := func() ([]byte, error) {
		<-runCtx.Done()
		return nil, runCtx.Err()
	}
	write := func([]byte) error { return nil }

	resultCh := make(chan error, 1)
	go func() { resultCh <- adapter.Run(runCtx, read, write) }()

	runCancel()

	select {
	case <-resultCh:
	case <-time.After(4 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
