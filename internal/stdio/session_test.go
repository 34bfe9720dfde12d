package stdio

import (
	"bufio"
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestOpenAndWriteLine(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a subprocess")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// cat echoes stdin to stdout line by line, standing in for a backend
	// that merely reflects JSON-RPC frames.
	sess, err := Open(ctx, Params{Command: "cat"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sess.Close()

	if sess.Pid() == 0 {
		t.Error("expected a nonzero pid once started")
	}

	frame := []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	if err := sess.WriteLine(frame); err != nil {
		t.Fatalf("WriteLine failed: %v", err)
	}

	line, err := sess.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine failed: %v", err)
	}
	if string(line) != string(frame) {
		t.Errorf("ReadLine: got %q, want %q", line, frame)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a subprocess")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := Open(ctx, Params{Command: "cat"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}

func TestWriteLineAfterCloseFails(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a subprocess")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := Open(ctx, Params{Command: "cat"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := sess.WriteLine([]byte(`{}`)); err == nil {
		t.Error("expected WriteLine to fail after Close")
	}
}

func TestLineFilterDropsNonJSON(t *testing.T) {
	r := strings.NewReader("startup banner\nnot json either\n{\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{}}\n")
	filtered := NewLineFilter(r, nil)

	scanner := bufio.NewScanner(filtered)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scanner error: %v", err)
	}

	if len(lines) != 1 {
		t.Fatalf("expected exactly 1 JSON line, got %d: %v", len(lines), lines)
	}
	want := `{"jsonrpc":"2.0","id":1,"result":{}}`
	if lines[0] != want {
		t.Errorf("got %q, want %q", lines[0], want)
	}
}

func TestLineFilterEmptyInput(t *testing.T) {
	filtered := NewLineFilter(strings.NewReader(""), nil)
	scanner := bufio.NewScanner(filtered)
	if scanner.Scan() {
		t.Errorf("expected no lines, got %q", scanner.Text())
	}
}
