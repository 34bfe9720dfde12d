// Package proxyadapter pumps JSON-RPC frames between an HTTP-facing client
// stream and a spawned MCP backend's stdio session.
package proxyadapter

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/mcpgateway/transport-proxy/internal/stdio"
)

// Adapter bridges exactly one HTTP-facing duplex stream to exactly one
// backend stdio session. Because each Adapter owns a single pair of
// endpoints, request IDs pass through unchanged; there is no multi-session
// fan-in that would require renamespacing them.
type Adapter struct {
	session *stdio.Session
	logger  *slog.Logger
}

// New creates an Adapter bridging an HTTP-facing stream to session.
func New(session *stdio.Session, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{session: session, logger: logger}
}

// ReadFunc returns the next raw frame from the HTTP-facing side, or an error
// (io.EOF on orderly close) once no more frames are available.
type ReadFunc func() ([]byte, error)

// WriteFunc delivers a raw frame to the HTTP-facing side.
type WriteFunc func([]byte) error

// Run pumps frames in both directions until ctx is cancelled or both
// directions have stopped. A direction stops when its source reports io.EOF
// or a read or write fails; when one direction stops, the other keeps
// running, so a closed client side alone does not end Run. On cancellation
// Run returns without waiting for a pump still blocked in a read; that pump
// exits once its stream closes. It returns the first error encountered, or
// nil if ctx was cancelled cleanly.
func (a *Adapter) Run(ctx context.Context, read ReadFunc, write WriteFunc) error {
	errCh := make(chan error, 2)

	go func() { errCh <- a.pumpToBackend(ctx, read) }()
	go func() { errCh <- a.pumpToClient(ctx, write) }()

	var firstErr error
	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			if err != nil && firstErr == nil && !errors.Is(err, context.Canceled) {
				firstErr = err
			}
		case <-ctx.Done():
			return firstErr
		}
	}
	return firstErr
}

func (a *Adapter) pumpToBackend(ctx context.Context, read ReadFunc) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		frame, err := read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := a.session.WriteLine(frame); err != nil {
			a.logger.Warn("write to backend failed", "error", err)
			return err
		}
	}
}

func (a *Adapter) pumpToClient(ctx context.Context, write WriteFunc) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		frame, err := a.session.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := write(frame); err != nil {
			a.logger.Warn("write to client failed", "error", err)
			return err
		}
	}
}
