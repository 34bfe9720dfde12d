package proxyadapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/mcpgateway/transport-proxy/internal/mcpwire"
	"github.com/mcpgateway/transport-proxy/internal/stdio"
)

// Multiplexer lets many concurrent HTTP-facing callers share one long-lived
// backend session (the Static mode case), correlating responses to callers
// by JSON-RPC ID and fanning notifications out to every subscriber.
type Multiplexer struct {
	session *stdio.Session
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]chan []byte

	subMu sync.Mutex
	subs  map[chan []byte]struct{}
}

// NewMultiplexer wraps session for shared use by multiple callers.
func NewMultiplexer(session *stdio.Session, logger *slog.Logger) *Multiplexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multiplexer{
		session: session,
		logger:  logger,
		pending: make(map[string]chan []byte),
		subs:    make(map[chan []byte]struct{}),
	}
}

// Run reads backend frames until the session closes or ctx is cancelled,
// routing each to its waiting caller (by ID) or broadcasting it to every
// subscriber when no caller is waiting.
func (m *Multiplexer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		frame, err := m.session.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		m.dispatch(frame)
	}
}

func (m *Multiplexer) dispatch(frame []byte) {
	id := mcpwire.RawID(frame)
	if id != nil {
		m.mu.Lock()
		ch, ok := m.pending[string(id)]
		if ok {
			delete(m.pending, string(id))
		}
		m.mu.Unlock()

		if ok {
			ch <- frame
			return
		}
	}
	m.broadcast(frame)
}

func (m *Multiplexer) broadcast(frame []byte) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- frame:
		default:
			m.logger.Warn("dropping frame for slow SSE subscriber")
		}
	}
}

// Call writes frame to the backend and blocks until the response carrying
// the given id arrives, or ctx is done.
func (m *Multiplexer) Call(ctx context.Context, id string, frame []byte) ([]byte, error) {
	ch := make(chan []byte, 1)
	m.mu.Lock()
	m.pending[id] = ch
	m.mu.Unlock()

	if err := m.session.WriteLine(frame); err != nil {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		return nil, err
	}

	select {
	case <-ctx.Done():
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		return nil, ctx.Err()
	case resp := <-ch:
		return resp, nil
	}
}

// Notify writes a fire-and-forget frame (a request with no id) to the
// backend.
func (m *Multiplexer) Notify(frame []byte) error {
	return m.session.WriteLine(frame)
}

// Subscribe registers ch to receive every backend frame that isn't claimed
// by a pending Call (notifications and server-initiated requests), for
// pushing over SSE. The returned cancel func must be called to unsubscribe.
func (m *Multiplexer) Subscribe(buffer int) (ch chan []byte, cancel func()) {
	ch = make(chan []byte, buffer)
	m.subMu.Lock()
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()

	cancel = func() {
		m.subMu.Lock()
		if _, ok := m.subs[ch]; ok {
			delete(m.subs, ch)
			close(ch)
		}
		m.subMu.Unlock()
	}
	return ch, cancel
}
