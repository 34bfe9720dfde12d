package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/mcpgateway/transport-proxy/internal/backend"
	"github.com/mcpgateway/transport-proxy/internal/proxyadapter"
	"github.com/mcpgateway/transport-proxy/internal/status"
	"github.com/mcpgateway/transport-proxy/internal/stdio"
)

// SSEHandler implements the classic MCP SSE transport: a GET /sse connection
// opens a push stream and announces a companion "/messages/?sessionId=..."
// endpoint for the client to POST requests to. Only Static backends mount
// this; the spec's resolution leaves it unmounted for Dynamic backends.
type SSEHandler struct {
	mux    *proxyadapter.Multiplexer
	status *status.GlobalStatus
	logger *slog.Logger
	prefix string // e.g. "" for the default backend, "/servers/notes" for a named one
}

// NewSSEHandler builds the GET /sse handler for a Static backend's shared
// multiplexer. prefix is prepended to the endpoint event's URL so clients
// POST back to the right named-backend path.
func NewSSEHandler(mux *proxyadapter.Multiplexer, st *status.GlobalStatus, prefix string, logger *slog.Logger) *SSEHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSEHandler{mux: mux, status: st, logger: logger, prefix: prefix}
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	h.status.Touch()
	sessionID := uuid.NewString()

	ch, cancel := h.mux.Subscribe(128)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	_, _ = fmt.Fprintf(w, "event: endpoint\ndata: %s/messages/?sessionId=%s\n\n", h.prefix, sessionID)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// MessagesHandler implements the companion POST "/messages/?sessionId=..."
// endpoint: each POST carries one client-to-server JSON-RPC frame, forwarded
// to the backend; the matching response (if any) arrives asynchronously over
// SSE rather than as the POST response body. The sessionId query parameter
// is not read: every backend frame not claimed by a pending Call is
// broadcast to every open SSE connection of this backend, not only to the
// connection that announced the sessionId.
type MessagesHandler struct {
	mux    *proxyadapter.Multiplexer
	status *status.GlobalStatus
	logger *slog.Logger
}

// NewMessagesHandler builds the POST /messages/ handler sharing mux with an
// SSEHandler.
func NewMessagesHandler(mux *proxyadapter.Multiplexer, st *status.GlobalStatus, logger *slog.Logger) *MessagesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessagesHandler{mux: mux, status: st, logger: logger}
}

func (h *MessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	h.status.Touch()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	defer func() { _ = r.Body.Close() }()
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	// The SSE transport is fire-and-forget from the POST's perspective: the
	// backend's eventual response, if any, is delivered over the open SSE
	// stream rather than this HTTP response.
	if err := h.mux.Notify(body); err != nil {
		h.logger.Warn("forwarding message to backend failed", "error", err)
		http.Error(w, "failed to forward message", http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// DynamicSSEHandler serves /sse for a Dynamic backend. Unlike SSEHandler,
// which shares one long-lived backend process across every connection, each
// SSE connection here spawns and owns its own backend process for the life
// of the connection, mirroring the Streamable-HTTP dynamic path's per-session
// spawn. There is no companion "/messages/" mount for dynamic backends (the
// Open Question in spec is resolved against mounting one), so this handler
// is push-only: it is of limited use without a client able to reach a
// per-connection POST path, a known limitation carried over unresolved.
type DynamicSSEHandler struct {
	inst   backend.Instance
	status *status.GlobalStatus
	logger *slog.Logger
	prefix string
}

// NewDynamicSSEHandler builds the GET /sse handler for a Dynamic backend.
func NewDynamicSSEHandler(inst backend.Instance, st *status.GlobalStatus, prefix string, logger *slog.Logger) *DynamicSSEHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DynamicSSEHandler{inst: inst, status: st, logger: logger, prefix: prefix}
}

func (h *DynamicSSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	h.status.Touch()

	env := backend.MergeEnv(h.inst.Params.Env, r.Header, h.inst.HeaderMapping)
	proc, err := stdio.Open(r.Context(), stdio.Params{
		Command: h.inst.Params.Command,
		Args:    h.inst.Params.Args,
		Dir:     h.inst.Params.Dir,
		Env:     env,
		Logger:  h.logger,
	})
	if err != nil {
		h.logger.Warn("dynamic SSE backend spawn failed", "backend", h.inst.Name, "error", err)
		http.Error(w, "failed to start backend", http.StatusBadGateway)
		return
	}
	defer func() { _ = proc.Close() }()

	mux := proxyadapter.NewMultiplexer(proc, h.logger)
	runCtx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() { _ = mux.Run(runCtx) }()

	sessionID := uuid.NewString()
	ch, unsubscribe := mux.Subscribe(128)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	_, _ = fmt.Fprintf(w, "event: endpoint\ndata: %s/messages/?sessionId=%s\n\n", h.prefix, sessionID)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
