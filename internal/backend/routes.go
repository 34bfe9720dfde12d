package backend

import (
	"net/http"
)

// Handlers bundles the HTTP handlers exposed for one backend instance.
// Streamable dispatches GET/POST/DELETE internally per the Streamable-HTTP
// spec; Messages is nil for Dynamic backends, which never mount a companion
// POST endpoint.
type Handlers struct {
	SSE        http.Handler
	Messages   http.Handler
	Streamable http.Handler
}

// RouteBuilder mounts per-backend handlers onto a shared mux, registering
// one literal path pattern per route (no method or wildcard segments; each
// handler checks the method itself). It has no third-party router
// dependency: the corpus itself never reaches for one.
type RouteBuilder struct {
	mux *http.ServeMux
}

// NewRouteBuilder wraps mux for route assembly.
func NewRouteBuilder(mux *http.ServeMux) *RouteBuilder {
	return &RouteBuilder{mux: mux}
}

// MountDefault mounts the unnamed default backend at the root paths /sse,
// /mcp, and (when Messages is set) /messages/.
func (b *RouteBuilder) MountDefault(h Handlers) {
	b.mount("", h)
}

// MountNamed mounts a named backend under /servers/{name}/.
func (b *RouteBuilder) MountNamed(name string, h Handlers) {
	b.mount("/servers/"+name, h)
}

func (b *RouteBuilder) mount(prefix string, h Handlers) {
	if h.SSE != nil {
		b.mux.Handle(prefix+"/sse", h.SSE)
	}
	if h.Streamable != nil {
		b.mux.Handle(prefix+"/mcp", h.Streamable)
		b.mux.Handle(prefix+"/mcp/", h.Streamable)
	}
	if h.Messages != nil {
		b.mux.Handle(prefix+"/messages/", h.Messages)
	}
}
