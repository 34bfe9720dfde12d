// Package transport implements the HTTP-facing MCP endpoints: SSE and
// Streamable-HTTP, for both Static (shared multiplexed backend) and Dynamic
// (per-request spawned backend) modes.
package transport

import (
	"net/http"
	"strings"
)

// NormalizeMCPPath rewrites a request whose path (ignoring a trailing slash)
// ends in "/mcp" but lacks the trailing slash itself, synthesizing the
// canonical "/mcp/"-suffixed request in place rather than issuing an HTTP
// redirect. Clients that omit the trailing slash (a common client bug) are
// served directly instead of bouncing through a 307.
func NormalizeMCPPath(r *http.Request) {
	path := r.URL.Path
	if path == "" || strings.HasSuffix(path, "/") {
		return
	}
	if !strings.HasSuffix(strings.TrimRight(path, "/"), "/mcp") {
		return
	}

	r.URL.Path = path + "/"
	if r.URL.RawPath != "" {
		r.URL.RawPath = strings.TrimRight(r.URL.RawPath, "/") + "/"
	}
}
