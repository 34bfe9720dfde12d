// Package backend describes configured MCP backends and how their stdio
// processes are parameterized, including header-to-environment mapping for
// per-request spawns.
package backend

import (
	"log/slog"
	"net/http"
	"sort"
)

// Mode selects how a backend's process is managed.
type Mode int

const (
	// Static spawns one process at startup, shared across all requests.
	Static Mode = iota
	// Dynamic spawns a fresh process per request, torn down afterward.
	Dynamic
)

func (m Mode) String() string {
	switch m {
	case Static:
		return "static"
	case Dynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

// HeaderMapping maps an HTTP header name to the environment variable name its
// value should be injected under when spawning a dynamic backend's process.
type HeaderMapping map[string]string

// Params are the base stdio launch parameters for a backend, before any
// header-derived environment variables are merged in.
type Params struct {
	Command string
	Args    []string
	Dir     string
	Env     []string
}

// Instance is one configured backend: a name, its launch mode, its base
// params, and its header-to-environment mapping for per-request spawns.
type Instance struct {
	Name          string
	Mode          Mode
	Params        Params
	HeaderMapping HeaderMapping
}

// MergeEnv builds the environment for a dynamic spawn by layering
// header-derived variables on top of the backend's base env. A header-derived
// value wins over a base value with the same key, matching the order
// headers are applied in the upstream proxy this implementation mirrors.
func MergeEnv(base []string, headers http.Header, mapping HeaderMapping) []string {
	merged := make(map[string]string, len(base)+len(mapping))
	for _, kv := range base {
		k, v, ok := splitEnv(kv)
		if ok {
			merged[k] = v
		}
	}

	for headerName, envName := range mapping {
		value := headers.Get(headerName)
		if value == "" {
			continue
		}
		merged[envName] = value
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+merged[k])
	}
	return out
}

func splitEnv(kv string) (key, value string, ok bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}

// LogValue lets slog render an Instance without exposing header mapping
// values (which may carry secrets).
func (i Instance) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", i.Name),
		slog.String("mode", i.Mode.String()),
		slog.String("command", i.Params.Command),
	)
}
