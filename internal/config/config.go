// Package config provides configuration types for the MCP transport proxy.
//
// Configuration describes zero or more backends (a default, unnamed one plus
// any number of named ones), each either static (spawned once at startup) or
// dynamic (spawned per request, with HTTP headers mapped into the child's
// environment). Everything else — logging, telemetry, CORS — is the ambient
// stack every deployment of this proxy carries regardless of which backends
// are configured.
package config

import "github.com/spf13/viper"

// Config is the top-level configuration for the MCP transport proxy.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Logging configures the slog text handler.
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Telemetry configures Prometheus metrics and OpenTelemetry tracing.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// Default is the unnamed backend mounted at the root paths (/sse, /mcp).
	// Optional: a deployment may configure only named backends.
	Default *BackendConfig `yaml:"default" mapstructure:"default" validate:"omitempty"`

	// Backends are named backends, mounted under /servers/{name}/.
	Backends []BackendConfig `yaml:"backends" mapstructure:"backends" validate:"omitempty,dive"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080", ":8080").
	// Defaults to "127.0.0.1:8080" if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// AllowOrigins, when non-empty, installs a permissive CORS middleware
	// (all methods, all headers) restricted to these origins. Empty means no
	// CORS middleware is installed.
	AllowOrigins []string `yaml:"allow_origins" mapstructure:"allow_origins"`

	// ShutdownTimeout bounds how long graceful shutdown waits for inflight
	// requests before the master scope is torn down regardless (e.g. "10s").
	// Defaults to "10s" if empty.
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"omitempty"`
}

// LoggingConfig configures the proxy's structured logger.
type LoggingConfig struct {
	// Level sets the minimum log level.
	// Valid values: "debug", "info", "warn" (or "warning"), "error".
	// Defaults to "info" if empty.
	Level string `yaml:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`
}

// TelemetryConfig configures Prometheus metrics and OpenTelemetry tracing.
type TelemetryConfig struct {
	// MetricsEnabled controls whether /metrics is mounted. Defaults to true.
	MetricsEnabled bool `yaml:"metrics_enabled" mapstructure:"metrics_enabled"`

	// TracingEnabled controls whether a stdout-exporting tracer provider is
	// installed and spans are recorded around backend spawn / session
	// lifecycle. Defaults to false (off by default; this is additive
	// observability, not load-bearing for correctness).
	TracingEnabled bool `yaml:"tracing_enabled" mapstructure:"tracing_enabled"`

	// ServiceName is the resource name attached to emitted spans and
	// metrics. Defaults to "mcp-transport-proxy".
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
}

// BackendConfig describes one configured MCP backend: an optional name, the
// stdio launch parameters, and an optional header→env mapping that puts the
// backend into dynamic mode.
type BackendConfig struct {
	// Name identifies a named backend, mounted under /servers/{name}/. Left
	// blank for the Default backend (the root-mounted, unnamed one), which
	// is represented by Config.Default rather than an entry in this slice.
	Name string `yaml:"name" mapstructure:"name" validate:"omitempty"`

	// Command is the executable to spawn. Always required, for static and
	// dynamic backends alike: HeaderMapping only affects environment, never
	// the executable path.
	Command string `yaml:"command" mapstructure:"command" validate:"required"`

	// Args are passed to Command.
	Args []string `yaml:"args" mapstructure:"args"`

	// Dir is the working directory for the spawned process. Empty means the
	// proxy's own working directory.
	Dir string `yaml:"dir" mapstructure:"dir"`

	// Env holds "KEY=VALUE" entries merged into the spawned process's
	// environment, on top of the proxy's own environment.
	Env []string `yaml:"env" mapstructure:"env" validate:"omitempty,dive,env_kv"`

	// HeaderMapping maps an HTTP header name to the environment variable
	// name its value is injected under. A non-empty mapping puts this
	// backend into dynamic mode: no process is spawned at startup, and one
	// is spawned per request/session instead.
	HeaderMapping map[string]string `yaml:"header_mapping" mapstructure:"header_mapping"`
}

// Dynamic reports whether this backend spawns per-request rather than once
// at startup.
func (b BackendConfig) Dynamic() bool {
	return len(b.HeaderMapping) > 0
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "mcp-transport-proxy"
	}
	// Only apply the "on by default" default when the operator hasn't
	// explicitly set it in YAML/env, matching the teacher's own
	// viper.IsSet-gated default pattern.
	if !viper.IsSet("telemetry.metrics_enabled") {
		c.Telemetry.MetricsEnabled = true
	}
}
