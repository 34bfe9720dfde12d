package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:8080")
	}
	if cfg.Server.ShutdownTimeout != "10s" {
		t.Errorf("ShutdownTimeout = %q, want %q", cfg.Server.ShutdownTimeout, "10s")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Telemetry.ServiceName != "mcp-transport-proxy" {
		t.Errorf("Telemetry.ServiceName = %q, want %q", cfg.Telemetry.ServiceName, "mcp-transport-proxy")
	}
	if !cfg.Telemetry.MetricsEnabled {
		t.Error("Telemetry.MetricsEnabled should default to true")
	}
}

func TestSetDefaultsPreservesExistingValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server: ServerConfig{HTTPAddr: ":9090"},
		Logging: LoggingConfig{
			Level: "debug",
		},
	}
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr was overwritten: got %q, want %q", cfg.Server.HTTPAddr, ":9090")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level was overwritten: got %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestBackendConfigDynamic(t *testing.T) {
	t.Parallel()

	static := BackendConfig{Command: "echo-mcp"}
	if static.Dynamic() {
		t.Error("backend with no header mapping should not be dynamic")
	}

	dynamic := BackendConfig{
		Command:       "echo-mcp",
		HeaderMapping: map[string]string{"X-Api-Key": "API_KEY"},
	}
	if !dynamic.Dynamic() {
		t.Error("backend with a non-empty header mapping should be dynamic")
	}
}

func TestFindConfigFileInPathsEmptyDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths(empty dir) = %q, want empty", got)
	}
}

func TestFindConfigFileInPathsMatchesYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "mcp-transport-proxy.yaml")
	_ = os.WriteFile(cfgPath, []byte("server:\n  http_addr: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPathsMatchesYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "mcp-transport-proxy.yml")
	_ = os.WriteFile(cfgPath, []byte("server:\n  http_addr: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPathsIgnoresNoExtension(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// Simulate the binary: a file named "mcp-transport-proxy" with no extension.
	_ = os.WriteFile(filepath.Join(dir, "mcp-transport-proxy"), []byte("\x7fELF binary"), 0755)

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths matched binary = %q, want empty", got)
	}
}

func TestFindConfigFileInPathsPrefersYAMLOverYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "mcp-transport-proxy.yaml")
	ymlPath := filepath.Join(dir, "mcp-transport-proxy.yml")
	_ = os.WriteFile(yamlPath, []byte("server:\n  http_addr: :8080\n"), 0644)
	_ = os.WriteFile(ymlPath, []byte("server:\n  http_addr: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != yamlPath {
		t.Errorf("findConfigFileInPaths = %q, want %q (.yaml preferred)", got, yamlPath)
	}
}
