// Package config provides configuration types and loading for the MCP
// transport proxy.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for mcp-transport-proxy.yaml
// or .yml in standard locations. The search requires an explicit YAML
// extension so Viper's SetConfigName doesn't match the binary itself (same
// base name, no extension) when both live in the same directory.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location. Set name/type
		// without search paths so ReadInConfig returns
		// ConfigFileNotFoundError, handled gracefully by callers.
		viper.SetConfigName("mcp-transport-proxy")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: MCP_TRANSPORT_PROXY_SERVER_HTTP_ADDR
	viper.SetEnvPrefix("MCP_TRANSPORT_PROXY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a config file with an
// explicit YAML extension (.yaml or .yml). This prevents Viper from matching
// the binary "mcp-transport-proxy" (no extension) in the current directory.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".mcp-transport-proxy"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "mcp-transport-proxy"))
		}
	} else {
		paths = append(paths, "/etc/mcp-transport-proxy")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for
// mcp-transport-proxy.yaml or .yml. Returns the full path of the first
// match, or "" if none is found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "mcp-transport-proxy"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds the config keys a deployment is most likely to
// override without a file. Backends are an array of structs with a
// map-typed HeaderMapping field; like the teacher's own treatment of its
// array-typed sections, those are left to the config file.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.shutdown_timeout")
	_ = viper.BindEnv("logging.level")
	_ = viper.BindEnv("telemetry.metrics_enabled")
	_ = viper.BindEnv("telemetry.tracing_enabled")
	_ = viper.BindEnv("telemetry.service_name")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, validates, and returns the Config.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but does
// not validate. Callers that want to apply CLI-flag overrides before
// validation runs should use this instead of LoadConfig.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file found: continue with env vars / flags only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded,
// or "" if none was found (env vars / flags only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
