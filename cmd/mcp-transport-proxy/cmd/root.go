// Package cmd provides the CLI commands for the MCP transport proxy.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpgateway/transport-proxy/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mcp-transport-proxy",
	Short: "A protocol-translating reverse proxy for MCP servers",
	Long: `mcp-transport-proxy spawns MCP servers as stdio child processes and
exposes them to HTTP and browser clients over the SSE and Streamable-HTTP
transports.

Configuration:
  Config is loaded from mcp-transport-proxy.yaml in the current directory,
  $HOME/.mcp-transport-proxy/, or /etc/mcp-transport-proxy/.

  Environment variables override config values with the
  MCP_TRANSPORT_PROXY_ prefix. Example:
  MCP_TRANSPORT_PROXY_SERVER_HTTP_ADDR=:9090

Commands:
  serve       Start the proxy server
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./mcp-transport-proxy.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
