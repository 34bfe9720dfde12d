package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcpgateway/transport-proxy/internal/config"
	"github.com/mcpgateway/transport-proxy/internal/orchestrator"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proxy server",
	Long: `Start the MCP transport proxy server.

Loads mcp-transport-proxy.yaml (or the file given by --config), spawns every
configured Static backend, and serves SSE and Streamable-HTTP routes for each
configured backend until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	// stop() restores default signal handling so a second Ctrl+C hard-kills.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	printBanner(Version, cfg.Server.HTTPAddr)

	o := orchestrator.New(cfg, logger)
	if err := o.Run(ctx); err != nil {
		return fmt.Errorf("orchestrator exited with error: %w", err)
	}

	logger.Info("mcp-transport-proxy stopped")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printBanner(version, httpAddr string) {
	const (
		reset = "\033[0m"
		bold  = "\033[1m"
		cyan  = "\033[36m"
		dim   = "\033[2m"
	)

	addr := httpAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	fmt.Fprintf(os.Stderr, "%s%smcp-transport-proxy%s %s%s%s\n", bold, cyan, reset, dim, version, reset)
	fmt.Fprintf(os.Stderr, "  %slistening on%s http://%s\n", dim, reset, addr)
	fmt.Fprintf(os.Stderr, "  %sstatus%s      http://%s/status\n", dim, reset, addr)
}
