// Command mcp-transport-proxy spawns one or more MCP child processes and
// exposes them over SSE and Streamable-HTTP to browser and HTTP clients.
package main

import "github.com/mcpgateway/transport-proxy/cmd/mcp-transport-proxy/cmd"

func main() {
	cmd.Execute()
}
