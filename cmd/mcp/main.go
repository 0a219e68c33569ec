// Chainguard MCP Server - Exposes transaction validation as MCP tools for LLMs
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/chainguard/internal/mcpserver"
	"github.com/mbd888/chainguard/pkg/guardclient"
)

func main() {
	cfg := guardclient.Config{
		APIURL: envOrDefault("CHAINGUARD_API_URL", "http://localhost:8080"),
		APIKey: os.Getenv("CHAINGUARD_API_KEY"),
	}

	s := mcpserver.NewMCPServer(cfg)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
