package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/chainguard/pkg/guardclient"
)

// NewMCPServer creates a configured MCP server with all Chainguard tools registered.
func NewMCPServer(cfg guardclient.Config) *server.MCPServer {
	s := server.NewMCPServer("chainguard", "1.0.0")
	client := guardclient.New(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolValidateTransaction, h.HandleValidateTransaction)
	s.AddTool(ToolCheckAssetRisk, h.HandleCheckAssetRisk)
	s.AddTool(ToolEmergencyStop, h.HandleEmergencyStop)
	s.AddTool(ToolGetWarningHistory, h.HandleGetWarningHistory)
	s.AddTool(ToolGetGuardConfig, h.HandleGetGuardConfig)

	return s
}
