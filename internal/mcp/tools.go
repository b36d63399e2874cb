package mcp

import (
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/promptlab/promptlab/internal/workspace"
)

// RegisterTools registers all MCP tools with the server.
func RegisterTools(s *mcpserver.MCPServer, ws *workspace.Workspace) error {
	if err := registerPromptTools(s, ws); err != nil {
		return err
	}
	if err := registerModelTools(s, ws); err != nil {
		return err
	}
	if err := registerHistoryTools(s, ws); err != nil {
		return err
	}
	return nil
}
