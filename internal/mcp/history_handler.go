package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/promptlab/promptlab/internal/workspace"
)

func registerHistoryTools(s *mcpserver.MCPServer, ws *workspace.Workspace) error {
	// list_versions
	listTool := mcp.NewTool("list_versions",
		mcp.WithDescription("List all committed prompt versions, oldest first"),
	)
	s.AddTool(listTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListVersions(ctx, request, ws)
	})

	// view_version
	viewTool := mcp.NewTool("view_version",
		mcp.WithDescription("Inspect a committed version's snapshot without changing the live configuration"),
		mcp.WithNumber("index",
			mcp.Required(),
			mcp.Description("Version index from list_versions"),
		),
	)
	s.AddTool(viewTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleViewVersion(ctx, request, ws)
	})

	// restore_version
	restoreTool := mcp.NewTool("restore_version",
		mcp.WithDescription("Write a committed version's prompt parts back into the live configuration. Model selection and parameters are kept as-is."),
		mcp.WithNumber("index",
			mcp.Required(),
			mcp.Description("Version index from list_versions"),
		),
	)
	s.AddTool(restoreTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleRestoreVersion(ctx, request, ws)
	})

	return nil
}

func handleListVersions(_ context.Context, _ mcp.CallToolRequest, ws *workspace.Workspace) (*mcp.CallToolResult, error) {
	versions := ws.Ledger.Versions()

	type versionInfo struct {
		Index     int    `json:"index"`
		ID        string `json:"id"`
		Timestamp string `json:"timestamp"`
		Source    string `json:"source"`
		Label     string `json:"label,omitempty"`
		Models    int    `json:"models"`
		Runs      int    `json:"runs"`
		Evaluated bool   `json:"evaluated"`
	}

	out := make([]versionInfo, 0, len(versions))
	for i, v := range versions {
		out = append(out, versionInfo{
			Index:     i,
			ID:        v.ID,
			Timestamp: v.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
			Source:    string(v.Source),
			Label:     v.Label,
			Models:    len(v.Snapshot.SelectedModelIDs),
			Runs:      len(v.Snapshot.CompletedRuns),
			Evaluated: v.Snapshot.Evaluation != nil,
		})
	}
	return marshalResult(out)
}

func handleViewVersion(_ context.Context, request mcp.CallToolRequest, ws *workspace.Workspace) (*mcp.CallToolResult, error) {
	index, ok := requireIndex(request)
	if !ok {
		return mcp.NewToolResultError("index is required"), nil
	}

	version, found := ws.Ledger.Version(index)
	if !found {
		return mcp.NewToolResultError(fmt.Sprintf("no version at index %d", index)), nil
	}
	return marshalResult(version)
}

func handleRestoreVersion(_ context.Context, request mcp.CallToolRequest, ws *workspace.Workspace) (*mcp.CallToolResult, error) {
	index, ok := requireIndex(request)
	if !ok {
		return mcp.NewToolResultError("index is required"), nil
	}

	if !ws.Ledger.Restore(index, ws.Store) {
		return mcp.NewToolResultError(fmt.Sprintf("no version at index %d", index)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("restored version %d into the live configuration", index)), nil
}

func requireIndex(request mcp.CallToolRequest) (int, bool) {
	raw, ok := request.GetArguments()["index"].(float64)
	if !ok {
		return 0, false
	}
	return int(raw), true
}
