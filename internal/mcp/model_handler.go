package mcp

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/promptlab/promptlab/internal/catalog"
	"github.com/promptlab/promptlab/internal/workspace"
)

func registerModelTools(s *mcpserver.MCPServer, ws *workspace.Workspace) error {
	// list_models
	listTool := mcp.NewTool("list_models",
		mcp.WithDescription("List available models with their capabilities and key status"),
		mcp.WithString("provider",
			mcp.Description("Filter by provider (openai, anthropic, google, mistral, deepseek, perplexity, ollama)"),
		),
	)
	s.AddTool(listTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListModels(ctx, request, ws)
	})

	// discover_models
	discoverTool := mcp.NewTool("discover_models",
		mcp.WithDescription("Discover locally installed Ollama models and add them to the catalog"),
		mcp.WithString("base_url",
			mcp.Description("Ollama endpoint (default: "+catalog.DefaultOllamaBaseURL+")"),
		),
	)
	s.AddTool(discoverTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleDiscoverModels(ctx, request, ws)
	})

	return nil
}

func handleListModels(_ context.Context, request mcp.CallToolRequest, ws *workspace.Workspace) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	var models []catalog.Model
	if providerName, ok := args["provider"].(string); ok && providerName != "" {
		models = ws.Registry.ByProvider(catalog.Provider(providerName))
		if len(models) == 0 {
			return mcp.NewToolResultError(fmt.Sprintf("no models for provider %q", providerName)), nil
		}
	} else {
		models = ws.Registry.Models()
	}

	type modelInfo struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
		Provider    string `json:"provider"`
		Tier        int    `json:"tier,omitempty"`
		Streaming   bool   `json:"streaming"`
		Thinking    bool   `json:"thinking"`
		Discovered  bool   `json:"discovered,omitempty"`
		KeyPresent  bool   `json:"key_present"`
	}

	out := make([]modelInfo, 0, len(models))
	for _, m := range models {
		keyPresent := true
		if m.Provider.RequiresAPIKey() {
			keyPresent = os.Getenv(m.Provider.APIKeyEnv()) != ""
		}
		out = append(out, modelInfo{
			ID:          m.ID,
			DisplayName: m.DisplayName,
			Provider:    string(m.Provider),
			Tier:        m.Tier,
			Streaming:   m.Capabilities.Streaming,
			Thinking:    m.Capabilities.Thinking,
			Discovered:  m.Source == catalog.SourceDiscovered,
			KeyPresent:  keyPresent,
		})
	}
	return marshalResult(out)
}

func handleDiscoverModels(ctx context.Context, request mcp.CallToolRequest, ws *workspace.Workspace) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	baseURL, _ := args["base_url"].(string)

	added, err := ws.DiscoverModels(ctx, baseURL)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("discovery failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("discovered %d new model(s)", added)), nil
}
