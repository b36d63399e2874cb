package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/promptlab/promptlab/internal/evaluator"
	"github.com/promptlab/promptlab/internal/prompt"
	"github.com/promptlab/promptlab/internal/workspace"
)

func registerPromptTools(s *mcpserver.MCPServer, ws *workspace.Workspace) error {
	// get_prompt
	getTool := mcp.NewTool("get_prompt",
		mcp.WithDescription("Get the current prompt configuration and the fully composed prompt that would be sent to models"),
	)
	s.AddTool(getTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGetPrompt(ctx, request, ws)
	})

	// update_prompt
	updateTool := mcp.NewTool("update_prompt",
		mcp.WithDescription("Update fields of the prompt configuration. Only the provided fields change; run results and history are preserved."),
		mcp.WithString("content",
			mcp.Description("New prompt content"),
		),
		mcp.WithString("intent",
			mcp.Description("New intent text describing what the prompt should achieve"),
		),
		mcp.WithString("guardrails",
			mcp.Description("New guardrails text (constraints the outputs must respect)"),
		),
		mcp.WithString("name",
			mcp.Description("New configuration name"),
		),
		mcp.WithArray("models",
			mcp.Description("Replacement list of selected model ids (e.g. ['gpt-5.2', 'claude-sonnet-4-5'])"),
			mcp.WithStringItems(),
		),
	)
	s.AddTool(updateTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleUpdatePrompt(ctx, request, ws)
	})

	// run_prompt
	runTool := mcp.NewTool("run_prompt",
		mcp.WithDescription("Execute the current prompt against all selected models in parallel and wait for every model to finish. Commits a new version on completion."),
	)
	s.AddTool(runTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleRunPrompt(ctx, request, ws)
	})

	// get_results
	resultsTool := mcp.NewTool("get_results",
		mcp.WithDescription("Get the per-model results of the latest run, in selection order"),
	)
	s.AddTool(resultsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGetResults(ctx, request, ws)
	})

	// evaluate_outputs
	evalTool := mcp.NewTool("evaluate_outputs",
		mcp.WithDescription("Score the latest run's outputs with an LLM judge. Scores attach to the version that was current when evaluation started."),
		mcp.WithString("rubric",
			mcp.Description("Custom evaluation criteria (default: derived from the prompt's intent)"),
		),
		mcp.WithString("judge_model",
			mcp.Description("Model to use as judge (default: "+evaluator.DefaultJudgeModel+")"),
		),
	)
	s.AddTool(evalTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleEvaluateOutputs(ctx, request, ws)
	})

	return nil
}

func handleGetPrompt(_ context.Context, _ mcp.CallToolRequest, ws *workspace.Workspace) (*mcp.CallToolResult, error) {
	cfg := ws.Store.Config()
	composed := prompt.Compose(cfg)

	out := map[string]interface{}{
		"name":       cfg.Name,
		"content":    cfg.Content,
		"intent":     cfg.Intent,
		"guardrails": cfg.Guardrails,
		"examples":   cfg.Examples,
		"models":     cfg.SelectedModelIDs,
		"composed":   composed.Full,
		"runnable":   ws.Store.HasRunnableConfig(),
	}
	return marshalResult(out)
}

func handleUpdatePrompt(_ context.Context, request mcp.CallToolRequest, ws *workspace.Workspace) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	updated := false

	if content, ok := args["content"].(string); ok {
		ws.Store.UpdateContent(content)
		updated = true
	}
	if intent, ok := args["intent"].(string); ok {
		ws.Store.UpdateIntent(intent)
		updated = true
	}
	if guardrails, ok := args["guardrails"].(string); ok {
		ws.Store.UpdateGuardrails(guardrails)
		updated = true
	}
	if name, ok := args["name"].(string); ok {
		ws.Store.UpdateName(name)
		updated = true
	}
	if rawModels, ok := args["models"].([]interface{}); ok {
		ids := make([]string, 0, len(rawModels))
		for _, raw := range rawModels {
			id, ok := raw.(string)
			if !ok || id == "" {
				return mcp.NewToolResultError("models must be an array of non-empty strings"), nil
			}
			if _, known := ws.Registry.ByID(id); !known {
				return mcp.NewToolResultError(fmt.Sprintf("unknown model id %q", id)), nil
			}
			ids = append(ids, id)
		}
		ws.Store.SetSelectedModels(ids)
		updated = true
	}

	if !updated {
		return mcp.NewToolResultError("provide at least one field to update"), nil
	}

	cfg := ws.Store.Config()
	return marshalResult(map[string]interface{}{
		"name":     cfg.Name,
		"models":   cfg.SelectedModelIDs,
		"runnable": ws.Store.HasRunnableConfig(),
	})
}

func handleRunPrompt(ctx context.Context, _ mcp.CallToolRequest, ws *workspace.Workspace) (*mcp.CallToolResult, error) {
	if !ws.Orchestrator.CanExecute() {
		if ws.Tracker.IsExecuting() {
			return mcp.NewToolResultError("a run is already in progress"), nil
		}
		return mcp.NewToolResultError("nothing to run: set prompt content and select at least one model"), nil
	}

	if err := ws.Orchestrator.Run(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", err)), nil
	}
	return resultsSummary(ws)
}

func handleGetResults(_ context.Context, _ mcp.CallToolRequest, ws *workspace.Workspace) (*mcp.CallToolResult, error) {
	return resultsSummary(ws)
}

func handleEvaluateOutputs(ctx context.Context, request mcp.CallToolRequest, ws *workspace.Workspace) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	rubric, _ := args["rubric"].(string)
	judgeModel, _ := args["judge_model"].(string)

	if len(ws.Orchestrator.EvaluationOutputs()) == 0 {
		return mcp.NewToolResultError("no successful outputs to evaluate: run the prompt first"), nil
	}

	snap, err := ws.Orchestrator.Evaluate(ctx, rubric, judgeModel)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("evaluation failed: %v", err)), nil
	}
	return marshalResult(snap)
}

// resultsSummary renders the merged run view in selection order.
func resultsSummary(ws *workspace.Workspace) (*mcp.CallToolResult, error) {
	views := ws.Tracker.Snapshot(ws.Store.SelectedModelIDs())

	results := make([]map[string]interface{}, 0, len(views))
	for _, v := range views {
		entry := map[string]interface{}{
			"model":  v.ModelID,
			"status": string(v.Status),
		}
		if v.Content != "" {
			entry["output"] = v.Content
		}
		if v.Thinking != "" {
			entry["thinking"] = v.Thinking
		}
		if v.LatencyMs > 0 {
			entry["latency_ms"] = v.LatencyMs
		}
		if v.Err != nil {
			entry["error"] = map[string]interface{}{
				"kind":    string(v.Err.Kind),
				"message": v.Err.Message,
			}
		}
		results = append(results, entry)
	}
	return marshalResult(results)
}

func marshalResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
