// Package workspace assembles the components of a prompt-engineering
// session and wires their cross-cutting side effects together.
package workspace

import (
	"context"
	"fmt"
	"os"

	"github.com/promptlab/promptlab/internal/catalog"
	"github.com/promptlab/promptlab/internal/evaluator"
	"github.com/promptlab/promptlab/internal/executor"
	"github.com/promptlab/promptlab/internal/history"
	"github.com/promptlab/promptlab/internal/llm"
	"github.com/promptlab/promptlab/internal/prompt"
	"github.com/promptlab/promptlab/internal/tracker"
)

// Workspace holds shared dependencies for CLI commands and MCP tool
// handlers.
type Workspace struct {
	Registry     *catalog.Registry
	Store        *prompt.Store
	Tracker      *tracker.Tracker
	Ledger       *history.Ledger
	Evaluator    *evaluator.Coordinator
	Orchestrator *executor.Orchestrator
}

// Options configures workspace assembly.
type Options struct {
	// Config is the initial prompt configuration.
	Config prompt.Config
	// JudgeClient overrides the default judge client. Used by tests.
	JudgeClient llm.Client
	// OllamaBaseURL overrides the local Ollama endpoint for discovery.
	OllamaBaseURL string
}

// New builds a fully wired workspace around the embedded model catalog.
func New(opts Options) (*Workspace, error) {
	registry, err := catalog.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load model catalog: %w", err)
	}

	store := prompt.NewStore(opts.Config)
	trk := tracker.New()
	ledger := history.NewLedger()

	judge := opts.JudgeClient
	if judge == nil {
		judge = defaultJudgeClient()
	}
	eval := evaluator.NewCoordinator(judge, ledger)
	orch := executor.New(registry, store, trk, ledger, eval)

	ws := &Workspace{
		Registry:     registry,
		Store:        store,
		Tracker:      trk,
		Ledger:       ledger,
		Evaluator:    eval,
		Orchestrator: orch,
	}

	// Replacing the whole document invalidates everything derived from
	// the old one: streamed runs, version history, and judge scores.
	store.SetReplaceHook(func() {
		trk.Clear()
		ledger.Clear()
		eval.Clear()
	})

	return ws, nil
}

// defaultJudgeClient talks to the provider of the default judge model.
func defaultJudgeClient() llm.Client {
	p := catalog.ProviderAnthropic
	opts := []llm.Option{llm.WithBaseURL(p.BaseURL())}
	if key := os.Getenv(p.APIKeyEnv()); key != "" {
		opts = append(opts, llm.WithAPIKey(key))
	}
	return llm.NewOpenAIClient(opts...)
}

// DiscoverModels augments the registry with locally installed Ollama
// models. An unreachable Ollama is not an error for the caller: the static
// catalog still works.
func (w *Workspace) DiscoverModels(ctx context.Context, baseURL string) (int, error) {
	return w.Registry.DiscoverOllama(ctx, baseURL)
}

// ExportCurrent serializes the live configuration together with the
// settled runs of the latest execution.
func (w *Workspace) ExportCurrent() ([]byte, error) {
	cfg := w.Store.Config()
	var runs []prompt.ExportedRun
	for _, r := range w.Tracker.Completed() {
		status := "completed"
		if !r.Succeeded() {
			status = "failed"
		}
		runs = append(runs, prompt.ExportedRun{
			ModelID:   r.ModelID,
			Output:    r.Output,
			Thinking:  r.Thinking,
			Status:    status,
			LatencyMs: r.LatencyMs,
		})
	}
	return prompt.Export(cfg, runs)
}

// ImportDocument replaces the live configuration with an imported one.
// The replace hook clears run state, history, and evaluation scores.
func (w *Workspace) ImportDocument(raw []byte) error {
	cfg, _, err := prompt.Import(raw)
	if err != nil {
		return err
	}
	w.Store.SetConfiguration(cfg)
	return nil
}
