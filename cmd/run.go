package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/promptlab/promptlab/internal/prompt"
	"github.com/promptlab/promptlab/internal/tracker"
	"github.com/promptlab/promptlab/internal/workspace"
)

func newRunCmd() *cobra.Command {
	var (
		models        []string
		judge         bool
		judgeModel    string
		rubric        string
		endpoint      string
		apiKey        string
		exportPath    string
		discoverLocal bool
		ollamaURL     string
		timeout       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <prompt-file>",
		Short: "Run a prompt file against the selected models",
		Long: `Execute a prompt defined in a YAML file against every selected model in
parallel, streaming progress as models finish. The prompt file declares the
content plus optional intent, examples, guardrails, model selection, and
generation parameters.

With --judge, the settled outputs are scored by an LLM judge afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			cfg, err := prompt.LoadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to load prompt file: %w", err)
			}
			if len(models) > 0 {
				cfg.SelectedModelIDs = models
			}

			ws, err := workspace.New(workspace.Options{Config: cfg})
			if err != nil {
				return err
			}

			if discoverLocal {
				added, err := ws.DiscoverModels(ctx, ollamaURL)
				if err != nil {
					slog.Warn("ollama discovery failed", "error", err)
				} else if added > 0 {
					fmt.Printf("Discovered %d local model(s) via Ollama.\n", added)
				}
			}

			for _, id := range ws.Store.SelectedModelIDs() {
				if _, ok := ws.Registry.ByID(id); !ok {
					return fmt.Errorf("unknown model id %q (see 'promptlab models')", id)
				}
			}
			if !ws.Orchestrator.CanExecute() {
				return fmt.Errorf("nothing to run: the prompt needs content and at least one model")
			}

			judgeClient, resolvedJudge := newJudgeClient(ws, judgeModel, endpoint, apiKey)
			ws.Evaluator.SetClient(judgeClient)

			composed := prompt.Compose(ws.Store.Config())
			fmt.Printf("Prompt: %s\n", displayName(cfg))
			fmt.Printf("Models: %s\n", strings.Join(ws.Store.SelectedModelIDs(), ", "))
			if composed.HasExtras {
				fmt.Println("Composition: intent/examples/guardrails sections included")
			}
			fmt.Println()

			ws.Tracker.SetNotifyFunc(progressPrinter(ws))

			if err := ws.Orchestrator.Run(ctx); err != nil {
				return err
			}
			ws.Tracker.SetNotifyFunc(nil)
			fmt.Print("\r")

			printResults(ws)

			if judge {
				if err := runJudge(ctx, ws, rubric, resolvedJudge); err != nil {
					return err
				}
			}

			if exportPath != "" {
				raw, err := ws.ExportCurrent()
				if err != nil {
					return err
				}
				if err := os.WriteFile(exportPath, raw, 0o644); err != nil {
					return fmt.Errorf("failed to write export: %w", err)
				}
				fmt.Printf("\nExported to %s\n", exportPath)
			}

			return nil
		},
	}

	cmd.Flags().StringSliceVar(&models, "model", nil, "Model id(s) to run (overrides the prompt file selection)")
	cmd.Flags().BoolVar(&judge, "judge", false, "Score the outputs with an LLM judge after the run")
	cmd.Flags().StringVar(&judgeModel, "judge-model", "", "Judge model id (default: Claude Opus)")
	cmd.Flags().StringVar(&rubric, "rubric", "", "Custom evaluation criteria for the judge")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Judge API endpoint URL (overrides the provider default)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Judge API key (overrides the provider's env var)")
	cmd.Flags().StringVar(&exportPath, "export", "", "Write prompt and results to a JSON export file")
	cmd.Flags().BoolVar(&discoverLocal, "ollama", false, "Discover locally installed Ollama models first")
	cmd.Flags().StringVar(&ollamaURL, "ollama-url", "", "Ollama endpoint (default: http://localhost:11434)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall timeout for the run (e.g. 5m). 0 means no timeout")

	return cmd
}

func displayName(cfg prompt.Config) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	return "(unnamed)"
}

// progressPrinter renders a one-line settled/total counter on every tracker
// state change.
func progressPrinter(ws *workspace.Workspace) func() {
	return func() {
		views := ws.Tracker.Snapshot(ws.Store.SelectedModelIDs())
		settled := 0
		for _, v := range views {
			if v.Status != tracker.StatusStreaming {
				settled++
			}
		}
		fmt.Printf("\r  %d/%d models finished...", settled, len(views))
	}
}

func printResults(ws *workspace.Workspace) {
	for _, v := range ws.Tracker.Snapshot(ws.Store.SelectedModelIDs()) {
		fmt.Printf("=== %s ===\n", v.ModelID)
		if v.Err != nil {
			fmt.Printf("FAILED (%s): %s\n\n", v.Err.Kind, v.Err.Message)
			continue
		}
		if v.Thinking != "" {
			fmt.Printf("[thinking]\n%s\n\n", v.Thinking)
		}
		fmt.Printf("%s\n", v.Content)
		if v.LatencyMs > 0 {
			fmt.Printf("(%.1fs)\n", float64(v.LatencyMs)/1000)
		}
		fmt.Println()
	}
}

func runJudge(ctx context.Context, ws *workspace.Workspace, rubric, judgeModel string) error {
	outputs := ws.Orchestrator.EvaluationOutputs()
	if len(outputs) == 0 {
		fmt.Println("No successful outputs to judge.")
		return nil
	}

	fmt.Printf("Judging %d output(s) with %s...\n\n", len(outputs), judgeModel)
	snap, err := ws.Orchestrator.Evaluate(ctx, rubric, judgeModel)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	fmt.Println("Scores:")
	for _, r := range snap.Results {
		fmt.Printf("  %s: %d/100\n", r.ModelID, r.Score)
		fmt.Printf("    %s\n", r.Reasoning)
		for _, s := range r.Strengths {
			fmt.Printf("    + %s\n", s)
		}
		for _, w := range r.Weaknesses {
			fmt.Printf("    - %s\n", w)
		}
	}
	return nil
}
