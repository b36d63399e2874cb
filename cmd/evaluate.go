package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/promptlab/promptlab/internal/evaluator"
	"github.com/promptlab/promptlab/internal/prompt"
	"github.com/promptlab/promptlab/internal/workspace"
)

func newEvaluateCmd() *cobra.Command {
	var (
		judgeModel string
		rubric     string
		endpoint   string
		apiKey     string
	)

	cmd := &cobra.Command{
		Use:   "evaluate <export-file>",
		Short: "Score an exported run with an LLM judge",
		Long: `Evaluate the outputs recorded in a prompt export file (produced by
'promptlab run --export') by sending them to a judge model that scores each
output from 0 to 100 against the prompt's intent or a custom rubric.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read export file: %w", err)
			}

			cfg, runs, err := prompt.Import(raw)
			if err != nil {
				return fmt.Errorf("failed to parse export file: %w", err)
			}

			var outputs []evaluator.Output
			for _, r := range runs {
				if r.Status != "completed" || r.Output == "" {
					continue
				}
				outputs = append(outputs, evaluator.Output{
					ModelID:   r.ModelID,
					ModelName: r.ModelID,
					Output:    r.Output,
				})
			}
			if len(outputs) == 0 {
				return fmt.Errorf("export file contains no successful outputs")
			}

			ws, err := workspace.New(workspace.Options{Config: cfg})
			if err != nil {
				return err
			}

			judgeClient, resolvedJudge := newJudgeClient(ws, judgeModel, endpoint, apiKey)
			coordinator := evaluator.NewCoordinator(judgeClient, nil)

			fmt.Printf("Evaluating %d output(s) from %s\n", len(outputs), args[0])
			fmt.Printf("Judge: %s\n\n", resolvedJudge)

			snap, err := coordinator.Evaluate(cmd.Context(), evaluator.Request{
				PromptContent: prompt.Compose(cfg).Full,
				Intent:        cfg.Intent,
				CustomRubric:  rubric,
				Outputs:       outputs,
				JudgeModelID:  resolvedJudge,
			})
			if err != nil {
				return err
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
		},
	}

	cmd.Flags().StringVar(&judgeModel, "judge-model", "", "Judge model id (default: Claude Opus)")
	cmd.Flags().StringVar(&rubric, "rubric", "", "Custom evaluation criteria")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Judge API endpoint URL (overrides the provider default)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Judge API key (overrides the provider's env var)")

	return cmd
}
