package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/promptlab/promptlab/internal/catalog"
	"github.com/promptlab/promptlab/internal/workspace"
)

func newModelsCmd() *cobra.Command {
	var (
		providerFilter string
		discoverLocal  bool
		ollamaURL      string
	)

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List available models",
		Long: `List the models promptlab can run prompts against: the built-in catalog
plus, with --ollama, any models installed in a local Ollama instance.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := workspace.New(workspace.Options{})
			if err != nil {
				return err
			}

			if discoverLocal {
				added, err := ws.DiscoverModels(cmd.Context(), ollamaURL)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Ollama discovery failed: %v\n\n", err)
				} else {
					fmt.Printf("Discovered %d local model(s) via Ollama.\n\n", added)
				}
			}

			var models []catalog.Model
			if providerFilter != "" {
				models = ws.Registry.ByProvider(catalog.Provider(providerFilter))
				if len(models) == 0 {
					return fmt.Errorf("no models for provider %q", providerFilter)
				}
			} else {
				models = ws.Registry.Models()
			}

			fmt.Printf("Available models:\n\n")
			for _, m := range models {
				keyNote := ""
				if m.Provider.RequiresAPIKey() && os.Getenv(m.Provider.APIKeyEnv()) == "" {
					keyNote = fmt.Sprintf("  (set %s)", m.Provider.APIKeyEnv())
				}
				source := ""
				if m.Source == catalog.SourceDiscovered {
					source = "  [local]"
				}
				fmt.Printf("  - %s%s%s\n", m.ID, source, keyNote)
				fmt.Printf("    %s (%s)\n", m.DisplayName, m.Provider)
				caps := "streaming"
				if m.Capabilities.Thinking {
					caps += ", thinking"
				}
				if m.Capabilities.Temperature {
					caps += ", temperature"
				}
				fmt.Printf("    Capabilities: %s\n\n", caps)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&providerFilter, "provider", "", "Filter by provider (openai, anthropic, google, ...)")
	cmd.Flags().BoolVar(&discoverLocal, "ollama", false, "Discover locally installed Ollama models")
	cmd.Flags().StringVar(&ollamaURL, "ollama-url", "", "Ollama endpoint (default: http://localhost:11434)")

	return cmd
}
