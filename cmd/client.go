package cmd

import (
	"os"

	"github.com/promptlab/promptlab/internal/catalog"
	"github.com/promptlab/promptlab/internal/evaluator"
	"github.com/promptlab/promptlab/internal/llm"
	"github.com/promptlab/promptlab/internal/workspace"
)

// newJudgeClient creates the LLM client used for judge calls. The judge
// model's provider decides the endpoint and key; explicit endpoint and
// api-key flags override both. Returns the resolved judge model id.
func newJudgeClient(ws *workspace.Workspace, judgeModelID, endpoint, apiKey string) (llm.Client, string) {
	if judgeModelID == "" {
		judgeModelID = evaluator.DefaultJudgeModel
	}

	provider := catalog.ProviderAnthropic
	modelName := judgeModelID
	if m, ok := ws.Registry.ByID(judgeModelID); ok {
		provider = m.Provider
		modelName = m.Name
	}

	var opts []llm.Option
	if endpoint != "" {
		opts = append(opts, llm.WithBaseURL(endpoint))
	} else {
		opts = append(opts, llm.WithBaseURL(provider.BaseURL()))
	}
	if apiKey != "" {
		opts = append(opts, llm.WithAPIKey(apiKey))
	} else if envKey := os.Getenv(provider.APIKeyEnv()); envKey != "" {
		opts = append(opts, llm.WithAPIKey(envKey))
	}
	return llm.NewOpenAIClient(opts...), modelName
}
