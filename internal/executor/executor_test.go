package executor

import (
	"context"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/promptlab/promptlab/internal/catalog"
	"github.com/promptlab/promptlab/internal/evaluator"
	"github.com/promptlab/promptlab/internal/history"
	"github.com/promptlab/promptlab/internal/llm"
	"github.com/promptlab/promptlab/internal/prompt"
	"github.com/promptlab/promptlab/internal/testutil"
	"github.com/promptlab/promptlab/internal/tracker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testModels() []catalog.Model {
	return []catalog.Model{
		{
			ID: "fast-model", Provider: catalog.ProviderOpenAI, Name: "fast-model",
			DisplayName: "Fast Model",
			Capabilities: catalog.Capabilities{
				Streaming: true, Temperature: true, SystemPrompt: true, MaxTokens: true,
				MaxOutputTokens:  1000,
				TemperatureRange: &catalog.TemperatureRange{Min: 0, Max: 1, Default: 0.7},
			},
		},
		{
			ID: "slow-model", Provider: catalog.ProviderAnthropic, Name: "slow-model",
			DisplayName:  "Slow Model",
			Capabilities: catalog.Capabilities{Streaming: true, SystemPrompt: true},
		},
		{
			ID: "local-model", Provider: catalog.ProviderOllama, Name: "local-model",
			DisplayName:  "Local Model",
			Capabilities: catalog.Capabilities{Streaming: true},
		},
	}
}

type fixture struct {
	orch    *Orchestrator
	store   *prompt.Store
	tracker *tracker.Tracker
	ledger  *history.Ledger
	client  *testutil.MockLLMClient
}

func newFixture(t *testing.T, cfg prompt.Config, client *testutil.MockLLMClient) *fixture {
	t.Helper()
	registry, err := catalog.NewRegistry(testModels())
	require.NoError(t, err)

	store := prompt.NewStore(cfg)
	trk := tracker.New()
	ledger := history.NewLedger()

	orch := New(registry, store, trk, ledger, evaluator.NewCoordinator(client, ledger))
	orch.SetKeyResolver(func(catalog.Provider) (string, bool) { return "test-key", true })
	orch.SetClientFactory(func(catalog.Model, string) llm.Client { return client })

	return &fixture{orch: orch, store: store, tracker: trk, ledger: ledger, client: client}
}

func runnableConfig(models ...string) prompt.Config {
	return prompt.Config{
		Name:             "test",
		Content:          "Write a haiku about Go.",
		SelectedModelIDs: models,
	}
}

func TestRunStreamsAndCommitsVersion(t *testing.T) {
	client := &testutil.MockLLMClient{
		Scripts: map[string]testutil.ModelScript{
			"fast-model": {Chunks: []llm.Chunk{{Content: "hello "}, {Content: "world"}}},
			"slow-model": {Chunks: []llm.Chunk{{Content: "goodbye"}, {Thinking: "hmm"}}},
		},
	}
	f := newFixture(t, runnableConfig("fast-model", "slow-model"), client)

	require.NoError(t, f.orch.Run(context.Background()))

	views := f.tracker.Snapshot([]string{"fast-model", "slow-model"})
	require.Len(t, views, 2)
	assert.Equal(t, tracker.StatusCompleted, views[0].Status)
	assert.Equal(t, "hello world", views[0].Content)
	assert.Equal(t, tracker.StatusCompleted, views[1].Status)
	assert.Equal(t, "goodbye", views[1].Content)
	assert.Equal(t, "hmm", views[1].Thinking)

	// One version committed, carrying both settled runs.
	require.Equal(t, 1, f.ledger.Len())
	v, ok := f.ledger.Version(0)
	require.True(t, ok)
	assert.Equal(t, history.SourceUser, v.Source)
	assert.Len(t, v.Snapshot.CompletedRuns, 2)
	assert.False(t, f.tracker.IsExecuting())
}

func TestRunCommitsAfterSlowestModel(t *testing.T) {
	// The version must include the slow model's result even though the
	// fast one settles long before it.
	client := &testutil.MockLLMClient{
		Scripts: map[string]testutil.ModelScript{
			"fast-model": {Chunks: []llm.Chunk{{Content: "quick"}}},
			"slow-model": {Chunks: []llm.Chunk{{Content: "late"}}, Delay: 50 * time.Millisecond},
		},
	}
	f := newFixture(t, runnableConfig("fast-model", "slow-model"), client)

	require.NoError(t, f.orch.Run(context.Background()))

	v, ok := f.ledger.Version(0)
	require.True(t, ok)
	require.Len(t, v.Snapshot.CompletedRuns, 2)
	byModel := map[string]string{}
	for _, r := range v.Snapshot.CompletedRuns {
		byModel[r.ModelID] = r.Output
	}
	assert.Equal(t, "quick", byModel["fast-model"])
	assert.Equal(t, "late", byModel["slow-model"])
}

func TestRunFailureDoesNotBlockOthers(t *testing.T) {
	client := &testutil.MockLLMClient{
		Scripts: map[string]testutil.ModelScript{
			"fast-model": {Err: &openai.APIError{HTTPStatusCode: 429, Message: "rate limited"}},
			"slow-model": {Chunks: []llm.Chunk{{Content: "fine"}}},
		},
	}
	f := newFixture(t, runnableConfig("fast-model", "slow-model"), client)

	require.NoError(t, f.orch.Run(context.Background()))

	views := f.tracker.Snapshot([]string{"fast-model", "slow-model"})
	require.Len(t, views, 2)
	assert.Equal(t, tracker.StatusFailed, views[0].Status)
	require.NotNil(t, views[0].Err)
	assert.Equal(t, tracker.ErrorAPI, views[0].Err.Kind)
	assert.Equal(t, tracker.StatusCompleted, views[1].Status)
	assert.Equal(t, "fine", views[1].Content)

	// Failed runs still appear in the committed snapshot.
	v, _ := f.ledger.Version(0)
	assert.Len(t, v.Snapshot.CompletedRuns, 2)
}

func TestRunMissingAPIKeyFailsWithoutCall(t *testing.T) {
	client := &testutil.MockLLMClient{
		Scripts: map[string]testutil.ModelScript{
			"local-model": {Chunks: []llm.Chunk{{Content: "local ok"}}},
		},
	}
	f := newFixture(t, runnableConfig("fast-model", "local-model"), client)
	f.orch.SetKeyResolver(func(p catalog.Provider) (string, bool) { return "", false })

	require.NoError(t, f.orch.Run(context.Background()))

	views := f.tracker.Snapshot([]string{"fast-model", "local-model"})
	require.Len(t, views, 2)
	require.NotNil(t, views[0].Err)
	assert.Equal(t, tracker.ErrorMissingAPIKey, views[0].Err.Kind)
	assert.Contains(t, views[0].Err.Message, "OPENAI_API_KEY")

	// Ollama needs no key; its run proceeds.
	assert.Equal(t, tracker.StatusCompleted, views[1].Status)

	// Only the keyless provider reached the client.
	assert.Equal(t, 1, client.Calls)
}

func TestRunUnknownModel(t *testing.T) {
	client := &testutil.MockLLMClient{}
	f := newFixture(t, runnableConfig("no-such-model"), client)

	require.NoError(t, f.orch.Run(context.Background()))

	views := f.tracker.Snapshot([]string{"no-such-model"})
	require.Len(t, views, 1)
	require.NotNil(t, views[0].Err)
	assert.Equal(t, tracker.ErrorUnknown, views[0].Err.Kind)
	assert.Zero(t, client.Calls)
}

func TestCanExecute(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		models    []string
		executing bool
		want      bool
	}{
		{"runnable and idle", "prompt", []string{"fast-model"}, false, true},
		{"empty content", "", []string{"fast-model"}, false, false},
		{"whitespace content", "   \n", []string{"fast-model"}, false, false},
		{"no models", "prompt", nil, false, false},
		{"already executing", "prompt", []string{"fast-model"}, true, false},
		{"nothing at all", "", nil, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, prompt.Config{Content: tt.content, SelectedModelIDs: tt.models}, &testutil.MockLLMClient{})
			if tt.executing {
				f.tracker.StartRun("fast-model", "run-1")
			}
			assert.Equal(t, tt.want, f.orch.CanExecute())
		})
	}
}

func TestRunIsSilentNoOpWhenNotExecutable(t *testing.T) {
	client := &testutil.MockLLMClient{}
	f := newFixture(t, prompt.Config{Content: ""}, client)

	require.NoError(t, f.orch.Run(context.Background()))
	assert.Zero(t, client.Calls)
	assert.Zero(t, f.ledger.Len())
	_, ok := f.orch.LastSentPrompt()
	assert.False(t, ok)
}

func TestRunRequestShaping(t *testing.T) {
	client := &testutil.MockLLMClient{
		Scripts: map[string]testutil.ModelScript{
			"fast-model": {Chunks: []llm.Chunk{{Content: "ok"}}},
			"slow-model": {Chunks: []llm.Chunk{{Content: "ok"}}},
		},
	}
	cfg := runnableConfig("fast-model", "slow-model")
	cfg.Parameters = prompt.Parameters{
		Temperature:  llm.Float64Ptr(5.0),
		MaxTokens:    99999,
		SystemPrompt: "Be terse.",
	}
	f := newFixture(t, cfg, client)

	require.NoError(t, f.orch.Run(context.Background()))

	byModel := map[string]llm.ChatRequest{}
	for _, req := range client.Requests {
		byModel[req.Model] = req
	}

	// fast-model clamps temperature and max tokens to its declared limits.
	fast := byModel["fast-model"]
	require.NotNil(t, fast.Temperature)
	assert.InDelta(t, 1.0, *fast.Temperature, 0.001)
	assert.Equal(t, 1000, fast.MaxTokens)
	assert.Equal(t, "Be terse.", fast.SystemMessage)

	// slow-model declares no temperature or max-tokens support; both drop.
	slow := byModel["slow-model"]
	assert.Nil(t, slow.Temperature)
	assert.Zero(t, slow.MaxTokens)
	assert.Equal(t, "Be terse.", slow.SystemMessage)
}

func TestRunComposesExtras(t *testing.T) {
	client := &testutil.MockLLMClient{
		Scripts: map[string]testutil.ModelScript{
			"fast-model": {Chunks: []llm.Chunk{{Content: "ok"}}},
		},
	}
	cfg := runnableConfig("fast-model")
	cfg.Intent = "Practice poetry"
	f := newFixture(t, cfg, client)

	require.NoError(t, f.orch.Run(context.Background()))

	req, ok := client.LastRequest()
	require.True(t, ok)
	assert.Contains(t, req.UserMessage, "## Intent")
	assert.Contains(t, req.UserMessage, "## Prompt")

	sent, ok := f.orch.LastSentPrompt()
	require.True(t, ok)
	assert.Equal(t, req.UserMessage, sent)
}

func TestRunRerunReplacesResults(t *testing.T) {
	client := &testutil.MockLLMClient{
		Scripts: map[string]testutil.ModelScript{
			"fast-model": {Chunks: []llm.Chunk{{Content: "first"}}},
		},
	}
	f := newFixture(t, runnableConfig("fast-model"), client)

	require.NoError(t, f.orch.Run(context.Background()))
	client.Scripts["fast-model"] = testutil.ModelScript{Chunks: []llm.Chunk{{Content: "second"}}}
	require.NoError(t, f.orch.Run(context.Background()))

	views := f.tracker.Snapshot([]string{"fast-model"})
	require.Len(t, views, 1)
	assert.Equal(t, "second", views[0].Content)
	assert.Equal(t, 2, f.ledger.Len())
}

func TestEvaluateUsesSettledOutputs(t *testing.T) {
	verdict := `{"evaluations": [{"modelId": "fast-model", "score": 90, "reasoning": "good"}]}`
	client := &testutil.MockLLMClient{
		Scripts: map[string]testutil.ModelScript{
			"fast-model": {Chunks: []llm.Chunk{{Content: "a haiku"}}},
		},
		DefaultResponse: verdict,
	}
	f := newFixture(t, runnableConfig("fast-model"), client)

	require.NoError(t, f.orch.Run(context.Background()))

	snap, err := f.orch.Evaluate(context.Background(), "", "")
	require.NoError(t, err)
	require.Len(t, snap.Results, 1)
	assert.Equal(t, 90, snap.Results[0].Score)

	// The scores attach to the version committed by the run.
	v, ok := f.ledger.Version(0)
	require.True(t, ok)
	require.NotNil(t, v.Snapshot.Evaluation)
	assert.Equal(t, 90, v.Snapshot.Evaluation.Results[0].Score)
}

func TestEvaluationOutputsSkipFailures(t *testing.T) {
	client := &testutil.MockLLMClient{
		Scripts: map[string]testutil.ModelScript{
			"fast-model": {Err: &openai.APIError{HTTPStatusCode: 500, Message: "server error"}},
			"slow-model": {Chunks: []llm.Chunk{{Content: "fine"}}},
		},
	}
	f := newFixture(t, runnableConfig("fast-model", "slow-model"), client)

	require.NoError(t, f.orch.Run(context.Background()))

	outputs := f.orch.EvaluationOutputs()
	require.Len(t, outputs, 1)
	assert.Equal(t, "slow-model", outputs[0].ModelID)
	assert.Equal(t, "Slow Model", outputs[0].ModelName)
	assert.Equal(t, catalog.ProviderAnthropic, outputs[0].Provider)
	assert.Equal(t, "fine", outputs[0].Output)
}
