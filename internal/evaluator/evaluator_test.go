package evaluator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptlab/promptlab/internal/catalog"
	"github.com/promptlab/promptlab/internal/llm"
	"github.com/promptlab/promptlab/internal/testutil"
)

const judgeVerdict = `{
  "evaluations": [
    {"modelId": "gpt-5.2", "score": 85, "reasoning": "solid", "strengths": ["clear"], "weaknesses": ["long"]},
    {"modelId": "claude-sonnet-4-5", "score": 92, "reasoning": "excellent"}
  ]
}`

// fakeHistory records attachments and lets tests move the latest version
// out from under an in-flight evaluation.
type fakeHistory struct {
	latest     string
	known      map[string]bool
	attachedTo string
	attached   *Snapshot
}

func (h *fakeHistory) LatestVersionID() (string, bool) {
	return h.latest, h.latest != ""
}

func (h *fakeHistory) AttachEvaluation(versionID string, snap Snapshot) bool {
	if !h.known[versionID] {
		return false
	}
	h.attachedTo = versionID
	h.attached = &snap
	return true
}

// hookClient runs a callback before answering, so tests can interleave
// state changes with the judge call.
type hookClient struct {
	before   func()
	response string
	err      error
}

func (c *hookClient) ChatCompletion(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if c.before != nil {
		c.before()
	}
	if c.err != nil {
		return nil, c.err
	}
	return &llm.ChatResponse{Content: c.response}, nil
}

func (c *hookClient) ChatCompletionStream(ctx context.Context, req llm.ChatRequest) (llm.Stream, error) {
	return nil, fmt.Errorf("not supported")
}

func sampleOutputs() []Output {
	return []Output{
		{ModelID: "gpt-5.2", ModelName: "GPT-5.2", Provider: catalog.ProviderOpenAI, Output: "alpha"},
		{ModelID: "claude-sonnet-4-5", ModelName: "Claude Sonnet 4.5", Provider: catalog.ProviderAnthropic, Output: "beta"},
	}
}

func TestEvaluateSuccess(t *testing.T) {
	client := &testutil.MockLLMClient{DefaultResponse: judgeVerdict}
	history := &fakeHistory{latest: "version-1", known: map[string]bool{"version-1": true}}
	c := NewCoordinator(client, history)

	snap, err := c.Evaluate(context.Background(), Request{
		PromptContent: "Write a haiku",
		Intent:        "Poetry practice",
		Outputs:       sampleOutputs(),
	})
	require.NoError(t, err)
	require.Len(t, snap.Results, 2)
	assert.Equal(t, 85, snap.Results[0].Score)
	assert.Equal(t, "claude-sonnet-4-5", snap.Results[1].ModelID)
	assert.Equal(t, StateComplete, c.State())

	current, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, snap.Results, current.Results)

	// Scores land on the version that was latest at start.
	assert.Equal(t, "version-1", history.attachedTo)
	require.NotNil(t, history.attached)
	assert.Len(t, history.attached.Results, 2)

	// Default judge model and low temperature are used.
	req, ok := client.LastRequest()
	require.True(t, ok)
	assert.Equal(t, DefaultJudgeModel, req.Model)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.3, *req.Temperature, 0.001)
}

func TestEvaluateAttachesToVersionAtStart(t *testing.T) {
	history := &fakeHistory{
		latest: "version-1",
		known:  map[string]bool{"version-1": true, "version-2": true},
	}
	client := &hookClient{
		// A new version lands while the judge call is in flight.
		before:   func() { history.latest = "version-2" },
		response: judgeVerdict,
	}
	c := NewCoordinator(client, history)

	_, err := c.Evaluate(context.Background(), Request{PromptContent: "p", Outputs: sampleOutputs()})
	require.NoError(t, err)
	assert.Equal(t, "version-1", history.attachedTo)
}

func TestEvaluateMissingTargetVersion(t *testing.T) {
	// The target version was cleared mid-evaluation; the snapshot still
	// completes, it just has nowhere to attach.
	history := &fakeHistory{latest: "version-1", known: map[string]bool{}}
	c := NewCoordinator(&hookClient{response: judgeVerdict}, history)

	snap, err := c.Evaluate(context.Background(), Request{PromptContent: "p", Outputs: sampleOutputs()})
	require.NoError(t, err)
	assert.Len(t, snap.Results, 2)
	assert.Empty(t, history.attachedTo)
	assert.Equal(t, StateComplete, c.State())
}

func TestEvaluateNoOutputs(t *testing.T) {
	c := NewCoordinator(&testutil.MockLLMClient{}, nil)
	_, err := c.Evaluate(context.Background(), Request{PromptContent: "p"})
	assert.Error(t, err)
	assert.Equal(t, StateIdle, c.State())
}

func TestEvaluateCallFailurePreservesPreviousSnapshot(t *testing.T) {
	c := NewCoordinator(&hookClient{response: judgeVerdict}, nil)
	_, err := c.Evaluate(context.Background(), Request{PromptContent: "p", Outputs: sampleOutputs()})
	require.NoError(t, err)

	c.SetClient(&hookClient{err: errors.New("boom")})
	_, err = c.Evaluate(context.Background(), Request{PromptContent: "p", Outputs: sampleOutputs()})
	require.Error(t, err)

	assert.Equal(t, StateFailed, c.State())
	assert.Equal(t, "boom", c.LastError())

	current, ok := c.Current()
	require.True(t, ok)
	assert.Len(t, current.Results, 2)
}

func TestEvaluateParseFailure(t *testing.T) {
	c := NewCoordinator(&hookClient{response: "I cannot evaluate these outputs."}, nil)
	_, err := c.Evaluate(context.Background(), Request{PromptContent: "p", Outputs: sampleOutputs()})
	require.Error(t, err)

	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
	assert.Equal(t, StateFailed, c.State())
}

func TestEvaluateCustomJudgeModel(t *testing.T) {
	client := &testutil.MockLLMClient{
		Scripts: map[string]testutil.ModelScript{
			"gpt-5.2": {Response: judgeVerdict},
		},
	}
	c := NewCoordinator(client, nil)
	_, err := c.Evaluate(context.Background(), Request{
		PromptContent: "p",
		Outputs:       sampleOutputs(),
		JudgeModelID:  "gpt-5.2",
	})
	require.NoError(t, err)
}

func TestClearResetsSnapshot(t *testing.T) {
	c := NewCoordinator(&hookClient{response: judgeVerdict}, nil)
	_, err := c.Evaluate(context.Background(), Request{PromptContent: "p", Outputs: sampleOutputs()})
	require.NoError(t, err)

	c.Clear()
	_, ok := c.Current()
	assert.False(t, ok)
	assert.Equal(t, StateIdle, c.State())
}

func TestParseEvaluations(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{
			name: "clean envelope",
			raw:  `{"evaluations": [{"modelId": "a", "score": 50, "reasoning": "ok"}]}`,
			want: 1,
		},
		{
			name: "bare array",
			raw:  `[{"modelId": "a", "score": 50, "reasoning": "ok"}, {"modelId": "b", "score": 70, "reasoning": "ok"}]`,
			want: 2,
		},
		{
			name: "fenced json",
			raw:  "Here you go:\n```json\n{\"evaluations\": [{\"modelId\": \"a\", \"score\": 50, \"reasoning\": \"ok\"}]}\n```\nHope that helps!",
			want: 1,
		},
		{
			name: "prose around braces",
			raw:  `Sure! {"evaluations": [{"modelId": "a", "score": 50, "reasoning": "ok"}]} Done.`,
			want: 1,
		},
		{
			name:    "no json at all",
			raw:     "I refuse to answer in JSON.",
			wantErr: true,
		},
		{
			name:    "empty evaluations",
			raw:     `{"evaluations": []}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := parseEvaluations(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, results, tt.want)
		})
	}
}

func TestParseEvaluationsClampsScores(t *testing.T) {
	results, err := parseEvaluations(`{"evaluations": [
		{"modelId": "a", "score": 150, "reasoning": "r"},
		{"modelId": "b", "score": -5, "reasoning": "r"}
	]}`)
	require.NoError(t, err)
	assert.Equal(t, 100, results[0].Score)
	assert.Equal(t, 0, results[1].Score)
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	orig := Snapshot{
		Rubric: "r",
		Results: []Result{
			{ModelID: "a", Score: 50, Strengths: []string{"s1"}},
		},
	}
	cp := orig.Clone()
	cp.Results[0].Strengths[0] = "mutated"
	cp.Results[0].Score = 1

	assert.Equal(t, "s1", orig.Results[0].Strengths[0])
	assert.Equal(t, 50, orig.Results[0].Score)
}
