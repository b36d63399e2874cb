// Package evaluator runs a one-shot LLM-as-judge call over a set of
// completed model outputs and attaches the resulting scores to the version
// history.
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/promptlab/promptlab/internal/catalog"
	"github.com/promptlab/promptlab/internal/llm"
)

// DefaultJudgeModel is used when no judge model is specified.
const DefaultJudgeModel = "claude-opus-4-5-20251101"

// Output is one completed model output handed to the judge.
type Output struct {
	ModelID   string           `json:"modelId"`
	ModelName string           `json:"modelName"`
	Provider  catalog.Provider `json:"provider"`
	Output    string           `json:"output"`
}

// Result is the judge's verdict for a single output.
type Result struct {
	ModelID    string   `json:"modelId"`
	Score      int      `json:"score"`
	Reasoning  string   `json:"reasoning"`
	Strengths  []string `json:"strengths,omitempty"`
	Weaknesses []string `json:"weaknesses,omitempty"`
}

// Snapshot is a complete evaluation outcome. Produced wholesale, never
// partially mutated.
type Snapshot struct {
	Rubric      string    `json:"evaluationPrompt"`
	Results     []Result  `json:"results"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// Clone deep-copies the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Results = make([]Result, len(s.Results))
	for i, r := range s.Results {
		r.Strengths = append([]string(nil), r.Strengths...)
		r.Weaknesses = append([]string(nil), r.Weaknesses...)
		out.Results[i] = r
	}
	return out
}

// State is the evaluation lifecycle phase.
type State string

const (
	StateIdle       State = "idle"
	StateEvaluating State = "evaluating"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// ParseError reports that the judge's response was not valid JSON after
// best-effort recovery. Distinct from a transport failure: the remote call
// itself succeeded.
type ParseError struct {
	Raw string
}

func (e *ParseError) Error() string {
	return "evaluation response is not valid JSON"
}

// History is the slice of the version ledger the coordinator needs: the
// identity of the latest entry at evaluation start, and targeted amendment.
type History interface {
	LatestVersionID() (string, bool)
	AttachEvaluation(versionID string, snap Snapshot) bool
}

// Coordinator runs judge calls. Only one evaluation may be in flight at a
// time; the last completed snapshot persists until cleared or superseded.
type Coordinator struct {
	client  llm.Client
	history History

	mu      sync.Mutex
	state   State
	current *Snapshot
	lastErr string
}

// NewCoordinator creates a Coordinator. history may be nil, in which case
// completed evaluations are not attached anywhere.
func NewCoordinator(client llm.Client, history History) *Coordinator {
	return &Coordinator{client: client, history: history, state: StateIdle}
}

// SetClient replaces the judge client. Not safe to call while an
// evaluation is in flight.
func (c *Coordinator) SetClient(client llm.Client) {
	c.mu.Lock()
	c.client = client
	c.mu.Unlock()
}

// State returns the current lifecycle phase.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the last completed evaluation snapshot, if any.
func (c *Coordinator) Current() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Snapshot{}, false
	}
	return c.current.Clone(), true
}

// LastError returns the failure message of the most recent failed
// evaluation.
func (c *Coordinator) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Clear discards the current evaluation snapshot. Called when a new prompt
// run invalidates prior scores.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	c.current = nil
	if c.state != StateEvaluating {
		c.state = StateIdle
	}
	c.mu.Unlock()
}

// Request carries everything the judge needs for one evaluation.
type Request struct {
	PromptContent string
	Intent        string
	// CustomRubric overrides the smart default when non-empty.
	CustomRubric string
	Outputs      []Output
	JudgeModelID string
}

// Evaluate runs a single non-streaming judge call over all outputs. On
// success the snapshot is attached to the ledger entry that was latest when
// the evaluation started. On failure the previous snapshot and the ledger
// are left untouched.
func (c *Coordinator) Evaluate(ctx context.Context, req Request) (*Snapshot, error) {
	if len(req.Outputs) == 0 {
		return nil, fmt.Errorf("no outputs to evaluate")
	}

	c.mu.Lock()
	if c.state == StateEvaluating {
		c.mu.Unlock()
		return nil, fmt.Errorf("evaluation already in progress")
	}
	c.state = StateEvaluating
	client := c.client
	c.mu.Unlock()

	// Capture the attach target before the judge call so a version pushed
	// mid-evaluation cannot receive scores that belong to its predecessor.
	var targetVersion string
	if c.history != nil {
		targetVersion, _ = c.history.LatestVersionID()
	}

	judgeModel := req.JudgeModelID
	if judgeModel == "" {
		judgeModel = DefaultJudgeModel
	}
	rubric := BuildRubric(req.Intent, req.CustomRubric)
	system := buildJudgePrompt(req.PromptContent, req.Intent, rubric, req.Outputs)

	slog.Info("starting evaluation",
		"judge_model", judgeModel,
		"outputs", len(req.Outputs),
	)

	resp, err := client.ChatCompletion(ctx, llm.ChatRequest{
		Model:         judgeModel,
		SystemMessage: system,
		UserMessage:   "Please evaluate the outputs now.",
		// Low temperature for consistent scoring.
		Temperature: llm.Float64Ptr(0.3),
		MaxTokens:   4096,
	})
	if err != nil {
		c.fail(err.Error())
		return nil, fmt.Errorf("evaluation call failed: %w", err)
	}

	results, err := parseEvaluations(resp.Content)
	if err != nil {
		slog.Error("failed to parse evaluation response", "error", err)
		c.fail(err.Error())
		return nil, err
	}

	snap := Snapshot{
		Rubric:      rubric,
		Results:     results,
		EvaluatedAt: time.Now(),
	}

	c.mu.Lock()
	c.state = StateComplete
	c.lastErr = ""
	stored := snap.Clone()
	c.current = &stored
	c.mu.Unlock()

	if c.history != nil && targetVersion != "" {
		if !c.history.AttachEvaluation(targetVersion, snap.Clone()) {
			slog.Warn("evaluation target version no longer present", "version_id", targetVersion)
		}
	}

	slog.Info("evaluation complete", "results", len(results))
	return &snap, nil
}

func (c *Coordinator) fail(msg string) {
	c.mu.Lock()
	c.state = StateFailed
	c.lastErr = msg
	// The previous successful snapshot survives a failure.
	c.mu.Unlock()
}

var jsonFencePattern = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// parseEvaluations extracts the judge's verdicts from a response that may
// be wrapped in markdown fencing or prose. Accepts either the documented
// {"evaluations": [...]} envelope or a bare array.
func parseEvaluations(raw string) ([]Result, error) {
	candidates := []string{raw}
	if m := jsonFencePattern.FindStringSubmatch(raw); m != nil {
		candidates = append([]string{m[1]}, candidates...)
	}
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start != -1 && end > start {
		candidates = append(candidates, raw[start:end+1])
	}
	if start, end := strings.Index(raw, "["), strings.LastIndex(raw, "]"); start != -1 && end > start {
		candidates = append(candidates, raw[start:end+1])
	}

	for _, content := range candidates {
		var envelope struct {
			Evaluations []Result `json:"evaluations"`
		}
		if err := json.Unmarshal([]byte(content), &envelope); err == nil && len(envelope.Evaluations) > 0 {
			return clampScores(envelope.Evaluations), nil
		}

		var bare []Result
		if err := json.Unmarshal([]byte(content), &bare); err == nil && len(bare) > 0 {
			return clampScores(bare), nil
		}
	}

	return nil, &ParseError{Raw: raw}
}

func clampScores(results []Result) []Result {
	for i := range results {
		if results[i].Score < ScaleMin {
			results[i].Score = ScaleMin
		}
		if results[i].Score > ScaleMax {
			results[i].Score = ScaleMax
		}
	}
	return results
}
