// Package executor fans a composed prompt out to every selected model in
// parallel, feeds streamed output into the run tracker, and commits a
// version snapshot once all runs have settled.
package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/promptlab/promptlab/internal/catalog"
	"github.com/promptlab/promptlab/internal/evaluator"
	"github.com/promptlab/promptlab/internal/history"
	"github.com/promptlab/promptlab/internal/llm"
	"github.com/promptlab/promptlab/internal/prompt"
	"github.com/promptlab/promptlab/internal/tracker"
)

// KeyResolverFunc returns the API key for a provider. The second return
// reports whether a key was found.
type KeyResolverFunc func(p catalog.Provider) (string, bool)

// ClientFactoryFunc builds an LLM client for a model. Swapped out in tests.
type ClientFactoryFunc func(m catalog.Model, apiKey string) llm.Client

// EnvKeyResolver looks keys up in the process environment.
func EnvKeyResolver(p catalog.Provider) (string, bool) {
	env := p.APIKeyEnv()
	if env == "" {
		return "", true
	}
	key := os.Getenv(env)
	return key, key != ""
}

// Orchestrator coordinates a single prompt run across models. Exactly one
// run may be in flight at a time; per-model failures never abort the rest
// of the batch.
type Orchestrator struct {
	registry  *catalog.Registry
	store     *prompt.Store
	tracker   *tracker.Tracker
	ledger    *history.Ledger
	evaluator *evaluator.Coordinator

	keyResolver   KeyResolverFunc
	clientFactory ClientFactoryFunc

	mu       sync.Mutex
	lastSent string
}

// New creates an Orchestrator wired to the given components. evaluator may
// be nil when judging is not configured.
func New(registry *catalog.Registry, store *prompt.Store, trk *tracker.Tracker, ledger *history.Ledger, eval *evaluator.Coordinator) *Orchestrator {
	return &Orchestrator{
		registry:      registry,
		store:         store,
		tracker:       trk,
		ledger:        ledger,
		evaluator:     eval,
		keyResolver:   EnvKeyResolver,
		clientFactory: defaultClientFactory,
	}
}

// SetKeyResolver replaces the API key lookup.
func (o *Orchestrator) SetKeyResolver(fn KeyResolverFunc) {
	o.keyResolver = fn
}

// SetClientFactory replaces the per-model client constructor.
func (o *Orchestrator) SetClientFactory(fn ClientFactoryFunc) {
	o.clientFactory = fn
}

func defaultClientFactory(m catalog.Model, apiKey string) llm.Client {
	opts := []llm.Option{llm.WithBaseURL(m.Provider.BaseURL())}
	if apiKey != "" {
		opts = append(opts, llm.WithAPIKey(apiKey))
	}
	return llm.NewOpenAIClient(opts...)
}

// CanExecute reports whether a run may start now: the configuration is
// runnable and no run is already in flight. Derived fresh on every call.
func (o *Orchestrator) CanExecute() bool {
	return o.store.HasRunnableConfig() && !o.tracker.IsExecuting()
}

// LastSentPrompt returns the fully composed prompt of the most recent run.
func (o *Orchestrator) LastSentPrompt() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastSent, o.lastSent != ""
}

// Run executes the current configuration against every selected model and
// blocks until all runs settle, then commits a version. When execution is
// not currently permitted it returns without doing anything.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.CanExecute() {
		return nil
	}

	cfg := o.store.Config()
	composed := prompt.Compose(cfg)

	o.mu.Lock()
	o.lastSent = composed.Full
	o.mu.Unlock()

	// A fresh run invalidates any prior evaluation scores.
	if o.evaluator != nil {
		o.evaluator.Clear()
	}

	slog.Info("starting run", "models", len(cfg.SelectedModelIDs))

	g, ctx := errgroup.WithContext(ctx)
	for _, modelID := range cfg.SelectedModelIDs {
		g.Go(func() error {
			o.runModel(ctx, modelID, composed.Full, cfg.Parameters)
			return nil
		})
	}
	// Barrier: the version commit must see every run settled.
	_ = g.Wait()

	o.ledger.Push(history.SourceUser, "Run", "", history.Snapshot{
		Content:          cfg.Content,
		Intent:           cfg.Intent,
		Examples:         cfg.Examples,
		Guardrails:       cfg.Guardrails,
		SelectedModelIDs: cfg.SelectedModelIDs,
		CompletedRuns:    o.tracker.Completed(),
	})

	slog.Info("run complete", "models", len(cfg.SelectedModelIDs))
	return nil
}

// runModel drives one model's stream from start to settle. All outcomes,
// including failures, land in the tracker; nothing propagates as an error.
func (o *Orchestrator) runModel(ctx context.Context, modelID, promptText string, params prompt.Parameters) {
	runID := uuid.NewString()
	o.tracker.StartRun(modelID, runID)

	model, ok := o.registry.ByID(modelID)
	if !ok {
		o.tracker.FailRun(modelID, runID, "unknown model", tracker.ErrorUnknown, "")
		return
	}

	var apiKey string
	if model.Provider.RequiresAPIKey() {
		key, found := o.keyResolver(model.Provider)
		if !found {
			o.tracker.FailRun(modelID, runID,
				"missing API key: set "+model.Provider.APIKeyEnv(),
				tracker.ErrorMissingAPIKey, model.Provider)
			return
		}
		apiKey = key
	}

	client := o.clientFactory(model, apiKey)
	req := buildModelRequest(model, promptText, params)
	started := time.Now()

	if !model.Capabilities.Streaming {
		resp, err := client.ChatCompletion(ctx, req)
		if err != nil {
			o.failRun(modelID, runID, model.Provider, err)
			return
		}
		o.tracker.AppendDelta(modelID, runID, tracker.Delta{Content: resp.Content, Thinking: resp.Thinking})
		o.tracker.CompleteRun(modelID, runID, tracker.Result{
			Output:    resp.Content,
			Thinking:  resp.Thinking,
			LatencyMs: time.Since(started).Milliseconds(),
		})
		return
	}

	stream, err := client.ChatCompletionStream(ctx, req)
	if err != nil {
		o.failRun(modelID, runID, model.Provider, err)
		return
	}
	defer stream.Close()

	var content, thinking strings.Builder
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			o.failRun(modelID, runID, model.Provider, err)
			return
		}
		content.WriteString(chunk.Content)
		thinking.WriteString(chunk.Thinking)
		o.tracker.AppendDelta(modelID, runID, tracker.Delta{Content: chunk.Content, Thinking: chunk.Thinking})
	}

	o.tracker.CompleteRun(modelID, runID, tracker.Result{
		Output:    content.String(),
		Thinking:  thinking.String(),
		LatencyMs: time.Since(started).Milliseconds(),
	})
}

func (o *Orchestrator) failRun(modelID, runID string, provider catalog.Provider, err error) {
	kind := tracker.ErrorUnknown
	switch {
	case llm.IsAPIError(err):
		kind = tracker.ErrorAPI
	case llm.IsNetworkError(err):
		kind = tracker.ErrorNetwork
	}
	slog.Error("model run failed", "model", modelID, "kind", kind, "error", err)
	o.tracker.FailRun(modelID, runID, err.Error(), kind, provider)
}

// buildModelRequest shapes the request around the model's capabilities:
// unsupported parameters are dropped, supported ones clamped.
func buildModelRequest(model catalog.Model, promptText string, params prompt.Parameters) llm.ChatRequest {
	req := llm.ChatRequest{
		Model:       model.Name,
		UserMessage: promptText,
	}
	if model.Capabilities.SystemPrompt && params.SystemPrompt != "" {
		req.SystemMessage = params.SystemPrompt
	}
	if model.Capabilities.Temperature && params.Temperature != nil {
		req.Temperature = llm.Float64Ptr(model.ClampTemperature(*params.Temperature))
	}
	if model.Capabilities.MaxTokens && params.MaxTokens > 0 {
		req.MaxTokens = model.ClampMaxTokens(params.MaxTokens)
	}
	return req
}

// EvaluationOutputs collects the successful settled runs in display order,
// shaped for the judge.
func (o *Orchestrator) EvaluationOutputs() []evaluator.Output {
	order := o.store.SelectedModelIDs()
	var outputs []evaluator.Output
	for _, view := range o.tracker.Snapshot(order) {
		if view.Status != tracker.StatusCompleted {
			continue
		}
		name := view.ModelID
		var provider catalog.Provider
		if m, ok := o.registry.ByID(view.ModelID); ok {
			name = m.DisplayName
			provider = m.Provider
		}
		outputs = append(outputs, evaluator.Output{
			ModelID:   view.ModelID,
			ModelName: name,
			Provider:  provider,
			Output:    view.Content,
		})
	}
	return outputs
}

// Evaluate judges the current settled outputs against the configuration's
// intent, using the coordinator wired at construction.
func (o *Orchestrator) Evaluate(ctx context.Context, customRubric, judgeModelID string) (*evaluator.Snapshot, error) {
	if o.evaluator == nil {
		return nil, errors.New("evaluation is not configured")
	}
	cfg := o.store.Config()
	promptText, ok := o.LastSentPrompt()
	if !ok {
		promptText = prompt.Compose(cfg).Full
	}
	return o.evaluator.Evaluate(ctx, evaluator.Request{
		PromptContent: promptText,
		Intent:        cfg.Intent,
		CustomRubric:  customRubric,
		Outputs:       o.EvaluationOutputs(),
		JudgeModelID:  judgeModelID,
	})
}
