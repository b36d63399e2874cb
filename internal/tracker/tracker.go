// Package tracker maintains the lifecycle state of concurrently streaming
// model runs: which models are mid-stream, which have settled, and a merged
// display-ordered view of both.
package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/promptlab/promptlab/internal/catalog"
)

// ErrorKind classifies a failed run so callers can pick the right remedy
// (configure a key vs. retry).
type ErrorKind string

const (
	ErrorMissingAPIKey ErrorKind = "missing_api_key"
	ErrorAPI           ErrorKind = "api_error"
	ErrorNetwork       ErrorKind = "network_error"
	ErrorUnknown       ErrorKind = "unknown"
)

// Status is the lifecycle phase of a model's run.
type Status string

const (
	StatusStreaming Status = "streaming"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// RunError describes why a run failed.
type RunError struct {
	Kind     ErrorKind        `json:"kind"`
	Message  string           `json:"message"`
	Provider catalog.Provider `json:"provider,omitempty"`
}

// Delta is one streamed increment for a run.
type Delta struct {
	Content  string
	Thinking string
}

// Result holds the final output of a successful run.
type Result struct {
	Output    string
	Thinking  string
	LatencyMs int64
}

// activeRun is a run currently streaming.
type activeRun struct {
	runID    string
	content  string
	thinking string
	started  time.Time
}

// CompletedRun is a settled run, successful or failed. Value type; safe to
// copy into history snapshots.
type CompletedRun struct {
	RunID     string    `json:"runId"`
	ModelID   string    `json:"modelId"`
	Output    string    `json:"output"`
	Thinking  string    `json:"thinking,omitempty"`
	Err       *RunError `json:"error,omitempty"`
	LatencyMs int64     `json:"latencyMs,omitempty"`
}

// Succeeded reports whether the run settled without error.
func (r CompletedRun) Succeeded() bool {
	return r.Err == nil
}

// RunView is one entry of the merged active+completed view.
type RunView struct {
	ModelID   string
	Status    Status
	Content   string
	Thinking  string
	Err       *RunError
	LatencyMs int64
}

// Tracker tracks all per-model run state machines. Methods are safe for
// concurrent use; each mutation is atomic.
type Tracker struct {
	mu        sync.Mutex
	active    map[string]*activeRun
	completed map[string]CompletedRun
	executing bool
	notify    func()
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{
		active:    make(map[string]*activeRun),
		completed: make(map[string]CompletedRun),
	}
}

// SetNotifyFunc registers a callback invoked after every state change.
// The callback runs outside the tracker's lock.
func (t *Tracker) SetNotifyFunc(fn func()) {
	t.mu.Lock()
	t.notify = fn
	t.mu.Unlock()
}

// StartRun transitions modelID to Streaming with empty buffers. Any prior
// settled entry for the model is removed so stale output is never shown
// next to a fresh stream.
func (t *Tracker) StartRun(modelID, runID string) {
	t.mu.Lock()
	t.active[modelID] = &activeRun{runID: runID, started: time.Now()}
	delete(t.completed, modelID)
	t.executing = true
	notify := t.notify
	t.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// AppendDelta concatenates a chunk onto the model's streaming buffers.
// Chunks for a run that is no longer active (late or duplicate delivery,
// or a superseded run) are ignored.
func (t *Tracker) AppendDelta(modelID, runID string, d Delta) {
	t.mu.Lock()
	run, ok := t.active[modelID]
	if !ok || run.runID != runID {
		t.mu.Unlock()
		return
	}
	run.content += d.Content
	run.thinking += d.Thinking
	notify := t.notify
	t.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// CompleteRun settles the run as successful. A settle whose runID does not
// match the current active run is dropped: a newer StartRun for the same
// model has superseded it. Reports whether the settle was applied.
func (t *Tracker) CompleteRun(modelID, runID string, res Result) bool {
	return t.settle(modelID, runID, CompletedRun{
		RunID:     runID,
		ModelID:   modelID,
		Output:    res.Output,
		Thinking:  res.Thinking,
		LatencyMs: res.LatencyMs,
	})
}

// FailRun settles the run as failed with the same bookkeeping as CompleteRun.
func (t *Tracker) FailRun(modelID, runID, message string, kind ErrorKind, provider catalog.Provider) bool {
	return t.settle(modelID, runID, CompletedRun{
		RunID:   runID,
		ModelID: modelID,
		Err:     &RunError{Kind: kind, Message: message, Provider: provider},
	})
}

func (t *Tracker) settle(modelID, runID string, done CompletedRun) bool {
	t.mu.Lock()
	run, ok := t.active[modelID]
	if !ok || run.runID != runID {
		t.mu.Unlock()
		return false
	}
	t.completed[modelID] = done
	delete(t.active, modelID)
	if len(t.active) == 0 {
		t.executing = false
	}
	notify := t.notify
	t.mu.Unlock()
	if notify != nil {
		notify()
	}
	return true
}

// Clear drops all active and completed state. Used when the configuration
// is replaced wholesale.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.active = make(map[string]*activeRun)
	t.completed = make(map[string]CompletedRun)
	t.executing = false
	notify := t.notify
	t.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// IsExecuting reports whether any run is still streaming.
func (t *Tracker) IsExecuting() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.executing
}

// Snapshot returns the merged active+completed view ordered by the given
// model order; models not in the order sort last, in stable map-insertion-
// independent order. This is the single read path for display and for
// snapshot capture.
func (t *Tracker) Snapshot(order []string) []RunView {
	t.mu.Lock()
	defer t.mu.Unlock()

	views := make(map[string]RunView, len(t.active)+len(t.completed))
	for id, run := range t.active {
		views[id] = RunView{
			ModelID:  id,
			Status:   StatusStreaming,
			Content:  run.content,
			Thinking: run.thinking,
		}
	}
	for id, done := range t.completed {
		status := StatusCompleted
		if done.Err != nil {
			status = StatusFailed
		}
		views[id] = RunView{
			ModelID:   id,
			Status:    status,
			Content:   done.Output,
			Thinking:  done.Thinking,
			Err:       done.Err,
			LatencyMs: done.LatencyMs,
		}
	}

	out := make([]RunView, 0, len(views))
	for _, id := range order {
		if v, ok := views[id]; ok {
			out = append(out, v)
			delete(views, id)
		}
	}
	if len(views) > 0 {
		// Unknown models go last, ordered deterministically.
		rest := make([]string, 0, len(views))
		for id := range views {
			rest = append(rest, id)
		}
		sort.Strings(rest)
		for _, id := range rest {
			out = append(out, views[id])
		}
	}
	return out
}

// Completed returns all settled runs, keyed by nothing in particular:
// callers needing display order should use Snapshot.
func (t *Tracker) Completed() []CompletedRun {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.completed))
	for id := range t.completed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]CompletedRun, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.completed[id])
	}
	return out
}
