package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptlab/promptlab/internal/catalog"
)

func TestStartRunSetsStreaming(t *testing.T) {
	tr := New()

	tr.StartRun("model-a", "run-1")

	assert.True(t, tr.IsExecuting())
	views := tr.Snapshot([]string{"model-a"})
	require.Len(t, views, 1)
	assert.Equal(t, StatusStreaming, views[0].Status)
	assert.Empty(t, views[0].Content)
}

func TestAppendDeltaConcatenatesInOrder(t *testing.T) {
	tr := New()
	tr.StartRun("model-a", "run-1")

	tr.AppendDelta("model-a", "run-1", Delta{Thinking: "hmm "})
	tr.AppendDelta("model-a", "run-1", Delta{Content: "Hello"})
	tr.AppendDelta("model-a", "run-1", Delta{Content: ", world"})

	views := tr.Snapshot([]string{"model-a"})
	require.Len(t, views, 1)
	assert.Equal(t, "Hello, world", views[0].Content)
	assert.Equal(t, "hmm ", views[0].Thinking)
}

func TestAppendDeltaAfterCompletionIsIgnored(t *testing.T) {
	tr := New()
	tr.StartRun("model-a", "run-1")
	require.True(t, tr.CompleteRun("model-a", "run-1", Result{Output: "done"}))

	// Late chunk must not panic or alter the settled output.
	tr.AppendDelta("model-a", "run-1", Delta{Content: "late"})

	views := tr.Snapshot([]string{"model-a"})
	require.Len(t, views, 1)
	assert.Equal(t, StatusCompleted, views[0].Status)
	assert.Equal(t, "done", views[0].Content)
}

func TestCompleteRunClearsExecutingWhenLast(t *testing.T) {
	tr := New()
	tr.StartRun("a", "r1")
	tr.StartRun("b", "r2")

	tr.CompleteRun("a", "r1", Result{Output: "x", LatencyMs: 12})
	assert.True(t, tr.IsExecuting())

	tr.CompleteRun("b", "r2", Result{Output: "y"})
	assert.False(t, tr.IsExecuting())
}

func TestFailRunRecordsErrorKind(t *testing.T) {
	tr := New()
	tr.StartRun("a", "r1")

	ok := tr.FailRun("a", "r1", "no API key configured for openai", ErrorMissingAPIKey, catalog.ProviderOpenAI)
	require.True(t, ok)
	assert.False(t, tr.IsExecuting())

	views := tr.Snapshot([]string{"a"})
	require.Len(t, views, 1)
	assert.Equal(t, StatusFailed, views[0].Status)
	require.NotNil(t, views[0].Err)
	assert.Equal(t, ErrorMissingAPIKey, views[0].Err.Kind)
	assert.Equal(t, catalog.ProviderOpenAI, views[0].Err.Provider)
}

func TestSnapshotOrderFollowsSelectionForAllPermutations(t *testing.T) {
	order := []string{"a", "b", "c"}
	permutations := [][]string{
		{"a", "b", "c"},
		{"a", "c", "b"},
		{"b", "a", "c"},
		{"b", "c", "a"},
		{"c", "a", "b"},
		{"c", "b", "a"},
	}

	for _, perm := range permutations {
		tr := New()
		for _, id := range order {
			tr.StartRun(id, "run-"+id)
		}
		for _, id := range perm {
			tr.CompleteRun(id, "run-"+id, Result{Output: id})
		}

		views := tr.Snapshot(order)
		require.Len(t, views, 3)
		for i, id := range order {
			assert.Equal(t, id, views[i].ModelID, "completion order %v", perm)
		}
	}
}

func TestSnapshotUnknownModelsSortLast(t *testing.T) {
	tr := New()
	tr.StartRun("known", "r1")
	tr.StartRun("zeta", "r2")
	tr.StartRun("alpha", "r3")

	views := tr.Snapshot([]string{"known"})
	require.Len(t, views, 3)
	assert.Equal(t, "known", views[0].ModelID)
	assert.Equal(t, "alpha", views[1].ModelID)
	assert.Equal(t, "zeta", views[2].ModelID)
}

func TestReRunOverwritesSettledEntry(t *testing.T) {
	tr := New()
	tr.StartRun("a", "r1")
	tr.CompleteRun("a", "r1", Result{Output: "old output"})

	tr.StartRun("a", "r2")

	// The model appears exactly once, streaming, with no stale output.
	views := tr.Snapshot([]string{"a"})
	require.Len(t, views, 1)
	assert.Equal(t, StatusStreaming, views[0].Status)
	assert.Empty(t, views[0].Content)
	assert.Empty(t, tr.Completed())
}

func TestStaleCompletionFromSupersededRunIsDropped(t *testing.T) {
	tr := New()
	tr.StartRun("a", "r1")

	// A newer run supersedes r1 before it settles.
	tr.StartRun("a", "r2")

	applied := tr.CompleteRun("a", "r1", Result{Output: "stale"})
	assert.False(t, applied)

	views := tr.Snapshot([]string{"a"})
	require.Len(t, views, 1)
	assert.Equal(t, StatusStreaming, views[0].Status)

	// The current run settles normally.
	assert.True(t, tr.CompleteRun("a", "r2", Result{Output: "fresh"}))
	views = tr.Snapshot([]string{"a"})
	assert.Equal(t, "fresh", views[0].Content)
}

func TestStaleDeltaFromSupersededRunIsDropped(t *testing.T) {
	tr := New()
	tr.StartRun("a", "r1")
	tr.AppendDelta("a", "r1", Delta{Content: "first"})
	tr.StartRun("a", "r2")

	tr.AppendDelta("a", "r1", Delta{Content: "stale"})

	views := tr.Snapshot([]string{"a"})
	require.Len(t, views, 1)
	assert.Empty(t, views[0].Content)
}

func TestClear(t *testing.T) {
	tr := New()
	tr.StartRun("a", "r1")
	tr.CompleteRun("a", "r1", Result{Output: "x"})
	tr.StartRun("b", "r2")

	tr.Clear()

	assert.False(t, tr.IsExecuting())
	assert.Empty(t, tr.Snapshot([]string{"a", "b"}))
	assert.Empty(t, tr.Completed())
}

func TestNotifyFuncFiresOnMutation(t *testing.T) {
	tr := New()
	calls := 0
	tr.SetNotifyFunc(func() { calls++ })

	tr.StartRun("a", "r1")
	tr.AppendDelta("a", "r1", Delta{Content: "x"})
	tr.CompleteRun("a", "r1", Result{Output: "x"})

	assert.Equal(t, 3, calls)
}

func TestCompletedSucceeded(t *testing.T) {
	tr := New()
	tr.StartRun("a", "r1")
	tr.CompleteRun("a", "r1", Result{Output: "x"})
	tr.StartRun("b", "r2")
	tr.FailRun("b", "r2", "boom", ErrorAPI, catalog.ProviderGoogle)

	runs := tr.Completed()
	require.Len(t, runs, 2)
	assert.True(t, runs[0].Succeeded())
	assert.False(t, runs[1].Succeeded())
}
