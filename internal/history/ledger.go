// Package history keeps the append-only version ledger: immutable snapshots
// of the full prompt configuration and its settled run results, with a
// read-only preview index for time travel.
package history

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/promptlab/promptlab/internal/evaluator"
	"github.com/promptlab/promptlab/internal/prompt"
	"github.com/promptlab/promptlab/internal/tracker"
)

// Source records who triggered a version.
type Source string

const (
	SourceUser      Source = "user"
	SourceAssistant Source = "assistant"
)

// LiveIndex is the view index meaning "live configuration, not a snapshot".
const LiveIndex = -1

// Snapshot is an immutable capture of the configuration plus the settled
// runs (and evaluation, if any) at a point in time.
type Snapshot struct {
	Content          string                 `json:"content"`
	Intent           string                 `json:"intent,omitempty"`
	Examples         []prompt.Example       `json:"examples,omitempty"`
	Guardrails       string                 `json:"guardrails,omitempty"`
	SelectedModelIDs []string               `json:"selectedModelIds,omitempty"`
	CompletedRuns    []tracker.CompletedRun `json:"completedRuns,omitempty"`
	Evaluation       *evaluator.Snapshot    `json:"evaluation,omitempty"`
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Examples = prompt.CloneExamples(s.Examples)
	out.SelectedModelIDs = append([]string(nil), s.SelectedModelIDs...)
	out.CompletedRuns = append([]tracker.CompletedRun(nil), s.CompletedRuns...)
	if s.Evaluation != nil {
		ev := s.Evaluation.Clone()
		out.Evaluation = &ev
	}
	return out
}

// Version is one ledger entry. Entries are never edited after creation,
// except that an evaluation may be attached once its judge call completes.
type Version struct {
	ID          string             `json:"id"`
	Snapshot    Snapshot           `json:"snapshot"`
	Timestamp   time.Time          `json:"timestamp"`
	Source      Source             `json:"source"`
	Label       string             `json:"label,omitempty"`
	ChangedPart prompt.ChangedPart `json:"changedPart,omitempty"`
}

// RestoreTarget receives historical prompt parts written back to live state.
// Implemented by prompt.Store.
type RestoreTarget interface {
	RestoreSnapshot(content, intent string, examples []prompt.Example, guardrails string)
}

// Ledger is the append-only version history. Methods are safe for
// concurrent use.
type Ledger struct {
	mu        sync.RWMutex
	versions  []Version
	viewIndex int
	notify    func()
}

// NewLedger creates an empty ledger viewing live state.
func NewLedger() *Ledger {
	return &Ledger{viewIndex: LiveIndex}
}

// SetNotifyFunc registers a change-notification callback.
func (l *Ledger) SetNotifyFunc(fn func()) {
	l.mu.Lock()
	l.notify = fn
	l.mu.Unlock()
}

// Push appends a deep-copied snapshot as a new version and returns it.
// A new commit always returns the view to live.
func (l *Ledger) Push(source Source, label string, changed prompt.ChangedPart, snap Snapshot) Version {
	v := Version{
		ID:          newVersionID(),
		Snapshot:    snap.clone(),
		Timestamp:   time.Now(),
		Source:      source,
		Label:       label,
		ChangedPart: changed,
	}

	l.mu.Lock()
	l.versions = append(l.versions, v)
	l.viewIndex = LiveIndex
	notify := l.notify
	l.mu.Unlock()
	if notify != nil {
		notify()
	}
	return v
}

// Len returns the number of versions.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.versions)
}

// Versions returns a copy of all entries, oldest first.
func (l *Ledger) Versions() []Version {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Version, len(l.versions))
	for i, v := range l.versions {
		v.Snapshot = v.Snapshot.clone()
		out[i] = v
	}
	return out
}

// Version returns the entry at index.
func (l *Ledger) Version(index int) (Version, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.versions) {
		return Version{}, false
	}
	v := l.versions[index]
	v.Snapshot = v.Snapshot.clone()
	return v, true
}

// LatestVersionID returns the id of the newest entry.
func (l *Ledger) LatestVersionID() (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.versions) == 0 {
		return "", false
	}
	return l.versions[len(l.versions)-1].ID, true
}

// ViewVersion sets the preview index. Out-of-range indices normalize to
// live. Never mutates the prompt configuration. Returns the applied index.
func (l *Ledger) ViewVersion(index int) int {
	l.mu.Lock()
	if index < 0 || index >= len(l.versions) {
		l.viewIndex = LiveIndex
	} else {
		l.viewIndex = index
	}
	applied := l.viewIndex
	notify := l.notify
	l.mu.Unlock()
	if notify != nil {
		notify()
	}
	return applied
}

// ViewIndex returns the current preview index (-1 means live).
func (l *Ledger) ViewIndex() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.viewIndex
}

// IsViewingHistory reports whether a snapshot preview is active. While
// true, display layers must render the previewed snapshot read-only.
func (l *Ledger) IsViewingHistory() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.viewIndex != LiveIndex
}

// PreviewSnapshot returns the snapshot under preview, if any.
func (l *Ledger) PreviewSnapshot() (Snapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.viewIndex == LiveIndex {
		return Snapshot{}, false
	}
	return l.versions[l.viewIndex].Snapshot.clone(), true
}

// Restore writes the indexed snapshot's prompt parts back into live state
// and returns the view to live. This is the only operation that writes
// history data back into the configuration.
func (l *Ledger) Restore(index int, target RestoreTarget) bool {
	l.mu.Lock()
	if index < 0 || index >= len(l.versions) {
		l.mu.Unlock()
		return false
	}
	snap := l.versions[index].Snapshot.clone()
	l.viewIndex = LiveIndex
	notify := l.notify
	l.mu.Unlock()

	target.RestoreSnapshot(snap.Content, snap.Intent, snap.Examples, snap.Guardrails)
	if notify != nil {
		notify()
	}
	return true
}

// AttachEvaluation amends the entry with the given id, setting (or
// replacing) its evaluation. Nothing else about the entry ever changes
// after creation. Reports whether the entry was found.
func (l *Ledger) AttachEvaluation(versionID string, snap evaluator.Snapshot) bool {
	l.mu.Lock()
	found := false
	for i := range l.versions {
		if l.versions[i].ID == versionID {
			ev := snap.Clone()
			l.versions[i].Snapshot.Evaluation = &ev
			found = true
			break
		}
	}
	notify := l.notify
	l.mu.Unlock()
	if found && notify != nil {
		notify()
	}
	return found
}

// Clear empties the ledger and resets the view. Used on New/Import.
func (l *Ledger) Clear() {
	l.mu.Lock()
	l.versions = nil
	l.viewIndex = LiveIndex
	notify := l.notify
	l.mu.Unlock()
	if notify != nil {
		notify()
	}
}

func newVersionID() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("version-%d-%s", time.Now().UnixMilli(), hex.EncodeToString(b[:]))
}
