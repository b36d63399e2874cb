package prompt

import (
	"strings"
	"sync"
)

// Store is the single source of truth for the editable configuration.
// All mutation goes through named operations so side effects (clearing run
// state on a document swap) stay centralized. Methods are safe for
// concurrent use.
type Store struct {
	mu        sync.RWMutex
	cfg       Config
	onReplace func()
	notify    func()
}

// NewStore creates a Store around an initial configuration.
func NewStore(cfg Config) *Store {
	return &Store{cfg: cfg.Clone()}
}

// SetReplaceHook registers a callback fired when the whole configuration is
// replaced (New/Import). Used to invalidate run state elsewhere.
func (s *Store) SetReplaceHook(fn func()) {
	s.mu.Lock()
	s.onReplace = fn
	s.mu.Unlock()
}

// SetNotifyFunc registers a change-notification callback, invoked after
// every mutation outside the store's lock.
func (s *Store) SetNotifyFunc(fn func()) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

func (s *Store) mutate(fn func(*Config)) {
	s.mu.Lock()
	fn(&s.cfg)
	notify := s.notify
	s.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// Config returns a deep copy of the current configuration.
func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// SelectedModelIDs returns a copy of the current model selection order.
func (s *Store) SelectedModelIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.cfg.SelectedModelIDs...)
}

// SetConfiguration replaces the whole configuration. The replace hook fires
// so dependent state (runs) is cleared: a new document invalidates them.
func (s *Store) SetConfiguration(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.Clone()
	hook := s.onReplace
	notify := s.notify
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if notify != nil {
		notify()
	}
}

// UpdateContent replaces the main instruction text.
func (s *Store) UpdateContent(content string) {
	s.mutate(func(c *Config) { c.Content = content })
}

// UpdateName replaces the configuration name.
func (s *Store) UpdateName(name string) {
	s.mutate(func(c *Config) { c.Name = name })
}

// UpdateIntent replaces the intent text.
func (s *Store) UpdateIntent(intent string) {
	s.mutate(func(c *Config) { c.Intent = intent })
}

// UpdateGuardrails replaces the guardrails text.
func (s *Store) UpdateGuardrails(guardrails string) {
	s.mutate(func(c *Config) { c.Guardrails = guardrails })
}

// AddExample appends an empty example of the given polarity and returns
// its generated id.
func (s *Store) AddExample(p Polarity) string {
	id := NewExampleID()
	s.mutate(func(c *Config) {
		c.Examples = append(c.Examples, Example{ID: id, Polarity: p})
	})
	return id
}

// UpdateExample replaces the content of the example with the given id.
func (s *Store) UpdateExample(id, content string) bool {
	found := false
	s.mutate(func(c *Config) {
		for i := range c.Examples {
			if c.Examples[i].ID == id {
				c.Examples[i].Content = content
				found = true
				return
			}
		}
	})
	return found
}

// RemoveExample deletes the example with the given id.
func (s *Store) RemoveExample(id string) bool {
	found := false
	s.mutate(func(c *Config) {
		for i := range c.Examples {
			if c.Examples[i].ID == id {
				c.Examples = append(c.Examples[:i], c.Examples[i+1:]...)
				found = true
				return
			}
		}
	})
	return found
}

// TogglePolarity flips the polarity of the example with the given id.
func (s *Store) TogglePolarity(id string) bool {
	found := false
	s.mutate(func(c *Config) {
		for i := range c.Examples {
			if c.Examples[i].ID == id {
				c.Examples[i].Polarity = c.Examples[i].Polarity.Toggled()
				found = true
				return
			}
		}
	})
	return found
}

// SetExamples bulk-replaces the example list. Examples without ids get one.
func (s *Store) SetExamples(examples []Example) {
	copied := CloneExamples(examples)
	for i := range copied {
		if copied[i].ID == "" {
			copied[i].ID = NewExampleID()
		}
	}
	s.mutate(func(c *Config) { c.Examples = copied })
}

// SetSelectedModels replaces the model selection, preserving order.
func (s *Store) SetSelectedModels(ids []string) {
	copied := append([]string(nil), ids...)
	s.mutate(func(c *Config) { c.SelectedModelIDs = copied })
}

// ToggleModel adds the model to the selection or removes it if present.
func (s *Store) ToggleModel(id string) {
	s.mutate(func(c *Config) {
		for i, existing := range c.SelectedModelIDs {
			if existing == id {
				c.SelectedModelIDs = append(c.SelectedModelIDs[:i], c.SelectedModelIDs[i+1:]...)
				return
			}
		}
		c.SelectedModelIDs = append(c.SelectedModelIDs, id)
	})
}

// SetParameters replaces the run parameters.
func (s *Store) SetParameters(p Parameters) {
	s.mutate(func(c *Config) { c.Parameters = p })
}

// RestoreSnapshot writes historical prompt parts back into the live
// configuration. Model selection and parameters are left as-is.
func (s *Store) RestoreSnapshot(content, intent string, examples []Example, guardrails string) {
	copied := CloneExamples(examples)
	s.mutate(func(c *Config) {
		c.Content = content
		c.Intent = intent
		c.Examples = copied
		c.Guardrails = guardrails
	})
}

// HasRunnableConfig reports whether the configuration itself permits a run:
// non-empty trimmed content and at least one selected model. Derived on
// every call, never cached.
func (s *Store) HasRunnableConfig() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return strings.TrimSpace(s.cfg.Content) != "" && len(s.cfg.SelectedModelIDs) > 0
}
