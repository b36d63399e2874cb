// Package prompt owns the editable prompt configuration and the rules for
// composing the final text sent to models.
package prompt

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Polarity marks an example as something to imitate or to avoid.
type Polarity string

const (
	Positive Polarity = "positive"
	Negative Polarity = "negative"
)

// Toggled returns the opposite polarity.
func (p Polarity) Toggled() Polarity {
	if p == Positive {
		return Negative
	}
	return Positive
}

// Example is a single output example attached to a prompt. Order within the
// configuration is significant.
type Example struct {
	ID       string   `json:"id" yaml:"id,omitempty"`
	Content  string   `json:"content" yaml:"content"`
	Polarity Polarity `json:"polarity" yaml:"polarity"`
}

// ChangedPart names which part of the configuration a version captures.
type ChangedPart string

const (
	ChangedContent    ChangedPart = "content"
	ChangedIntent     ChangedPart = "intent"
	ChangedExamples   ChangedPart = "examples"
	ChangedGuardrails ChangedPart = "guardrails"
)

// Parameters are per-run generation settings. Nil/zero fields mean
// "provider default".
type Parameters struct {
	Temperature  *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens    int      `json:"maxTokens,omitempty" yaml:"max_tokens,omitempty"`
	SystemPrompt string   `json:"systemPrompt,omitempty" yaml:"system_prompt,omitempty"`
}

// Config is the full editable prompt configuration.
type Config struct {
	Name             string     `json:"name" yaml:"name"`
	Content          string     `json:"content" yaml:"content"`
	Intent           string     `json:"intent,omitempty" yaml:"intent,omitempty"`
	Examples         []Example  `json:"examples,omitempty" yaml:"examples,omitempty"`
	Guardrails       string     `json:"guardrails,omitempty" yaml:"guardrails,omitempty"`
	SelectedModelIDs []string   `json:"selectedModelIds,omitempty" yaml:"models,omitempty"`
	Parameters       Parameters `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Clone returns a deep copy of the configuration.
func (c Config) Clone() Config {
	out := c
	out.Examples = CloneExamples(c.Examples)
	out.SelectedModelIDs = append([]string(nil), c.SelectedModelIDs...)
	if c.Parameters.Temperature != nil {
		v := *c.Parameters.Temperature
		out.Parameters.Temperature = &v
	}
	return out
}

// CloneExamples deep-copies an example list.
func CloneExamples(examples []Example) []Example {
	if examples == nil {
		return nil
	}
	return append([]Example(nil), examples...)
}

// NewExampleID generates a unique example id.
func NewExampleID() string {
	return fmt.Sprintf("example-%d-%s", time.Now().UnixMilli(), randomSuffix())
}

func randomSuffix() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
