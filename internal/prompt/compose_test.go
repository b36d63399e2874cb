package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeBareContent(t *testing.T) {
	got := Compose(Config{Content: "Just the prompt."})

	assert.Equal(t, "Just the prompt.", got.Full)
	assert.False(t, got.HasExtras)
	assert.NotContains(t, got.Full, "## Prompt")
}

func TestComposeWithIntent(t *testing.T) {
	got := Compose(Config{Content: "Write a poem.", Intent: "Be whimsical"})

	assert.True(t, got.HasExtras)
	assert.Equal(t, "## Intent\nBe whimsical\n\n## Prompt\nWrite a poem.", got.Full)
}

func TestComposeSectionOrder(t *testing.T) {
	got := Compose(Config{
		Content:    "Main content",
		Intent:     "The goal",
		Guardrails: "No profanity",
		Examples: []Example{
			{ID: "e1", Content: "good one", Polarity: Positive},
			{ID: "e2", Content: "bad one", Polarity: Negative},
		},
	})

	idx := func(s string) int { return strings.Index(got.Full, s) }
	intent, examples, guardrails, content := idx("## Intent"), idx("## Examples"), idx("## Guardrails"), idx("## Prompt")
	require.True(t, intent >= 0 && examples >= 0 && guardrails >= 0 && content >= 0, got.Full)
	assert.Less(t, intent, examples)
	assert.Less(t, examples, guardrails)
	assert.Less(t, guardrails, content)
}

func TestComposeExamplesGroupedByPolarity(t *testing.T) {
	got := Compose(Config{
		Content: "c",
		Examples: []Example{
			{ID: "e1", Content: "neg first", Polarity: Negative},
			{ID: "e2", Content: "pos second", Polarity: Positive},
		},
	})

	good := strings.Index(got.Full, "### Good outputs (aim for these):")
	bad := strings.Index(got.Full, "### Bad outputs (avoid these):")
	require.True(t, good >= 0 && bad >= 0, got.Full)
	// Positive group always precedes negative, regardless of insertion order.
	assert.Less(t, good, bad)
	assert.Contains(t, got.Full, "```\npos second\n```")
	assert.Contains(t, got.Full, "```\nneg first\n```")
}

func TestComposeSkipsEmptyExamples(t *testing.T) {
	got := Compose(Config{
		Content:  "c",
		Examples: []Example{{ID: "e1", Content: "   ", Polarity: Positive}},
	})

	assert.False(t, got.HasExtras)
	assert.Equal(t, "c", got.Full)
}

func TestComposeWhitespaceOnlySectionsIgnored(t *testing.T) {
	got := Compose(Config{Content: "c", Intent: "  ", Guardrails: "\n"})

	assert.False(t, got.HasExtras)
	assert.Equal(t, "c", got.Full)
}

func TestComposeDeterministic(t *testing.T) {
	cfg := Config{
		Content: "c",
		Intent:  "i",
		Examples: []Example{
			{ID: "e1", Content: "x", Polarity: Positive},
		},
	}

	assert.Equal(t, Compose(cfg).Full, Compose(cfg).Full)
}
