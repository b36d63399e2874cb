package prompt

import (
	"fmt"
	"strings"
)

// Composed is the final prompt text sent to every selected model.
type Composed struct {
	Full string
	// HasExtras reports whether any optional section (intent, examples,
	// guardrails) contributed to the text.
	HasExtras bool
}

// Compose builds the combined prompt in fixed order: intent, examples
// (positive group then negative group, each fenced), guardrails, then the
// main content. Section headers appear only when at least one optional
// section is present; bare content is sent unmodified.
func Compose(cfg Config) Composed {
	var sections []string
	hasExtras := false

	if intent := strings.TrimSpace(cfg.Intent); intent != "" {
		sections = append(sections, "## Intent\n"+intent)
		hasExtras = true
	}

	if part := composeExamples(cfg.Examples); part != "" {
		sections = append(sections, part)
		hasExtras = true
	}

	if guardrails := strings.TrimSpace(cfg.Guardrails); guardrails != "" {
		sections = append(sections, "## Guardrails\n"+guardrails)
		hasExtras = true
	}

	if content := strings.TrimSpace(cfg.Content); content != "" {
		if hasExtras {
			sections = append(sections, "## Prompt\n"+content)
		} else {
			sections = append(sections, content)
		}
	}

	return Composed{Full: strings.Join(sections, "\n\n"), HasExtras: hasExtras}
}

func composeExamples(examples []Example) string {
	var positive, negative []Example
	for _, ex := range examples {
		if strings.TrimSpace(ex.Content) == "" {
			continue
		}
		if ex.Polarity == Negative {
			negative = append(negative, ex)
		} else {
			positive = append(positive, ex)
		}
	}
	if len(positive) == 0 && len(negative) == 0 {
		return ""
	}

	parts := []string{"## Examples"}
	if len(positive) > 0 {
		parts = append(parts, "### Good outputs (aim for these):")
		for i, ex := range positive {
			parts = append(parts, fmt.Sprintf("Example %d:\n```\n%s\n```", i+1, strings.TrimSpace(ex.Content)))
		}
	}
	if len(negative) > 0 {
		parts = append(parts, "### Bad outputs (avoid these):")
		for i, ex := range negative {
			parts = append(parts, fmt.Sprintf("Example %d:\n```\n%s\n```", i+1, strings.TrimSpace(ex.Content)))
		}
	}
	return strings.Join(parts, "\n")
}
