package evaluator

import (
	"fmt"
	"strings"
)

// Scoring scale bounds.
const (
	ScaleMin = 0
	ScaleMax = 100
)

// genericRubric is used when neither a custom rubric nor an intent exists.
const genericRubric = `Evaluate how well each output addresses the prompt's apparent goal.

Consider:
- Relevance to the prompt
- Clarity and coherence
- Completeness of response
- Accuracy of information (if applicable)`

// BuildRubric returns the evaluation criteria text. A non-empty custom
// rubric always wins; otherwise a default is synthesized from the intent,
// falling back to a generic goal-inference rubric. Deterministic for
// identical inputs.
func BuildRubric(intent, custom string) string {
	if strings.TrimSpace(custom) != "" {
		return custom
	}
	if strings.TrimSpace(intent) != "" {
		return fmt.Sprintf(`Evaluate how well each output achieves the following intent:

%q

Consider clarity, completeness, accuracy, and alignment with the stated goal.`, intent)
	}
	return genericRubric
}

// buildJudgePrompt assembles the system prompt for the judge call: scale,
// the prompt under evaluation, intent context, criteria, the outputs, and
// a strict-JSON response contract.
func buildJudgePrompt(promptContent, intent, rubric string, outputs []Output) string {
	var b strings.Builder

	fmt.Fprintf(&b, `You are an expert prompt evaluator. Your task is to objectively evaluate LLM outputs against specified criteria.

## Scoring Scale
Score each output from %d to %d:
- %d: Perfect - fully achieves the goal with excellence
- 80-99: Very Good - achieves the goal with minor issues
- 60-79: Adequate - partially achieves the goal
- 40-59: Below Average - significant issues
- 20-39: Poor - mostly fails to achieve the goal
- %d-19: Failure - does not address the goal at all

## Original Prompt Being Evaluated
`+"```\n%s\n```\n\n", ScaleMin, ScaleMax, ScaleMax, ScaleMin, promptContent)

	if strings.TrimSpace(intent) != "" {
		fmt.Fprintf(&b, "## User's Intent\nThe user's stated intent for this prompt is:\n%q\n\nEvaluate how well each output achieves this intent.\n\n", intent)
	} else {
		b.WriteString("## No Explicit Intent\nThe user did not specify an explicit intent. Evaluate how well each output addresses the prompt's apparent goal.\n\n")
	}

	fmt.Fprintf(&b, "## Evaluation Criteria\n%s\n\n## Outputs to Evaluate\n", rubric)
	for i, o := range outputs {
		fmt.Fprintf(&b, "### Output %d: %s (%s)\nModel ID: %s\n```\n%s\n```\n\n", i+1, o.ModelName, o.Provider, o.ModelID, o.Output)
	}

	fmt.Fprintf(&b, `## Your Task
Evaluate each output and provide:
1. A score from %d to %d
2. Clear reasoning for the score
3. Key strengths (what works well)
4. Key weaknesses (what could be improved)

## Response Format
You MUST respond with valid JSON only. No markdown, no explanation outside the JSON.
`+"```json"+`
{
  "evaluations": [
    {
      "modelId": "the-model-id",
      "score": 85,
      "reasoning": "Detailed explanation of why this score was given...",
      "strengths": ["First strength", "Second strength"],
      "weaknesses": ["First weakness"]
    }
  ]
}
`+"```"+`

Evaluate each output in the order they appear above. Be objective, specific, and constructive.`, ScaleMin, ScaleMax)

	return b.String()
}
