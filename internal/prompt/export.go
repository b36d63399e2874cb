package prompt

import (
	"encoding/json"
	"fmt"
	"time"
)

// ExportSchemaVersion is the current export file schema.
const ExportSchemaVersion = "1.1"

// ExportedRun is a settled run result carried in an export file.
type ExportedRun struct {
	ModelID   string `json:"modelId"`
	Output    string `json:"output"`
	Thinking  string `json:"thinking,omitempty"`
	Status    string `json:"status"`
	LatencyMs int64  `json:"latencyMs,omitempty"`
}

// ExportData is the shareable serialization of a prompt configuration plus
// the results of its latest run.
type ExportData struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exportedAt"`
	Prompt     struct {
		Name       string    `json:"name"`
		Content    string    `json:"content"`
		Intent     string    `json:"intent,omitempty"`
		Guardrails string    `json:"guardrails,omitempty"`
		Examples   []Example `json:"examples,omitempty"`
	} `json:"prompt"`
	ExecutionHistory []ExportedRun `json:"executionHistory,omitempty"`
}

// Export serializes a configuration and run results to JSON.
func Export(cfg Config, runs []ExportedRun) ([]byte, error) {
	data := ExportData{
		Version:          ExportSchemaVersion,
		ExportedAt:       time.Now().UTC(),
		ExecutionHistory: runs,
	}
	data.Prompt.Name = cfg.Name
	data.Prompt.Content = cfg.Content
	data.Prompt.Intent = cfg.Intent
	data.Prompt.Guardrails = cfg.Guardrails
	data.Prompt.Examples = CloneExamples(cfg.Examples)

	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	return out, nil
}

// Import parses an export file back into a configuration. Example ids are
// regenerated when missing so imported examples remain addressable.
func Import(raw []byte) (Config, []ExportedRun, error) {
	var data ExportData
	if err := json.Unmarshal(raw, &data); err != nil {
		return Config{}, nil, fmt.Errorf("failed to parse export: %w", err)
	}
	if data.Prompt.Content == "" {
		return Config{}, nil, fmt.Errorf("export has no prompt content")
	}

	cfg := Config{
		Name:       data.Prompt.Name,
		Content:    data.Prompt.Content,
		Intent:     data.Prompt.Intent,
		Guardrails: data.Prompt.Guardrails,
		Examples:   CloneExamples(data.Prompt.Examples),
	}
	for i := range cfg.Examples {
		if cfg.Examples[i].ID == "" {
			cfg.Examples[i].ID = NewExampleID()
		}
		if cfg.Examples[i].Polarity == "" {
			cfg.Examples[i].Polarity = Positive
		}
	}
	return cfg, data.ExecutionHistory, nil
}
