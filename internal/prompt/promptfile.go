package prompt

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a prompt configuration from a YAML prompt file.
//
// Minimal file:
//
//	name: summarizer
//	content: |
//	  Summarize the following text in three sentences.
//	models: [claude-sonnet-4-5-20250929, gpt-5-mini]
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read prompt file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse prompt file %s: %w", path, err)
	}

	if cfg.Content == "" {
		return Config{}, fmt.Errorf("prompt file %s has no content", path)
	}
	for i := range cfg.Examples {
		if cfg.Examples[i].ID == "" {
			cfg.Examples[i].ID = NewExampleID()
		}
		if cfg.Examples[i].Polarity == "" {
			cfg.Examples[i].Polarity = Positive
		}
	}
	return cfg, nil
}
