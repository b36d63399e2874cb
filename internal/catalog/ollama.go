package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultOllamaBaseURL is the standard local Ollama endpoint.
const DefaultOllamaBaseURL = "http://localhost:11434"

// thinkingFamilies are model name prefixes known to emit reasoning output.
var thinkingFamilies = []string{"deepseek-r1", "qwq", "gpt-oss", "qwen3"}

type ollamaTagsResponse struct {
	Models []struct {
		Name    string `json:"name"`
		Model   string `json:"model"`
		Size    int64  `json:"size"`
		Details struct {
			Family        string `json:"family"`
			ParameterSize string `json:"parameter_size"`
		} `json:"details"`
	} `json:"models"`
}

// DiscoverOllama queries a local Ollama instance and registers its installed
// models as Discovered descriptors. Already-registered ids are skipped, so a
// rediscovery never mutates an existing entry. Returns the number of models
// added.
func (r *Registry) DiscoverOllama(ctx context.Context, baseURL string) (int, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build ollama request: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("ollama not reachable at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return 0, fmt.Errorf("failed to decode ollama response: %w", err)
	}

	added := 0
	for _, m := range tags.Models {
		id := "ollama/" + m.Name
		if _, exists := r.ByID(id); exists {
			continue
		}

		model := Model{
			ID:            id,
			Provider:      ProviderOllama,
			Name:          m.Name,
			DisplayName:   ollamaDisplayName(m.Name, m.Details.ParameterSize),
			ContextWindow: 8192,
			Capabilities: Capabilities{
				Streaming:    true,
				Thinking:     supportsThinking(m.Name),
				Temperature:  true,
				SystemPrompt: true,
				MaxTokens:    true,
			},
			Tier:   3,
			Source: SourceDiscovered,
		}
		if err := r.Add(model); err != nil {
			slog.Warn("skipping ollama model", "model", m.Name, "error", err)
			continue
		}
		added++
	}

	slog.Info("ollama discovery complete", "base_url", baseURL, "added", added)
	return added, nil
}

func supportsThinking(name string) bool {
	base := strings.ToLower(strings.SplitN(name, ":", 2)[0])
	for _, fam := range thinkingFamilies {
		if strings.HasPrefix(base, fam) {
			return true
		}
	}
	return false
}

// ollamaDisplayName formats a raw model tag for display,
// e.g. "deepseek-r1:32b" -> "Deepseek R1 32B".
func ollamaDisplayName(name, parameterSize string) string {
	base, tag, _ := strings.Cut(name, ":")

	parts := strings.Split(base, "-")
	for i, p := range parts {
		switch strings.ToLower(p) {
		case "gpt":
			parts[i] = "GPT"
		case "oss":
			parts[i] = "OSS"
		case "r1":
			parts[i] = "R1"
		default:
			if len(p) > 0 {
				parts[i] = strings.ToUpper(p[:1]) + p[1:]
			}
		}
	}
	display := strings.Join(parts, " ")

	if tag != "" && tag != "latest" {
		display += " " + strings.ToUpper(tag)
	} else if parameterSize != "" {
		display += " " + parameterSize
	}
	return display
}
