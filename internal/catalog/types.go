package catalog

// Provider identifies an LLM API vendor.
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropic  Provider = "anthropic"
	ProviderGoogle     Provider = "google"
	ProviderMistral    Provider = "mistral"
	ProviderDeepSeek   Provider = "deepseek"
	ProviderPerplexity Provider = "perplexity"
	ProviderOllama     Provider = "ollama"
)

// Source records how a model entered the registry.
type Source string

const (
	// SourceStatic marks models declared in the embedded catalog.
	SourceStatic Source = "static"
	// SourceDiscovered marks models found at runtime (local Ollama).
	SourceDiscovered Source = "discovered"
)

// TemperatureRange bounds the temperature parameter for a model.
type TemperatureRange struct {
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
	Default float64 `yaml:"default"`
}

// Capabilities describes what a model supports. Absent features are
// silently dropped from requests rather than rejected.
type Capabilities struct {
	Streaming        bool              `yaml:"streaming"`
	Thinking         bool              `yaml:"thinking"`
	Temperature      bool              `yaml:"temperature"`
	TemperatureRange *TemperatureRange `yaml:"temperature_range,omitempty"`
	SystemPrompt     bool              `yaml:"system_prompt"`
	MaxTokens        bool              `yaml:"max_tokens"`
	MaxOutputTokens  int               `yaml:"max_output_tokens,omitempty"`
}

// Model describes a single model. Immutable once registered.
type Model struct {
	ID            string       `yaml:"id"`
	Provider      Provider     `yaml:"provider"`
	Name          string       `yaml:"name"`
	DisplayName   string       `yaml:"display_name"`
	ContextWindow int          `yaml:"context_window"`
	Capabilities  Capabilities `yaml:"capabilities"`
	Default       bool         `yaml:"default,omitempty"`
	// Tier ranks capability: 1 = most capable, 2 = strong, 3 = fast/efficient.
	Tier   int    `yaml:"tier"`
	Source Source `yaml:"-"`
}

// ClampTemperature restricts t to the model's supported range. Models
// without a declared range pass the value through unchanged.
func (m Model) ClampTemperature(t float64) float64 {
	r := m.Capabilities.TemperatureRange
	if r == nil {
		return t
	}
	if t < r.Min {
		return r.Min
	}
	if t > r.Max {
		return r.Max
	}
	return t
}

// ClampMaxTokens restricts n to the model's output token limit.
func (m Model) ClampMaxTokens(n int) int {
	max := m.Capabilities.MaxOutputTokens
	if max > 0 && n > max {
		return max
	}
	return n
}

// RequiresAPIKey reports whether the provider needs a configured key.
func (p Provider) RequiresAPIKey() bool {
	return p != ProviderOllama
}

// APIKeyEnv returns the environment variable holding the provider's key.
func (p Provider) APIKeyEnv() string {
	switch p {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderGoogle:
		return "GEMINI_API_KEY"
	case ProviderMistral:
		return "MISTRAL_API_KEY"
	case ProviderDeepSeek:
		return "DEEPSEEK_API_KEY"
	case ProviderPerplexity:
		return "PERPLEXITY_API_KEY"
	default:
		return ""
	}
}

// BaseURL returns the provider's OpenAI-compatible endpoint.
func (p Provider) BaseURL() string {
	switch p {
	case ProviderOpenAI:
		return "https://api.openai.com/v1"
	case ProviderAnthropic:
		return "https://api.anthropic.com/v1"
	case ProviderGoogle:
		return "https://generativelanguage.googleapis.com/v1beta/openai"
	case ProviderMistral:
		return "https://api.mistral.ai/v1"
	case ProviderDeepSeek:
		return "https://api.deepseek.com/v1"
	case ProviderPerplexity:
		return "https://api.perplexity.ai"
	case ProviderOllama:
		return DefaultOllamaBaseURL + "/v1"
	default:
		return ""
	}
}
