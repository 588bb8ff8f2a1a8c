package ai

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Config holds AI provider configuration
type Config struct {
	Provider ProviderType // "openai", "gemini", "ollama" or "auto"

	// OpenAI config
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// Gemini config
	GeminiAPIKey string
	GeminiModel  string

	// Ollama config
	OllamaBaseURL string // e.g., "http://localhost:11434"
	OllamaModel   string // e.g., "llama3", "mistral"
}

// NewOracle creates an Oracle based on the config
// This is the factory function - switch AI provider by changing config.Provider
func NewOracle(cfg Config, log zerolog.Logger) (Oracle, error) {
	switch ProviderType(strings.ToLower(string(cfg.Provider))) {
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI provider")
		}
		return newLLMOracle(NewOpenAIService(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)), nil

	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for Gemini provider")
		}
		return newLLMOracle(NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiModel)), nil

	case ProviderOllama:
		return newLLMOracle(NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel)), nil

	case ProviderAuto, "":
		// Cloud provider when a key is available, with Ollama as the local fallback
		var cloud completer
		switch {
		case cfg.OpenAIAPIKey != "":
			cloud = NewOpenAIService(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		case cfg.GeminiAPIKey != "":
			cloud = NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiModel)
		}
		local := NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel)
		if cloud == nil {
			return newLLMOracle(local), nil
		}
		return NewFallbackService(cloud, local, log.With().Str("component", "ai").Logger()), nil

	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}
