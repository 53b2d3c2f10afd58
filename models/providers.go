package models

import (
	"context"
	"fmt"

	"github.com/rickchristie/toolloop/config"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Model names per provider. The defaults come from the config package so both agree.
const (
	GeminiFlash25 = config.DefaultGeminiModel
	GeminiPro25   = "gemini-2.5-pro"

	OllamaLlama32 = config.DefaultOllamaModel

	OpenAIGPT4oMini = config.DefaultOpenAIModel
	OpenAIGPT41     = "gpt-4.1"

	// GitHub Models IDs use the "publisher/model-name" format. The full catalog is at
	// https://models.github.ai/catalog/models.
	GitHubGPT41Mini = config.DefaultGitHubModel
	GitHubGPT4oMini = "openai/gpt-4o-mini"
)

// DefaultOllamaServerURL is where a local Ollama server listens.
const DefaultOllamaServerURL = config.DefaultOllamaURL

// NewGemini creates a Model backed by the Google Gemini API.
// An empty model selects gemini-2.5-flash.
func NewGemini(ctx context.Context, apiKey, model string) (*LCGWrapper, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", config.ErrMissingAPIKey)
	}
	if model == "" {
		model = GeminiFlash25
	}

	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return NewLCGWrapper(llm).WithModelName(model), nil
}

// NewOllama creates a Model backed by an Ollama server.
// Empty arguments select llama3.2 at http://localhost:11434.
func NewOllama(serverURL, model string) (*LCGWrapper, error) {
	if serverURL == "" {
		serverURL = DefaultOllamaServerURL
	}
	if model == "" {
		model = OllamaLlama32
	}

	llm, err := ollama.New(
		ollama.WithModel(model),
		ollama.WithServerURL(serverURL),
	)
	if err != nil {
		return nil, fmt.Errorf("create Ollama client: %w", err)
	}
	return NewLCGWrapper(llm).WithModelName(model), nil
}

// NewOpenAI creates a Model backed by the OpenAI API or any compatible endpoint.
// An empty baseURL uses the OpenAI default; an empty model selects gpt-4o-mini.
func NewOpenAI(apiKey, model, baseURL string, opts ...openai.Option) (*LCGWrapper, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: %w", config.ErrMissingAPIKey)
	}
	if model == "" {
		model = OpenAIGPT4oMini
	}

	baseOpts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
	}
	if baseURL != "" {
		baseOpts = append(baseOpts, openai.WithBaseURL(baseURL))
	}

	llm, err := openai.New(append(baseOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create OpenAI client: %w", err)
	}
	return NewLCGWrapper(llm).WithModelName(model), nil
}

// FromConfig creates the Model selected by cfg.
func FromConfig(ctx context.Context, cfg config.ModelConfig) (*LCGWrapper, error) {
	switch cfg.Provider {
	case config.ProviderGemini, "":
		return NewGemini(ctx, cfg.APIKey, cfg.Name)
	case config.ProviderOllama:
		return NewOllama(cfg.BaseURL, cfg.Name)
	case config.ProviderOpenAI:
		return NewOpenAI(cfg.APIKey, cfg.Name, cfg.BaseURL)
	case config.ProviderGitHub:
		return NewGitHub(cfg.Name, cfg.APIKey)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
