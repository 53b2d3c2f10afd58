// Package config handles toolloop configuration: a YAML file, environment overrides, and
// provider-specific defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported model providers.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderGitHub = "github"
)

// Provider defaults.
const (
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultOllamaModel = "llama3.2"
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultGitHubModel = "openai/gpt-4.1-mini"
)

// ErrMissingAPIKey is returned by Validate, and by the model constructors, when the provider
// needs a key and none is set.
var ErrMissingAPIKey = errors.New("API key not set")

// DefaultSearchPaths returns the config file search order:
// ./toolloop.yaml, then ~/.config/toolloop/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"toolloop.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "toolloop", "config.yaml"))
	}
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise the first existing path of DefaultSearchPaths is returned.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all toolloop configuration.
type Config struct {
	Model   ModelConfig   `yaml:"model"`
	Loop    LoopConfig    `yaml:"loop"`
	Logging LoggingConfig `yaml:"logging"`
}

// ModelConfig selects and authenticates the model backend.
type ModelConfig struct {
	Provider string `yaml:"provider"` // gemini, ollama, openai, github
	Name     string `yaml:"name"`     // provider model name; empty means the provider default
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"` // server URL for ollama; API base for openai
}

// LoopConfig holds the loop controller settings.
type LoopConfig struct {
	MaxIterations    int           `yaml:"max_iterations"`
	Temperature      float64       `yaml:"temperature"`
	ModelTimeout     time.Duration `yaml:"model_timeout"`
	ToolTimeout      time.Duration `yaml:"tool_timeout"`
	MaxParallelTools int           `yaml:"max_parallel_tools"`
	SystemPrompt     string        `yaml:"system_prompt"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Model: ModelConfig{Provider: ProviderGemini},
		Loop: LoopConfig{
			MaxIterations:    10,
			ModelTimeout:     60 * time.Second,
			ToolTimeout:      30 * time.Second,
			MaxParallelTools: 4,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a YAML file on top of Default. Environment variables
// referenced as $VAR or ${VAR} in the file are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment. getenv is usually os.Getenv.
//
//	TOOLLOOP_PROVIDER   model.provider
//	TOOLLOOP_MODEL      model.name
//	GEMINI_MODEL        model.name, gemini only, when TOOLLOOP_MODEL is unset
//	GEMINI_API_KEY      model.api_key for gemini, when not set in the file
//	OPENAI_API_KEY      model.api_key for openai, when not set in the file
//	GITHUB_TOKEN        model.api_key for github, when not set in the file
//	OLLAMA_BASE_URL     model.base_url for ollama
//	TOOLLOOP_LOG_LEVEL  logging.level
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("TOOLLOOP_PROVIDER"); v != "" {
		c.Model.Provider = strings.ToLower(v)
	}

	if v := getenv("TOOLLOOP_MODEL"); v != "" {
		c.Model.Name = v
	} else if v := getenv("GEMINI_MODEL"); v != "" && c.Model.Provider == ProviderGemini {
		c.Model.Name = v
	}

	if c.Model.APIKey == "" {
		switch c.Model.Provider {
		case ProviderGemini:
			c.Model.APIKey = getenv("GEMINI_API_KEY")
		case ProviderOpenAI:
			c.Model.APIKey = getenv("OPENAI_API_KEY")
		case ProviderGitHub:
			c.Model.APIKey = getenv("GITHUB_TOKEN")
		}
	}

	if v := getenv("OLLAMA_BASE_URL"); v != "" && c.Model.Provider == ProviderOllama {
		c.Model.BaseURL = v
	}

	if v := getenv("TOOLLOOP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// ApplyDefaults fills the provider-specific model name and server URL when unset.
func (c *Config) ApplyDefaults() {
	if c.Model.Provider == "" {
		c.Model.Provider = ProviderGemini
	}
	if c.Model.Name == "" {
		c.Model.Name = DefaultModelFor(c.Model.Provider)
	}
	if c.Model.Provider == ProviderOllama && c.Model.BaseURL == "" {
		c.Model.BaseURL = DefaultOllamaURL
	}
}

// DefaultModelFor returns the default model name of a provider, or "" if unknown.
func DefaultModelFor(provider string) string {
	switch provider {
	case ProviderGemini:
		return DefaultGeminiModel
	case ProviderOllama:
		return DefaultOllamaModel
	case ProviderOpenAI:
		return DefaultOpenAIModel
	case ProviderGitHub:
		return DefaultGitHubModel
	default:
		return ""
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case ProviderGemini, ProviderOpenAI, ProviderGitHub:
		if c.Model.APIKey == "" {
			return fmt.Errorf("%w for provider %s", ErrMissingAPIKey, c.Model.Provider)
		}
	case ProviderOllama:
	default:
		return fmt.Errorf("unknown provider %q (valid: gemini, ollama, openai, github)", c.Model.Provider)
	}

	if c.Loop.MaxIterations < 0 {
		return fmt.Errorf("loop.max_iterations must not be negative, got %d", c.Loop.MaxIterations)
	}
	if c.Loop.MaxParallelTools < 0 {
		return fmt.Errorf("loop.max_parallel_tools must not be negative, got %d", c.Loop.MaxParallelTools)
	}
	if c.Loop.ModelTimeout < 0 || c.Loop.ToolTimeout < 0 {
		return errors.New("loop timeouts must not be negative")
	}
	if c.Loop.Temperature < 0 || c.Loop.Temperature > 2 {
		return fmt.Errorf("loop.temperature must be within [0, 2], got %v", c.Loop.Temperature)
	}

	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (valid: text, json)", c.Logging.Format)
	}
	return nil
}
