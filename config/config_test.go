package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "toolloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ProviderGemini, cfg.Model.Provider)
	assert.Equal(t, 10, cfg.Loop.MaxIterations)
	assert.Equal(t, 60*time.Second, cfg.Loop.ModelTimeout)
	assert.Equal(t, 30*time.Second, cfg.Loop.ToolTimeout)
	assert.Equal(t, 4, cfg.Loop.MaxParallelTools)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad(t *testing.T) {
	t.Setenv("TOOLLOOP_TEST_KEY", "secret-from-env")

	path := writeConfig(t, `
model:
  provider: openai
  name: gpt-4o
  api_key: ${TOOLLOOP_TEST_KEY}
loop:
  max_iterations: 5
  temperature: 0.3
  model_timeout: 90s
  tool_timeout: 2s
  system_prompt: Be brief.
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModelConfig{
		Provider: ProviderOpenAI,
		Name:     "gpt-4o",
		APIKey:   "secret-from-env",
	}, cfg.Model)
	assert.Equal(t, LoopConfig{
		MaxIterations:    5,
		Temperature:      0.3,
		ModelTimeout:     90 * time.Second,
		ToolTimeout:      2 * time.Second,
		MaxParallelTools: 4, // kept from Default
		SystemPrompt:     "Be brief.",
	}, cfg.Loop)
	assert.Equal(t, LoggingConfig{Level: "debug", Format: "json"}, cfg.Logging)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = Load(writeConfig(t, "model: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse ")
}

func TestFindConfig(t *testing.T) {
	path := writeConfig(t, "model: {}\n")

	got, err := FindConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = FindConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestDefaultSearchPaths(t *testing.T) {
	paths := DefaultSearchPaths()
	require.NotEmpty(t, paths)
	assert.Equal(t, "toolloop.yaml", paths[0])
	for _, p := range paths[1:] {
		assert.True(t, strings.HasSuffix(p, filepath.Join("toolloop", "config.yaml")), p)
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name     string
		input    ModelConfig
		env      map[string]string
		expected ModelConfig
	}{
		{
			name:     "gemini key and model",
			input:    ModelConfig{Provider: ProviderGemini},
			env:      map[string]string{"GEMINI_API_KEY": "g-key", "GEMINI_MODEL": "gemini-2.5-pro"},
			expected: ModelConfig{Provider: ProviderGemini, Name: "gemini-2.5-pro", APIKey: "g-key"},
		},
		{
			name:  "TOOLLOOP_MODEL wins over GEMINI_MODEL",
			input: ModelConfig{Provider: ProviderGemini},
			env: map[string]string{
				"TOOLLOOP_MODEL": "gemini-2.0-flash",
				"GEMINI_MODEL":   "gemini-2.5-pro",
			},
			expected: ModelConfig{Provider: ProviderGemini, Name: "gemini-2.0-flash"},
		},
		{
			name:     "file key is not overridden",
			input:    ModelConfig{Provider: ProviderGemini, APIKey: "from-file"},
			env:      map[string]string{"GEMINI_API_KEY": "from-env"},
			expected: ModelConfig{Provider: ProviderGemini, APIKey: "from-file"},
		},
		{
			name:  "provider switch picks the matching key",
			input: ModelConfig{Provider: ProviderGemini},
			env: map[string]string{
				"TOOLLOOP_PROVIDER": "OpenAI",
				"GEMINI_API_KEY":    "g-key",
				"OPENAI_API_KEY":    "o-key",
			},
			expected: ModelConfig{Provider: ProviderOpenAI, APIKey: "o-key"},
		},
		{
			name:     "github token",
			input:    ModelConfig{Provider: ProviderGitHub},
			env:      map[string]string{"GITHUB_TOKEN": "ghp_x"},
			expected: ModelConfig{Provider: ProviderGitHub, APIKey: "ghp_x"},
		},
		{
			name:     "ollama base url",
			input:    ModelConfig{Provider: ProviderOllama},
			env:      map[string]string{"OLLAMA_BASE_URL": "http://gpu:11434", "GEMINI_MODEL": "ignored"},
			expected: ModelConfig{Provider: ProviderOllama, BaseURL: "http://gpu:11434"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Model = tt.input
			cfg.ApplyEnv(envMap(tt.env))
			assert.Equal(t, tt.expected, cfg.Model)
		})
	}
}

func TestApplyEnv_LogLevel(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(envMap(map[string]string{"TOOLLOOP_LOG_LEVEL": "trace"}))
	assert.Equal(t, "trace", cfg.Logging.Level)
}

func TestApplyDefaults(t *testing.T) {
	tests := []struct {
		name     string
		input    ModelConfig
		expected ModelConfig
	}{
		{
			name:     "empty provider",
			input:    ModelConfig{},
			expected: ModelConfig{Provider: ProviderGemini, Name: DefaultGeminiModel},
		},
		{
			name:     "ollama",
			input:    ModelConfig{Provider: ProviderOllama},
			expected: ModelConfig{Provider: ProviderOllama, Name: DefaultOllamaModel, BaseURL: DefaultOllamaURL},
		},
		{
			name:     "explicit name kept",
			input:    ModelConfig{Provider: ProviderOpenAI, Name: "gpt-4o"},
			expected: ModelConfig{Provider: ProviderOpenAI, Name: "gpt-4o"},
		},
		{
			name:     "github",
			input:    ModelConfig{Provider: ProviderGitHub},
			expected: ModelConfig{Provider: ProviderGitHub, Name: DefaultGitHubModel},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Model = tt.input
			cfg.ApplyDefaults()
			assert.Equal(t, tt.expected, cfg.Model)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		err    string
	}{
		{
			name:   "valid",
			modify: func(c *Config) { c.Model.APIKey = "k" },
		},
		{
			name:   "ollama needs no key",
			modify: func(c *Config) { c.Model.Provider = ProviderOllama },
		},
		{
			name:   "missing key",
			modify: func(c *Config) {},
			err:    "API key not set for provider gemini",
		},
		{
			name:   "unknown provider",
			modify: func(c *Config) { c.Model.Provider = "mystery" },
			err:    `unknown provider "mystery"`,
		},
		{
			name: "negative iterations",
			modify: func(c *Config) {
				c.Model.APIKey = "k"
				c.Loop.MaxIterations = -1
			},
			err: "loop.max_iterations must not be negative",
		},
		{
			name: "negative timeout",
			modify: func(c *Config) {
				c.Model.APIKey = "k"
				c.Loop.ToolTimeout = -time.Second
			},
			err: "loop timeouts must not be negative",
		},
		{
			name: "temperature out of range",
			modify: func(c *Config) {
				c.Model.APIKey = "k"
				c.Loop.Temperature = 3
			},
			err: "loop.temperature must be within [0, 2]",
		},
		{
			name: "bad log level",
			modify: func(c *Config) {
				c.Model.APIKey = "k"
				c.Logging.Level = "loud"
			},
			err: `unknown log level "loud"`,
		},
		{
			name: "bad log format",
			modify: func(c *Config) {
				c.Model.APIKey = "k"
				c.Logging.Format = "xml"
			},
			err: `unknown log format "xml"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.err == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestValidate_MissingKeyIsSentinel(t *testing.T) {
	err := Default().Validate()
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
		wantErr  bool
	}{
		{input: "trace", expected: LevelTrace},
		{input: "DEBUG", expected: slog.LevelDebug},
		{input: "", expected: slog.LevelInfo},
		{input: " info ", expected: slog.LevelInfo},
		{input: "warning", expected: slog.LevelWarn},
		{input: "warn", expected: slog.LevelWarn},
		{input: "error", expected: slog.LevelError},
		{input: "verbose", expected: slog.LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf strings.Builder
	logger, err := NewLogger(&buf, LoggingConfig{Level: "trace", Format: "text"})
	require.NoError(t, err)

	logger.Log(t.Context(), LevelTrace, "payload", "tool", "calculate")
	logger.Debug("debug line")

	out := buf.String()
	assert.Contains(t, out, "level=TRACE")
	assert.Contains(t, out, "msg=payload")
	assert.Contains(t, out, "level=DEBUG")

	buf.Reset()
	logger, err = NewLogger(&buf, LoggingConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = NewLogger(&buf, LoggingConfig{Level: "nope"})
	assert.Error(t, err)
}
