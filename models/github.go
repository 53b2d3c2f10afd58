package models

import (
	"fmt"
	"net/http"

	"github.com/rickchristie/toolloop/config"
	"github.com/tmc/langchaingo/llms/openai"
)

// GitHubModelsBaseURL is the OpenAI-compatible inference endpoint of GitHub Models.
const GitHubModelsBaseURL = "https://models.github.ai/inference"

const githubAPIVersion = "2022-11-28"

// githubHeaderTransport adds the GitHub API version header to every request.
// It implements openai.Doer.
type githubHeaderTransport struct {
	base http.RoundTripper
}

func (t *githubHeaderTransport) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("X-GitHub-Api-Version", githubAPIVersion)
	return t.base.RoundTrip(req)
}

// NewGitHub creates a Model for the "github" provider, served by GitHub Models through
// the OpenAI client. The token is a fine-grained personal access token with models:read.
// An empty model selects [GitHubGPT41Mini]. Extra options are applied last.
func NewGitHub(model, token string, opts ...openai.Option) (*LCGWrapper, error) {
	if token == "" {
		return nil, fmt.Errorf("github: %w: set GITHUB_TOKEN to a token with models:read",
			config.ErrMissingAPIKey)
	}
	if model == "" {
		model = GitHubGPT41Mini
	}

	llm, err := openai.New(append([]openai.Option{
		openai.WithBaseURL(GitHubModelsBaseURL),
		openai.WithToken(token),
		openai.WithModel(model),
		openai.WithHTTPClient(&githubHeaderTransport{base: http.DefaultTransport}),
	}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create GitHub Models client: %w", err)
	}
	return NewLCGWrapper(llm).WithModelName(model), nil
}
