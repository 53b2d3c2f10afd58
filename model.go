package toolloop

import (
	"context"
	"strings"
	"time"
)

// Model is the boundary to the language model backend.
//
// Given the full conversation and the tool schema set, it returns free text, zero or more tool
// invocation requests, or both. Transport, authentication, and provider message formats are the
// implementation's concern; see the models package for the langchaingo-backed implementation.
type Model interface {
	// Generate produces the next model turn.
	//
	// The conversation is a snapshot owned by the caller's run; implementations must not
	// retain or modify it. Temperature 0.0 is the expected setting for reproducible runs.
	Generate(
		ctx context.Context,
		conversation []Turn,
		tools []ToolSpec,
		temperature float64,
	) (*Response, error)
}

// Response is a single model response.
type Response struct {
	// Text is the free-text content. May be empty when the model only requests tools.
	Text string

	// ToolCalls are the tool invocation requests, in the order the model issued them.
	ToolCalls []ToolInvocationRequest

	// Info contains generation metadata. May be nil.
	Info *GenerationInfo
}

// IsEmpty reports whether the response carries neither text nor tool calls.
// Whitespace-only text counts as empty.
func (r *Response) IsEmpty() bool {
	if r == nil {
		return true
	}
	return len(r.ToolCalls) == 0 && strings.TrimSpace(r.Text) == ""
}

// GenerationInfo contains metadata about a generation including normalized token counts.
type GenerationInfo struct {
	// InputTokens is the number of input/prompt tokens used, normalized across providers.
	InputTokens int

	// OutputTokens is the number of output/completion tokens generated.
	OutputTokens int

	// TotalTokens is InputTokens + OutputTokens unless the provider reports it directly.
	TotalTokens int

	// StopReason is the provider's stop reason for the first choice, if any.
	StopReason string

	// Duration is how long the generation took.
	Duration time.Duration
}
