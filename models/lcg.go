package models

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rickchristie/toolloop"
	"github.com/tmc/langchaingo/llms"
)

// LCGWrapper wraps an llms.Model and implements toolloop.Model.
//
// It converts the conversation into langchaingo messages, declares the tool set as function
// tools, and converts the response back into text plus tool invocation requests. Token usage is
// normalized across providers.
//
// Example usage:
//
//	llm, _ := openai.New(openai.WithToken(apiKey))
//	model := models.NewLCGWrapper(llm).WithModelName("gpt-4o-mini")
//	ctrl := loop.New(model, registry, loop.Config{})
type LCGWrapper struct {
	model     llms.Model
	modelName string
	logger    *slog.Logger
}

// NewLCGWrapper creates a new LCGWrapper wrapping the given llms.Model.
func NewLCGWrapper(model llms.Model) *LCGWrapper {
	return &LCGWrapper{
		model:  model,
		logger: slog.New(slog.DiscardHandler),
	}
}

// WithModelName sets the model name used in log records.
// Returns the model for chaining.
func (m *LCGWrapper) WithModelName(name string) *LCGWrapper {
	m.modelName = name
	return m
}

// WithLogger sets the logger. Returns the model for chaining.
func (m *LCGWrapper) WithLogger(logger *slog.Logger) *LCGWrapper {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// ModelName returns the configured model name.
func (m *LCGWrapper) ModelName() string {
	return m.modelName
}

// Unwrap returns the underlying llms.Model.
func (m *LCGWrapper) Unwrap() llms.Model {
	return m.model
}

// Generate implements toolloop.Model.
func (m *LCGWrapper) Generate(
	ctx context.Context,
	conversation []toolloop.Turn,
	tools []toolloop.ToolSpec,
	temperature float64,
) (*toolloop.Response, error) {
	messages, err := toMessages(conversation)
	if err != nil {
		return nil, err
	}

	opts := []llms.CallOption{llms.WithTemperature(temperature)}
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(toTools(tools)))
	}

	m.logger.Debug("model call",
		"model", m.modelName,
		"messages", len(messages),
		"tools", len(tools),
	)

	startTime := time.Now()
	lcgResponse, err := m.model.GenerateContent(ctx, messages, opts...)
	duration := time.Since(startTime)
	if err != nil {
		return nil, err
	}
	if lcgResponse == nil {
		return nil, nil
	}

	response := convertLCGResponse(lcgResponse, duration)
	m.logger.Debug("model response",
		"model", m.modelName,
		"duration", duration,
		"tool_calls", len(response.ToolCalls),
		"input_tokens", response.Info.InputTokens,
		"output_tokens", response.Info.OutputTokens,
	)
	return response, nil
}

// toMessages converts the conversation log into langchaingo messages.
//
// A tool_result turn becomes one tool message per result, in request order, since providers
// pair each tool response with its call ID.
func toMessages(conversation []toolloop.Turn) ([]llms.MessageContent, error) {
	messages := make([]llms.MessageContent, 0, len(conversation))
	for i, turn := range conversation {
		switch turn.Role {
		case toolloop.RoleUser:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, turn.Text))

		case toolloop.RoleModel:
			msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if turn.Text != "" {
				msg.Parts = append(msg.Parts, llms.TextContent{Text: turn.Text})
			}
			for _, call := range turn.ToolCalls {
				args, err := encodeArguments(call.Arguments)
				if err != nil {
					return nil, fmt.Errorf("turn %d: encode arguments of %s: %w", i, call.ToolName, err)
				}
				msg.Parts = append(msg.Parts, llms.ToolCall{
					ID:   call.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      call.ToolName,
						Arguments: args,
					},
				})
			}
			messages = append(messages, msg)

		case toolloop.RoleToolResult:
			for _, result := range turn.Results {
				messages = append(messages, llms.MessageContent{
					Role: llms.ChatMessageTypeTool,
					Parts: []llms.ContentPart{llms.ToolCallResponse{
						ToolCallID: result.CallID,
						Name:       result.ToolName,
						Content:    resultContent(result),
					}},
				})
			}

		default:
			return nil, fmt.Errorf("turn %d: unknown role %q", i, turn.Role)
		}
	}
	return messages, nil
}

func encodeArguments(args map[string]any) (string, error) {
	if args == nil {
		return "{}", nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// resultContent renders a tool result as the JSON text the provider sees.
// Failures are rendered as {"error": "<message>"}.
func resultContent(result toolloop.ToolResult) string {
	var payload any = result.Value
	if result.Failed() {
		payload = map[string]string{"error": result.Error}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		// Unreachable for results produced by the executor.
		b, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	return string(b)
}

// toTools declares tool specs as langchaingo function tools.
func toTools(specs []toolloop.ToolSpec) []llms.Tool {
	tools := make([]llms.Tool, len(specs))
	for i, spec := range specs {
		params := spec.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools[i] = llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  params,
			},
		}
	}
	return tools
}

// convertLCGResponse converts an llms.ContentResponse into a toolloop.Response with normalized
// tokens.
//
// Some providers split text and tool calls across choices, so every choice is merged: texts are
// joined with newlines and tool calls are collected in order. A legacy FuncCall is used only
// when a choice has no ToolCalls.
func convertLCGResponse(
	lcgResponse *llms.ContentResponse,
	duration time.Duration,
) *toolloop.Response {
	response := &toolloop.Response{
		Info: &toolloop.GenerationInfo{Duration: duration},
	}

	var texts []string
	for _, choice := range lcgResponse.Choices {
		if choice == nil {
			continue
		}
		if strings.TrimSpace(choice.Content) != "" {
			texts = append(texts, choice.Content)
		}

		switch {
		case len(choice.ToolCalls) > 0:
			for _, tc := range choice.ToolCalls {
				if tc.FunctionCall == nil {
					continue
				}
				response.ToolCalls = append(response.ToolCalls,
					toRequest(tc.ID, tc.FunctionCall.Name, tc.FunctionCall.Arguments))
			}
		case choice.FuncCall != nil:
			response.ToolCalls = append(response.ToolCalls,
				toRequest("", choice.FuncCall.Name, choice.FuncCall.Arguments))
		}
	}
	response.Text = strings.Join(texts, "\n")

	// Extract and normalize token info from the first choice's GenerationInfo
	if len(lcgResponse.Choices) > 0 && lcgResponse.Choices[0] != nil {
		first := lcgResponse.Choices[0]
		response.Info.StopReason = first.StopReason
		if rawInfo := first.GenerationInfo; rawInfo != nil {
			response.Info.InputTokens = extractInputTokens(rawInfo)
			response.Info.OutputTokens = extractOutputTokens(rawInfo)
			response.Info.TotalTokens = extractTotalTokens(
				rawInfo,
				response.Info.InputTokens,
				response.Info.OutputTokens,
			)
		}
	}

	return response
}

// toRequest decodes provider arguments. An empty string means no arguments; anything that is
// not a JSON object is recorded as a DecodeError for the executor to report.
func toRequest(id, name, arguments string) toolloop.ToolInvocationRequest {
	req := toolloop.ToolInvocationRequest{ID: id, ToolName: name}
	if strings.TrimSpace(arguments) == "" {
		req.Arguments = map[string]any{}
		return req
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		req.DecodeError = err.Error()
		return req
	}
	if args == nil {
		args = map[string]any{}
	}
	req.Arguments = args
	return req
}

// extractInputTokens extracts input/prompt token count from GenerationInfo.
// Handles different key names used by different providers.
func extractInputTokens(info map[string]any) int {
	// OpenAI / Ollama / Google (compat)
	if v := getIntFromMap(info, "PromptTokens"); v > 0 {
		return v
	}
	// Anthropic
	if v := getIntFromMap(info, "InputTokens"); v > 0 {
		return v
	}
	// Google / Bedrock
	if v := getIntFromMap(info, "input_tokens"); v > 0 {
		return v
	}
	return 0
}

// extractOutputTokens extracts output/completion token count from GenerationInfo.
func extractOutputTokens(info map[string]any) int {
	if v := getIntFromMap(info, "CompletionTokens"); v > 0 {
		return v
	}
	if v := getIntFromMap(info, "OutputTokens"); v > 0 {
		return v
	}
	if v := getIntFromMap(info, "output_tokens"); v > 0 {
		return v
	}
	return 0
}

// extractTotalTokens extracts total token count or computes it.
func extractTotalTokens(info map[string]any, input, output int) int {
	if v := getIntFromMap(info, "TotalTokens"); v > 0 {
		return v
	}
	if v := getIntFromMap(info, "total_tokens"); v > 0 {
		return v
	}
	return input + output
}

// getIntFromMap extracts an int value from a map, handling various numeric types.
func getIntFromMap(m map[string]any, key string) int {
	v, ok := m[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	default:
		return 0
	}
}

// Compile-time check that LCGWrapper implements toolloop.Model.
var _ toolloop.Model = (*LCGWrapper)(nil)
