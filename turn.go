package toolloop

import (
	"slices"
	"time"
)

// Role identifies who produced a [Turn].
type Role string

const (
	// RoleUser is the seed turn: composed system instructions plus the user's request.
	RoleUser Role = "user"

	// RoleModel is a turn produced by the [Model]: free text, tool invocation requests, or both.
	RoleModel Role = "model"

	// RoleToolResult carries the results of every request from the preceding model turn.
	RoleToolResult Role = "tool_result"
)

// Turn is one entry in the conversation log.
//
// Exactly one kind of content is expected per role:
//   - RoleUser: Text
//   - RoleModel: Text and/or ToolCalls
//   - RoleToolResult: Results, in the same order as the requests they answer
//
// Turns are immutable once appended to a [Conversation]; the conversation keeps its own copy.
type Turn struct {
	Role      Role
	Text      string
	ToolCalls []ToolInvocationRequest
	Results   []ToolResult
}

// UserTurn creates a RoleUser turn with the given text.
func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

// ModelTurn creates a RoleModel turn from a model response.
func ModelTurn(text string, calls []ToolInvocationRequest) Turn {
	return Turn{Role: RoleModel, Text: text, ToolCalls: calls}
}

// ToolResultTurn creates a RoleToolResult turn.
func ToolResultTurn(results []ToolResult) Turn {
	return Turn{Role: RoleToolResult, Results: results}
}

// IsEmpty reports whether the turn has no content of any kind.
func (t Turn) IsEmpty() bool {
	return t.Text == "" && len(t.ToolCalls) == 0 && len(t.Results) == 0
}

// Clone returns a copy of the turn that shares no slices or argument maps with the original.
// Result values are copied shallowly.
func (t Turn) Clone() Turn {
	out := Turn{Role: t.Role, Text: t.Text}
	if t.ToolCalls != nil {
		out.ToolCalls = make([]ToolInvocationRequest, len(t.ToolCalls))
		for i, call := range t.ToolCalls {
			out.ToolCalls[i] = call.Clone()
		}
	}
	if t.Results != nil {
		out.Results = slices.Clone(t.Results)
	}
	return out
}

// ToolInvocationRequest is a single tool call requested by the model.
type ToolInvocationRequest struct {
	// ID is the provider-assigned call ID. The loop synthesizes one when the provider
	// does not supply it, so results can always be paired with their request.
	ID string

	// ToolName is the name of the requested tool.
	ToolName string

	// Arguments maps parameter name to value.
	Arguments map[string]any

	// DecodeError is set when the provider sent arguments that could not be decoded into
	// an object. The executor turns it into a failure result instead of calling the tool.
	DecodeError string
}

// Clone returns a copy of the request whose Arguments share nothing with the original.
func (r ToolInvocationRequest) Clone() ToolInvocationRequest {
	r.Arguments = CloneArguments(r.Arguments)
	return r
}

// CloneArguments deep-copies an argument map. Nested maps and slices decoded from JSON are
// copied; other values are shared.
func CloneArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return CloneArguments(v)
	case []any:
		if v == nil {
			return v
		}
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// ResultStatus is the tag of a [ToolResult] outcome.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailure ResultStatus = "failure"
)

// Failure messages synthesized by the loop itself, as opposed to messages coming from tools.
const (
	FailureUnknownTool = "unknown tool"
	FailureTimeout     = "timeout"
	FailureCancelled   = "cancelled"
)

// ToolResult is the outcome of one tool invocation. It is always a value, never an error:
// every failure (bad arguments, unknown tool, tool error, panic, timeout) is reported
// through Status and Error so the model can see it and adapt.
type ToolResult struct {
	// CallID is the ID of the request this result answers.
	CallID string

	// ToolName is the name of the requested tool.
	ToolName string

	// Status is ResultSuccess or ResultFailure.
	Status ResultStatus

	// Value is the tool output. Only meaningful when Status is ResultSuccess.
	Value any

	// Error is the failure message. Only meaningful when Status is ResultFailure.
	Error string

	// Duration is how long the tool ran. Zero if it was never invoked.
	Duration time.Duration
}

// Success creates a successful result for the given request.
func Success(req ToolInvocationRequest, value any) ToolResult {
	return ToolResult{
		CallID:   req.ID,
		ToolName: req.ToolName,
		Status:   ResultSuccess,
		Value:    value,
	}
}

// Failure creates a failed result for the given request.
func Failure(req ToolInvocationRequest, message string) ToolResult {
	return ToolResult{
		CallID:   req.ID,
		ToolName: req.ToolName,
		Status:   ResultFailure,
		Error:    message,
	}
}

// Failed reports whether the result is a failure.
func (r ToolResult) Failed() bool {
	return r.Status == ResultFailure
}
