package toolloop

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolFunc is the callable bound to a [ToolSpec].
//
// It receives arguments that already passed schema validation and returns a plain structured
// value (map, slice, number, string, struct) that can be encoded as JSON, or an error. Errors
// and panics are converted into failure results by the executor; they never abort the loop.
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// ToolSpec describes a tool the model may request.
//
// Responsibility split:
//   - ToolSpec: name, description, parameter schema, and business logic
//   - toolchain.Registry: uniqueness, schema compilation, lookup
//   - toolchain.Executor: validation, invocation, failure conversion, timeouts
type ToolSpec struct {
	// Name is the tool identifier used in tool calls. Unique within a registry.
	Name string

	// Description is a human-readable description for the model.
	Description string

	// Parameters is the JSON Schema for the tool's arguments. Build it with the schema
	// package. Nil means the tool takes no declared parameters and arguments are not validated.
	Parameters map[string]any

	// Func executes the tool.
	Func ToolFunc
}

// NewTool creates a ToolSpec from a function with typed input and output.
//
// Validated arguments are decoded into I through JSON, so I is usually a struct with json tags
// matching the schema's property names:
//
//	type CalcInput struct {
//	    Operation string  `json:"operation"`
//	    A         float64 `json:"a"`
//	    B         float64 `json:"b"`
//	}
//
//	calc := toolloop.NewTool("calculate", "Basic arithmetic", params,
//	    func(ctx context.Context, in CalcInput) (float64, error) { ... })
func NewTool[I, O any](
	name, description string,
	params map[string]any,
	fn func(ctx context.Context, input I) (O, error),
) ToolSpec {
	return ToolSpec{
		Name:        name,
		Description: description,
		Parameters:  params,
		Func: func(ctx context.Context, args map[string]any) (any, error) {
			input, err := DecodeArgs[I](args)
			if err != nil {
				return nil, err
			}
			return fn(ctx, input)
		},
	}
}

// DecodeArgs converts raw arguments into a typed value by round-tripping through JSON.
func DecodeArgs[I any](args map[string]any) (I, error) {
	var input I
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return input, fmt.Errorf("failed to marshal args: %w", err)
	}
	if err := json.Unmarshal(data, &input); err != nil {
		return input, fmt.Errorf("failed to decode args: %w", err)
	}
	return input, nil
}
