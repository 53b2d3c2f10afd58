package tt

import (
	"context"
	"fmt"
	"sync"

	"github.com/rickchristie/toolloop"
)

// -----------------------------------------------------------------------------
// ScriptedModel - implements toolloop.Model from a queue of canned steps
// -----------------------------------------------------------------------------

// StepFunc produces one model response. It sees the same arguments as Generate.
type StepFunc func(ctx context.Context, conversation []toolloop.Turn) (*toolloop.Response, error)

// ScriptedModel is a toolloop.Model that replays queued steps in order.
//
// Once the queue is drained it keeps answering with the fallback step, which by default is
// the final answer "done". Every call's inputs are captured for assertions.
type ScriptedModel struct {
	mu       sync.Mutex
	steps    []StepFunc
	fallback StepFunc
	calls    int

	// CapturedConversations stores the conversation passed to each Generate call.
	CapturedConversations [][]toolloop.Turn

	// CapturedTools stores the tool names offered on each Generate call.
	CapturedTools [][]string

	// CapturedTemperatures stores the temperature of each Generate call.
	CapturedTemperatures []float64
}

// NewScriptedModel creates a model with an empty script.
func NewScriptedModel() *ScriptedModel {
	return &ScriptedModel{
		fallback: respond(&toolloop.Response{Text: "done"}),
	}
}

func respond(resp *toolloop.Response) StepFunc {
	return func(context.Context, []toolloop.Turn) (*toolloop.Response, error) {
		return resp, nil
	}
}

// AddText queues a text-only response.
func (m *ScriptedModel) AddText(text string) *ScriptedModel {
	return m.AddResponse(&toolloop.Response{Text: text})
}

// AddToolCalls queues a response requesting the given calls.
func (m *ScriptedModel) AddToolCalls(calls ...toolloop.ToolInvocationRequest) *ScriptedModel {
	return m.AddResponse(&toolloop.Response{ToolCalls: calls})
}

// AddResponse queues a raw response. Use it for responses carrying both text and calls,
// empty responses, or generation info.
func (m *ScriptedModel) AddResponse(resp *toolloop.Response) *ScriptedModel {
	return m.AddStep(respond(resp))
}

// AddError queues an error.
func (m *ScriptedModel) AddError(err error) *ScriptedModel {
	return m.AddStep(func(context.Context, []toolloop.Turn) (*toolloop.Response, error) {
		return nil, err
	})
}

// AddBlocking queues a step that blocks until ctx is done and returns its error.
func (m *ScriptedModel) AddBlocking() *ScriptedModel {
	return m.AddStep(func(ctx context.Context, _ []toolloop.Turn) (*toolloop.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

// AddStep queues an arbitrary step.
func (m *ScriptedModel) AddStep(step StepFunc) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, step)
	return m
}

// WithFallback sets the step used once the queue is drained.
func (m *ScriptedModel) WithFallback(step StepFunc) *ScriptedModel {
	m.fallback = step
	return m
}

// AlwaysToolCalls makes the fallback request the given calls forever, modelling a model that
// never converges.
func (m *ScriptedModel) AlwaysToolCalls(calls ...toolloop.ToolInvocationRequest) *ScriptedModel {
	return m.WithFallback(respond(&toolloop.Response{ToolCalls: calls}))
}

// CallCount returns the number of Generate calls.
func (m *ScriptedModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Generate implements toolloop.Model.
func (m *ScriptedModel) Generate(
	ctx context.Context,
	conversation []toolloop.Turn,
	tools []toolloop.ToolSpec,
	temperature float64,
) (*toolloop.Response, error) {
	m.mu.Lock()
	idx := m.calls
	m.calls++

	names := make([]string, len(tools))
	for i, spec := range tools {
		names[i] = spec.Name
	}
	m.CapturedConversations = append(m.CapturedConversations, conversation)
	m.CapturedTools = append(m.CapturedTools, names)
	m.CapturedTemperatures = append(m.CapturedTemperatures, temperature)

	step := m.fallback
	if idx < len(m.steps) {
		step = m.steps[idx]
	}
	m.mu.Unlock()

	return step(ctx, conversation)
}

var _ toolloop.Model = (*ScriptedModel)(nil)

// Call builds a tool invocation request.
func Call(id, toolName string, args map[string]any) toolloop.ToolInvocationRequest {
	return toolloop.ToolInvocationRequest{ID: id, ToolName: toolName, Arguments: args}
}

// Calls builds n requests to the same tool with ids call_0..call_n-1.
func Calls(n int, toolName string, args func(i int) map[string]any) []toolloop.ToolInvocationRequest {
	out := make([]toolloop.ToolInvocationRequest, n)
	for i := range out {
		var a map[string]any
		if args != nil {
			a = args(i)
		}
		out[i] = Call(fmt.Sprintf("call_%d", i), toolName, a)
	}
	return out
}
