package loop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickchristie/toolloop"
	"github.com/rickchristie/toolloop/hooks"
	"github.com/rickchristie/toolloop/internal/tt"
	"github.com/rickchristie/toolloop/schema"
	"github.com/rickchristie/toolloop/toolchain"
	"github.com/rickchristie/toolloop/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func builtinRegistry(t *testing.T) *toolchain.Registry {
	t.Helper()
	reg := toolchain.NewRegistry()
	box := tools.New().
		WithClock(tools.NewFixedClock(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))).
		WithRand(rand.NewPCG(1, 2))
	require.NoError(t, box.Register(reg))
	return reg
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("id%d", n.Add(1))
	}
}

func newController(model toolloop.Model, reg *toolchain.Registry, cfg Config) *Controller {
	c := New(model, reg, cfg)
	c.newID = sequentialIDs()
	return c
}

func calc(id, op string, a, b float64) toolloop.ToolInvocationRequest {
	return tt.Call(id, tools.NameCalculate, map[string]any{"operation": op, "a": a, "b": b})
}

func TestController_FinalAnswerAfterToolCall(t *testing.T) {
	model := tt.NewScriptedModel().
		AddToolCalls(calc("call_1", "add", 15, 25)).
		AddText("15 plus 25 is 40.")

	ctrl := newController(model, builtinRegistry(t), Config{})
	result, err := ctrl.Run(context.Background(), "What is 15 plus 25?")

	require.NoError(t, err)
	assert.Equal(t, toolloop.OutcomeFinalAnswer, result.Outcome)
	assert.Equal(t, toolloop.StateFinalAnswer, result.State)
	assert.Equal(t, "15 plus 25 is 40.", result.Text)
	assert.Equal(t, 2, result.Rounds)
	assert.Equal(t, 2, model.CallCount())

	tt.AssertTranscript(t, `
user: What is 15 plus 25?
model -> call_1 calculate {"a":15,"b":25,"operation":"add"}
result <- call_1 calculate success 40
model: 15 plus 25 is 40.
`, result.Conversation)

	// The second query saw the tool result.
	require.Len(t, model.CapturedConversations, 2)
	second := model.CapturedConversations[1]
	require.Len(t, second, 3)
	assert.Equal(t, toolloop.RoleToolResult, second[2].Role)
	assert.Equal(t, float64(40), second[2].Results[0].Value)
}

func TestController_ToolFailureFeedsBackAndLoopContinues(t *testing.T) {
	model := tt.NewScriptedModel().
		AddToolCalls(calc("call_1", "divide", 5, 0)).
		AddText("Dividing by zero is undefined.")

	result, err := newController(model, builtinRegistry(t), Config{}).
		Run(context.Background(), "What is 5 divided by 0?")

	require.NoError(t, err)
	assert.Equal(t, toolloop.OutcomeFinalAnswer, result.Outcome)
	tt.AssertTranscript(t, `
user: What is 5 divided by 0?
model -> call_1 calculate {"a":5,"b":0,"operation":"divide"}
result <- call_1 calculate failure "division by zero"
model: Dividing by zero is undefined.
`, result.Conversation)
	assert.Equal(t, 1, result.Trace.Stats.ToolFailures)
}

func TestController_ExhaustsIterationBudget(t *testing.T) {
	tests := []struct {
		name          string
		maxIterations int
		expectedCalls int
	}{
		{name: "default budget", maxIterations: 0, expectedCalls: 10},
		{name: "custom budget", maxIterations: 3, expectedCalls: 3},
		{name: "single round", maxIterations: 1, expectedCalls: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			model := tt.NewScriptedModel().AlwaysToolCalls(calc("call_x", "add", 1, 1))

			result, err := newController(model, builtinRegistry(t), Config{
				MaxIterations: tc.maxIterations,
			}).Run(context.Background(), "loop forever")

			require.NoError(t, err, "exhaustion is not an error")
			assert.Equal(t, toolloop.OutcomeExhausted, result.Outcome)
			assert.Equal(t, toolloop.StateExhausted, result.State)
			assert.Empty(t, result.Text)
			assert.Equal(t, tc.expectedCalls, model.CallCount())
			assert.Equal(t, tc.expectedCalls, result.Rounds)

			// Seed turn plus one model turn and one result turn per round.
			assert.Len(t, result.Conversation, 1+2*tc.expectedCalls)
			last := result.Conversation[len(result.Conversation)-1]
			assert.Equal(t, toolloop.RoleToolResult, last.Role)
		})
	}
}

func TestController_EmptyResponseIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		response *toolloop.Response
	}{
		{name: "no text no calls", response: &toolloop.Response{}},
		{name: "whitespace text", response: &toolloop.Response{Text: "  \n\t"}},
		{name: "nil response", response: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			model := tt.NewScriptedModel().
				AddToolCalls(calc("call_1", "add", 1, 2)).
				AddResponse(tc.response).
				AddText("never reached")

			result, err := newController(model, builtinRegistry(t), Config{}).
				Run(context.Background(), "hi")

			require.Error(t, err)
			assert.ErrorIs(t, err, toolloop.ErrEmptyResponse)
			assert.Equal(t, toolloop.OutcomeFailed, result.Outcome)
			assert.Equal(t, 2, model.CallCount(), "empty responses are not retried")
			// The empty response is not appended.
			assert.Len(t, result.Conversation, 3)
		})
	}
}

func TestController_ToolCallsWinOverText(t *testing.T) {
	model := tt.NewScriptedModel().
		AddResponse(&toolloop.Response{
			Text:      "Let me calculate that.",
			ToolCalls: []toolloop.ToolInvocationRequest{calc("call_1", "multiply", 6, 7)},
		}).
		AddText("It is 42.")

	result, err := newController(model, builtinRegistry(t), Config{}).
		Run(context.Background(), "6 times 7?")

	require.NoError(t, err)
	assert.Equal(t, "It is 42.", result.Text)
	tt.AssertTranscript(t, `
user: 6 times 7?
model: Let me calculate that.
model -> call_1 calculate {"a":6,"b":7,"operation":"multiply"}
result <- call_1 calculate success 42
model: It is 42.
`, result.Conversation)
}

func TestController_UnknownToolIsReported(t *testing.T) {
	model := tt.NewScriptedModel().
		AddToolCalls(
			tt.Call("call_1", "teleport", map[string]any{"to": "Mars"}),
			calc("call_2", "add", 2, 2),
		).
		AddText("I cannot teleport, but 2 plus 2 is 4.")

	result, err := newController(model, builtinRegistry(t), Config{}).
		Run(context.Background(), "Teleport me and add 2 and 2")

	require.NoError(t, err)
	tt.AssertTranscript(t, `
user: Teleport me and add 2 and 2
model -> call_1 teleport {"to":"Mars"}
model -> call_2 calculate {"a":2,"b":2,"operation":"add"}
result <- call_1 teleport failure "unknown tool"
result <- call_2 calculate success 4
model: I cannot teleport, but 2 plus 2 is 4.
`, result.Conversation)
}

func TestController_ResultsPairedInRequestOrder(t *testing.T) {
	reg := toolchain.NewRegistry().MustRegister(toolloop.ToolSpec{
		Name: "sleep",
		Parameters: schema.Object(map[string]*schema.Property{
			"ms": schema.Integer("Milliseconds to sleep"),
		}, "ms"),
		Func: func(_ context.Context, args map[string]any) (any, error) {
			ms := args["ms"].(int)
			time.Sleep(time.Duration(ms) * time.Millisecond)
			return ms, nil
		},
	})

	delays := []int{30, 0, 20, 5, 25, 10, 15}
	calls := tt.Calls(len(delays), "sleep", func(i int) map[string]any {
		return map[string]any{"ms": delays[i]}
	})
	model := tt.NewScriptedModel().AddToolCalls(calls...).AddText("slept")

	result, err := newController(model, reg, Config{MaxParallelTools: 3}).
		Run(context.Background(), "sleep a lot")

	require.NoError(t, err)
	require.Len(t, result.Conversation, 4)

	results := result.Conversation[2].Results
	require.Len(t, results, len(calls))
	for i, res := range results {
		assert.Equal(t, calls[i].ID, res.CallID)
		assert.Equal(t, delays[i], res.Value)
	}
}

func TestController_CancelDuringToolsStopsBeforeNextRound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := toolchain.NewRegistry().MustRegister(toolloop.ToolSpec{
		Name: "cancel_run",
		Func: func(context.Context, map[string]any) (any, error) {
			cancel()
			return "cancelled the run", nil
		},
	})
	model := tt.NewScriptedModel().
		AddToolCalls(tt.Call("call_1", "cancel_run", nil)).
		AddText("never reached")

	result, err := newController(model, reg, Config{}).Run(ctx, "go")

	require.Error(t, err)
	assert.ErrorIs(t, err, toolloop.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, toolloop.OutcomeCancelled, result.Outcome)
	assert.Equal(t, 1, model.CallCount())

	// The in-flight tool finished and its result was still recorded.
	require.Len(t, result.Conversation, 3)
	assert.Equal(t, "cancelled the run", result.Conversation[2].Results[0].Value)
}

func TestController_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model := tt.NewScriptedModel()
	result, err := newController(model, builtinRegistry(t), Config{}).Run(ctx, "hello")

	assert.ErrorIs(t, err, toolloop.ErrCancelled)
	assert.Equal(t, toolloop.OutcomeCancelled, result.Outcome)
	assert.Zero(t, model.CallCount())
	assert.Zero(t, result.Rounds)
	require.Len(t, result.Conversation, 1)
	assert.Equal(t, toolloop.RoleUser, result.Conversation[0].Role)
}

func TestController_CancelDuringModelCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	model := tt.NewScriptedModel().AddStep(
		func(ctx context.Context, _ []toolloop.Turn) (*toolloop.Response, error) {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		},
	)

	result, err := newController(model, builtinRegistry(t), Config{
		ModelTimeout: time.Minute,
	}).Run(ctx, "hello")

	assert.ErrorIs(t, err, toolloop.ErrCancelled)
	assert.NotErrorIs(t, err, toolloop.ErrModelTimeout)
	assert.Equal(t, toolloop.OutcomeCancelled, result.Outcome)
}

func TestController_ModelTimeout(t *testing.T) {
	tests := []struct {
		name string
		step tt.StepFunc
	}{
		{
			name: "model honours context",
			step: func(ctx context.Context, _ []toolloop.Turn) (*toolloop.Response, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		},
		{
			name: "model ignores context",
			step: func(context.Context, []toolloop.Turn) (*toolloop.Response, error) {
				time.Sleep(500 * time.Millisecond)
				return &toolloop.Response{Text: "too late"}, nil
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			model := tt.NewScriptedModel().AddStep(tc.step)

			start := time.Now()
			result, err := newController(model, builtinRegistry(t), Config{
				ModelTimeout: 20 * time.Millisecond,
			}).Run(context.Background(), "hello")

			assert.ErrorIs(t, err, toolloop.ErrModelTimeout)
			assert.Equal(t, toolloop.OutcomeFailed, result.Outcome)
			assert.Equal(t, 1, model.CallCount(), "timeouts are not retried")
			assert.Less(t, time.Since(start), 400*time.Millisecond)
		})
	}
}

func TestController_ModelErrorIsFatal(t *testing.T) {
	backendErr := errors.New("503 service unavailable")
	model := tt.NewScriptedModel().AddError(backendErr)

	result, err := newController(model, builtinRegistry(t), Config{}).
		Run(context.Background(), "hello")

	assert.ErrorIs(t, err, backendErr)
	assert.Contains(t, err.Error(), "round 1")
	assert.Equal(t, toolloop.OutcomeFailed, result.Outcome)
	assert.Same(t, result.Err, err)
}

func TestController_ToolTimeoutBecomesFailure(t *testing.T) {
	reg := toolchain.NewRegistry().MustRegister(toolloop.ToolSpec{
		Name: "slow",
		Func: func(context.Context, map[string]any) (any, error) {
			time.Sleep(300 * time.Millisecond)
			return "done", nil
		},
	})
	model := tt.NewScriptedModel().
		AddToolCalls(tt.Call("call_1", "slow", nil)).
		AddText("The tool timed out.")

	result, err := newController(model, reg, Config{ToolTimeout: 10 * time.Millisecond}).
		Run(context.Background(), "be slow")

	require.NoError(t, err)
	assert.Equal(t, toolloop.OutcomeFinalAnswer, result.Outcome)
	assert.Equal(t, toolloop.FailureTimeout, result.Conversation[2].Results[0].Error)
}

func TestController_ToolPanicBecomesFailure(t *testing.T) {
	reg := toolchain.NewRegistry().MustRegister(toolloop.ToolSpec{
		Name: "explode",
		Func: func(context.Context, map[string]any) (any, error) {
			panic("boom")
		},
	})
	model := tt.NewScriptedModel().
		AddToolCalls(tt.Call("call_1", "explode", nil)).
		AddText("The tool crashed.")

	result, err := newController(model, reg, Config{}).Run(context.Background(), "explode")

	require.NoError(t, err)
	assert.Equal(t, "panic: boom", result.Conversation[2].Results[0].Error)
}

func TestController_SeedTurn(t *testing.T) {
	tests := []struct {
		name         string
		systemPrompt string
		expected     string
	}{
		{name: "no system prompt", expected: "hello"},
		{
			name:         "with system prompt",
			systemPrompt: "You are a helpful assistant.",
			expected:     "You are a helpful assistant.\n\nhello",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			model := tt.NewScriptedModel().AddText("hi")
			_, err := newController(model, builtinRegistry(t), Config{
				SystemPrompt: tc.systemPrompt,
			}).Run(context.Background(), "hello")

			require.NoError(t, err)
			first := model.CapturedConversations[0]
			require.Len(t, first, 1)
			assert.Equal(t, toolloop.UserTurn(tc.expected), first[0])
		})
	}
}

func TestController_SynthesizesMissingCallIDs(t *testing.T) {
	model := tt.NewScriptedModel().
		AddToolCalls(
			tt.Call("", tools.NameCalculate, map[string]any{"operation": "add", "a": 1, "b": 1}),
			tt.Call("provided", tools.NameCalculate, map[string]any{"operation": "add", "a": 2, "b": 2}),
		).
		AddText("done")

	result, err := newController(model, builtinRegistry(t), Config{}).Run(context.Background(), "x")

	require.NoError(t, err)
	modelTurn := result.Conversation[1]
	resultTurn := result.Conversation[2]

	assert.True(t, strings.HasPrefix(modelTurn.ToolCalls[0].ID, "call_"))
	assert.Equal(t, "provided", modelTurn.ToolCalls[1].ID)
	for i := range modelTurn.ToolCalls {
		assert.Equal(t, modelTurn.ToolCalls[i].ID, resultTurn.Results[i].CallID)
	}
}

func TestController_PassesToolsAndTemperature(t *testing.T) {
	model := tt.NewScriptedModel().AddText("ok")

	_, err := newController(model, builtinRegistry(t), Config{Temperature: 0.3}).
		Run(context.Background(), "x")

	require.NoError(t, err)
	assert.Equal(t, []float64{0.3}, model.CapturedTemperatures)
	assert.Equal(t, [][]string{{
		tools.NameCalculate, tools.NameGetCurrentTime, tools.NameRollDice, tools.NameGetWeather,
	}}, model.CapturedTools)
}

func TestController_SealsRegistry(t *testing.T) {
	reg := builtinRegistry(t)
	model := tt.NewScriptedModel().AddText("ok")

	_, err := newController(model, reg, Config{}).Run(context.Background(), "x")
	require.NoError(t, err)

	err = reg.Register(toolloop.ToolSpec{
		Name: "late",
		Func: func(context.Context, map[string]any) (any, error) { return nil, nil },
	})
	assert.ErrorIs(t, err, toolloop.ErrRegistrySealed)
}

func TestController_TraceTotals(t *testing.T) {
	model := tt.NewScriptedModel().
		AddResponse(&toolloop.Response{
			ToolCalls: []toolloop.ToolInvocationRequest{
				calc("call_1", "add", 1, 2),
				calc("call_2", "divide", 1, 0),
			},
			Info: &toolloop.GenerationInfo{InputTokens: 100, OutputTokens: 20},
		}).
		AddResponse(&toolloop.Response{
			Text: "done",
			Info: &toolloop.GenerationInfo{InputTokens: 150, OutputTokens: 10},
		})

	result, err := newController(model, builtinRegistry(t), Config{}).Run(context.Background(), "x")

	require.NoError(t, err)
	trace := result.Trace
	require.NotNil(t, trace)
	assert.Equal(t, result.RunID, trace.RunID)
	assert.Equal(t, toolloop.OutcomeFinalAnswer, trace.Outcome)
	assert.Equal(t, toolloop.RunStats{
		ModelCalls:   2,
		ToolCalls:    2,
		ToolFailures: 1,
		InputTokens:  250,
		OutputTokens: 30,
	}, trace.Stats)

	require.Len(t, trace.Rounds, 2)
	assert.Equal(t, toolloop.StateAwaitingModel, trace.Rounds[0].State)
	assert.Equal(t, toolloop.StateFinalAnswer, trace.Rounds[1].State)
	assert.False(t, trace.EndTime.Before(trace.StartTime))
}

func TestController_Hooks(t *testing.T) {
	model := tt.NewScriptedModel().
		AddToolCalls(calc("call_1", "add", 15, 25)).
		AddText("40")
	hook := tt.NewRecordingHook()

	ctrl := newController(model, builtinRegistry(t), Config{MaxParallelTools: 1}).
		RegisterHook(hook)
	result, err := ctrl.Run(context.Background(), "15 + 25")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"before_run",
		"before_round 1",
		"before_model 1",
		"after_model 1",
		"state AWAITING_MODEL -> EXECUTING_TOOLS",
		"before_tool 0 calculate",
		"after_tool 0 calculate success",
		"state EXECUTING_TOOLS -> AWAITING_MODEL",
		"after_round 1 AWAITING_MODEL",
		"before_round 2",
		"before_model 2",
		"after_model 2",
		"state AWAITING_MODEL -> FINAL_ANSWER",
		"after_round 2 FINAL_ANSWER",
		"after_run final_answer",
	}, hook.Snapshot())

	require.Len(t, hook.Runs, 1)
	assert.Same(t, result, hook.Runs[0].Result)
	for _, sc := range hook.StateChanges {
		assert.Equal(t, result.RunID, sc.RunID)
	}
	require.Len(t, hook.ToolCalls, 1)
	assert.Equal(t, 1, hook.ToolCalls[0].Round)
}

func TestController_HooksOnFailure(t *testing.T) {
	model := tt.NewScriptedModel().AddResponse(&toolloop.Response{})
	hook := tt.NewRecordingHook()

	_, err := newController(model, builtinRegistry(t), Config{}).
		RegisterHook(hook).
		Run(context.Background(), "x")
	require.ErrorIs(t, err, toolloop.ErrEmptyResponse)

	assert.Equal(t, []string{
		"before_run",
		"before_round 1",
		"before_model 1",
		"after_model 1",
		"after_run failed",
	}, hook.Snapshot())
}

func TestController_ReusableForSequentialRuns(t *testing.T) {
	model := tt.NewScriptedModel().AddText("first").AddText("second")
	ctrl := newController(model, builtinRegistry(t), Config{})

	r1, err := ctrl.Run(context.Background(), "one")
	require.NoError(t, err)
	r2, err := ctrl.Run(context.Background(), "two")
	require.NoError(t, err)

	assert.Equal(t, "first", r1.Text)
	assert.Equal(t, "second", r2.Text)
	assert.NotEqual(t, r1.RunID, r2.RunID)
	assert.Len(t, r2.Conversation, 2, "runs do not share conversation state")
}

func TestConfig_Defaults(t *testing.T) {
	cfg := New(tt.NewScriptedModel(), nil, Config{}).Config()

	assert.Equal(t, DefaultMaxIterations, cfg.MaxIterations)
	assert.Equal(t, toolchain.DefaultMaxParallel, cfg.MaxParallelTools)
	assert.Zero(t, cfg.Temperature)
	assert.Zero(t, cfg.ModelTimeout)
}

type panickingHook struct{}

func (panickingHook) OnBeforeRun(context.Context, toolloop.BeforeRunEvent) {
	panic("hook failure")
}

func TestController_HookRegistryLogger(t *testing.T) {
	newLogger := func(buf *bytes.Buffer) *slog.Logger {
		return slog.New(slog.NewTextHandler(buf, nil))
	}

	tests := []struct {
		name         string
		shared       bool
		hooksFirst   bool
		toShared     bool
		toCtrlLogger bool
	}{
		{name: "own registry logs through controller", toCtrlLogger: true},
		{name: "shared registry keeps its logger", shared: true, toShared: true},
		{name: "shared registry set before logger", shared: true, hooksFirst: true, toShared: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var sharedBuf, ctrlBuf bytes.Buffer
			ctrl := newController(tt.NewScriptedModel(), nil, Config{})

			shared := hooks.NewRegistry().WithLogger(newLogger(&sharedBuf))
			if tc.shared && tc.hooksFirst {
				ctrl.WithHooks(shared)
			}
			ctrl.WithLogger(newLogger(&ctrlBuf))
			if tc.shared && !tc.hooksFirst {
				ctrl.WithHooks(shared)
			}
			ctrl.RegisterHook(panickingHook{})

			_, err := ctrl.Run(context.Background(), "hi")
			require.NoError(t, err)

			assert.Equal(t, tc.toShared, strings.Contains(sharedBuf.String(), "hook panicked"))
			assert.Equal(t, tc.toCtrlLogger, strings.Contains(ctrlBuf.String(), "hook panicked"))
		})
	}
}
