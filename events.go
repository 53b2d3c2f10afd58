package toolloop

import "time"

// -----------------------------------------------------------------------------
// Run Events
// -----------------------------------------------------------------------------

// BeforeRunEvent is passed to [BeforeRunHook] once, after the seed turn is appended.
type BeforeRunEvent struct {
	RunID string

	// Input is the user request the run was started with.
	Input string

	// Tools are the tool names offered to the model, in registration order.
	Tools []string

	// MaxIterations is the resolved iteration budget.
	MaxIterations int
}

// AfterRunEvent is passed to [AfterRunHook] once, when the run ends for any reason.
type AfterRunEvent struct {
	RunID string

	// Result is the final result. Never nil.
	Result *RunResult
}

// -----------------------------------------------------------------------------
// Round Events
// -----------------------------------------------------------------------------

// BeforeRoundEvent is passed to [BeforeRoundHook] before each model query.
type BeforeRoundEvent struct {
	RunID string
	Round int
}

// AfterRoundEvent is passed to [AfterRoundHook] once the round's model turn, and any tool
// results, have been appended.
type AfterRoundEvent struct {
	RunID string
	Round int

	// State is the controller state after the round.
	State State

	// Trace is the round's trace data.
	Trace RoundTrace
}

// StateChangeEvent is passed to [StateChangeHook] on every state transition.
type StateChangeEvent struct {
	RunID string
	Round int
	From  State
	To    State
}

// -----------------------------------------------------------------------------
// Model Events
// -----------------------------------------------------------------------------

// BeforeModelCallEvent is passed to [BeforeModelCallHook] before each model query.
type BeforeModelCallEvent struct {
	RunID string
	Round int

	// Conversation is a snapshot of the turns that will be sent.
	Conversation []Turn
}

// AfterModelCallEvent is passed to [AfterModelCallHook] after each model query,
// whether it succeeded or not.
type AfterModelCallEvent struct {
	RunID    string
	Round    int
	Response *Response
	Duration time.Duration
	Err      error
}

// -----------------------------------------------------------------------------
// Tool Events
// -----------------------------------------------------------------------------

// BeforeToolCallEvent is passed to [BeforeToolCallHook] when a tool request is picked up by
// a worker. Tool events of the same round fire concurrently and in no particular order.
type BeforeToolCallEvent struct {
	RunID string
	Round int

	// Index is the position of the request within its model turn.
	Index   int
	Request ToolInvocationRequest
}

// AfterToolCallEvent is passed to [AfterToolCallHook] when a tool request has a result.
type AfterToolCallEvent struct {
	RunID   string
	Round   int
	Index   int
	Request ToolInvocationRequest
	Result  ToolResult
}
