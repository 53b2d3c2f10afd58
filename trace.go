package toolloop

import "time"

// -----------------------------------------------------------------------------
// Run Result
// -----------------------------------------------------------------------------

// RunResult is the outcome of one run of the loop controller.
type RunResult struct {
	// RunID uniquely identifies the run in logs and hook events.
	RunID string

	// Outcome describes how the run ended.
	Outcome Outcome

	// State is the last state the controller was in.
	State State

	// Text is the final answer. Only set when Outcome is OutcomeFinalAnswer.
	Text string

	// Rounds is the number of model queries issued.
	Rounds int

	// Conversation is a snapshot of every turn of the run.
	Conversation []Turn

	// Trace contains timing and counting data for the run.
	Trace *RunTrace

	// Err is set when Outcome is OutcomeCancelled or OutcomeFailed.
	Err error
}

// -----------------------------------------------------------------------------
// Run Trace
// -----------------------------------------------------------------------------

// RunTrace stores timing and count data for a run.
type RunTrace struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Outcome   Outcome
	Rounds    []RoundTrace
	Stats     RunStats
}

// RoundTrace stores trace data for a single round.
type RoundTrace struct {
	// Round is the round number (1-indexed).
	Round int

	StartTime time.Time
	Duration  time.Duration

	// ModelDuration is how long the model call took.
	ModelDuration time.Duration

	// ToolDuration is the wall time spent dispatching this round's tool calls.
	ToolDuration time.Duration

	// ToolCalls is the number of requests the model issued this round.
	ToolCalls int

	// ToolFailures is how many of those requests produced a failure result.
	ToolFailures int

	InputTokens  int
	OutputTokens int

	// State is the state the controller was in when the round ended.
	State State
}

// RunStats aggregates counts across all rounds of a run.
type RunStats struct {
	ModelCalls   int
	ToolCalls    int
	ToolFailures int
	InputTokens  int
	OutputTokens int
}

// AddRound folds a finished round into the trace.
func (t *RunTrace) AddRound(r RoundTrace) {
	t.Rounds = append(t.Rounds, r)
	t.Stats.ModelCalls++
	t.Stats.ToolCalls += r.ToolCalls
	t.Stats.ToolFailures += r.ToolFailures
	t.Stats.InputTokens += r.InputTokens
	t.Stats.OutputTokens += r.OutputTokens
}
