package toolloop

// State is a state of the loop controller's state machine.
//
//	AWAITING_MODEL --tool calls--> EXECUTING_TOOLS --results appended--> AWAITING_MODEL
//	AWAITING_MODEL --text only--> FINAL_ANSWER
//	AWAITING_MODEL --round > max--> EXHAUSTED
//
// Cancellation and fatal errors end a run without entering a new state; the run's [Outcome]
// records why it stopped.
type State string

const (
	StateAwaitingModel  State = "AWAITING_MODEL"
	StateExecutingTools State = "EXECUTING_TOOLS"
	StateFinalAnswer    State = "FINAL_ANSWER"
	StateExhausted      State = "EXHAUSTED"
)

// Terminal reports whether no transition leaves the state.
func (s State) Terminal() bool {
	return s == StateFinalAnswer || s == StateExhausted
}

// Outcome describes how a run ended.
type Outcome string

const (
	// OutcomeFinalAnswer means the model returned text without tool calls.
	OutcomeFinalAnswer Outcome = "final_answer"

	// OutcomeExhausted means the iteration budget ran out. It is a reported outcome,
	// not an error: the caller decides whether to retry with a larger budget.
	OutcomeExhausted Outcome = "exhausted"

	// OutcomeCancelled means the caller's context was cancelled.
	OutcomeCancelled Outcome = "cancelled"

	// OutcomeFailed means a protocol or infrastructure fault ended the run
	// (empty response, model timeout, model error).
	OutcomeFailed Outcome = "failed"
)
