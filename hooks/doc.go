// Package hooks provides a registry that delivers loop lifecycle events to observers.
//
// # Hook Interfaces
//
// Run and round lifecycle:
//   - [toolloop.BeforeRunHook] - once, after the seed turn is appended
//   - [toolloop.AfterRunHook] - once, however the run ends
//   - [toolloop.BeforeRoundHook] - before each model query
//   - [toolloop.AfterRoundHook] - after each completed round
//   - [toolloop.StateChangeHook] - on every state machine transition
//
// Model calls:
//   - [toolloop.BeforeModelCallHook]
//   - [toolloop.AfterModelCallHook] - also on model errors and timeouts
//
// Tool calls, fired concurrently from dispatch workers:
//   - [toolloop.BeforeToolCallHook]
//   - [toolloop.AfterToolCallHook]
//
// # Creating a Hook
//
//	type FailureCounter struct{ failures atomic.Int64 }
//
//	func (h *FailureCounter) OnAfterToolCall(ctx context.Context, e toolloop.AfterToolCallEvent) {
//	    if e.Result.Failed() {
//	        h.failures.Add(1)
//	    }
//	}
//
//	// Compile-time check
//	var _ toolloop.AfterToolCallHook = (*FailureCounter)(nil)
//
// Hooks observe; they cannot alter the conversation, tool arguments, or outcome of a run.
package hooks
