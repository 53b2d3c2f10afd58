package toolloop

import "context"

// -----------------------------------------------------------------------------
// Hook Interfaces
// -----------------------------------------------------------------------------
//
// Hooks observe a run at fixed points. To use hooks:
//
//  1. Implement the desired hook interface(s)
//  2. Register with hooks.Registry
//  3. Pass the registry to the loop controller
//
// Example:
//
//	type RoundLogger struct{ logger *slog.Logger }
//
//	func (h *RoundLogger) OnAfterRound(ctx context.Context, e toolloop.AfterRoundEvent) {
//	    h.logger.Info("round done", "round", e.Round, "state", e.State)
//	}
//
//	registry := hooks.NewRegistry().Register(&RoundLogger{logger: slog.Default()})
//	ctrl := loop.New(model, tools, loop.Config{}).WithHooks(registry)
//
// Hooks are observers: they cannot change a run's conversation or outcome. Hooks are called in
// registration order. A panicking hook is recovered and logged; it never aborts the run.
//
// Tool hooks are the exception to ordered delivery: tool requests of the same round run
// concurrently, so their Before/After events fire from worker goroutines. Implementations of
// [BeforeToolCallHook] and [AfterToolCallHook] must be safe for concurrent use.
// -----------------------------------------------------------------------------

// BeforeRunHook is called once when a run starts.
type BeforeRunHook interface {
	OnBeforeRun(ctx context.Context, event BeforeRunEvent)
}

// AfterRunHook is called once when a run ends, including on cancellation and failure.
type AfterRunHook interface {
	OnAfterRun(ctx context.Context, event AfterRunEvent)
}

// BeforeRoundHook is called before each model query.
type BeforeRoundHook interface {
	OnBeforeRound(ctx context.Context, event BeforeRoundEvent)
}

// AfterRoundHook is called after each round completes normally. It is not called for a round
// that ends in a fatal error or cancellation; [AfterRunHook] still is.
type AfterRoundHook interface {
	OnAfterRound(ctx context.Context, event AfterRoundEvent)
}

// BeforeModelCallHook is called right before the model is queried.
type BeforeModelCallHook interface {
	OnBeforeModelCall(ctx context.Context, event BeforeModelCallEvent)
}

// AfterModelCallHook is called after every model query, successful or not.
type AfterModelCallHook interface {
	OnAfterModelCall(ctx context.Context, event AfterModelCallEvent)
}

// BeforeToolCallHook is called before each tool request is executed.
// Called concurrently for requests of the same round.
type BeforeToolCallHook interface {
	OnBeforeToolCall(ctx context.Context, event BeforeToolCallEvent)
}

// AfterToolCallHook is called after each tool request produces a result.
// Called concurrently for requests of the same round.
type AfterToolCallHook interface {
	OnAfterToolCall(ctx context.Context, event AfterToolCallEvent)
}

// StateChangeHook is called on each state machine transition.
type StateChangeHook interface {
	OnStateChange(ctx context.Context, event StateChangeEvent)
}
