package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickchristie/toolloop"
)

// Registry stores hooks and fans events out to them.
//
// A hook can implement any combination of the toolloop hook interfaces and only receives the
// events for the interfaces it implements:
//
//	type RoundTimer struct{}
//
//	func (RoundTimer) OnAfterRound(ctx context.Context, e toolloop.AfterRoundEvent) {
//	    fmt.Printf("round %d took %v\n", e.Round, e.Trace.Duration)
//	}
//
//	registry := hooks.NewRegistry().Register(RoundTimer{})
//
// Hooks are called in registration order. A hook that panics is recovered and logged, and the
// remaining hooks still run. Fire methods are safe to call from multiple goroutines.
type Registry struct {
	mu     sync.RWMutex
	hooks  []any
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		hooks:  make([]any, 0),
		logger: slog.New(slog.DiscardHandler),
	}
}

// WithLogger sets the logger used to report recovered hook panics.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Register adds hooks to the registry.
func (r *Registry) Register(hooks ...any) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hooks...)
	return r
}

// Len returns the number of registered hooks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks)
}

func (r *Registry) snapshot() []any {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hooks
}

// call runs fn, recovering and logging a panic.
func (r *Registry) call(event string, hook any, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("hook panicked",
				"event", event,
				"hook", fmt.Sprintf("%T", hook),
				"panic", rec,
			)
		}
	}()
	fn()
}

// FireBeforeRun dispatches to every [toolloop.BeforeRunHook].
func (r *Registry) FireBeforeRun(ctx context.Context, event toolloop.BeforeRunEvent) {
	for _, h := range r.snapshot() {
		if hook, ok := h.(toolloop.BeforeRunHook); ok {
			r.call("before_run", h, func() { hook.OnBeforeRun(ctx, event) })
		}
	}
}

// FireAfterRun dispatches to every [toolloop.AfterRunHook].
func (r *Registry) FireAfterRun(ctx context.Context, event toolloop.AfterRunEvent) {
	for _, h := range r.snapshot() {
		if hook, ok := h.(toolloop.AfterRunHook); ok {
			r.call("after_run", h, func() { hook.OnAfterRun(ctx, event) })
		}
	}
}

// FireBeforeRound dispatches to every [toolloop.BeforeRoundHook].
func (r *Registry) FireBeforeRound(ctx context.Context, event toolloop.BeforeRoundEvent) {
	for _, h := range r.snapshot() {
		if hook, ok := h.(toolloop.BeforeRoundHook); ok {
			r.call("before_round", h, func() { hook.OnBeforeRound(ctx, event) })
		}
	}
}

// FireAfterRound dispatches to every [toolloop.AfterRoundHook].
func (r *Registry) FireAfterRound(ctx context.Context, event toolloop.AfterRoundEvent) {
	for _, h := range r.snapshot() {
		if hook, ok := h.(toolloop.AfterRoundHook); ok {
			r.call("after_round", h, func() { hook.OnAfterRound(ctx, event) })
		}
	}
}

// FireBeforeModelCall dispatches to every [toolloop.BeforeModelCallHook].
func (r *Registry) FireBeforeModelCall(ctx context.Context, event toolloop.BeforeModelCallEvent) {
	for _, h := range r.snapshot() {
		if hook, ok := h.(toolloop.BeforeModelCallHook); ok {
			r.call("before_model_call", h, func() { hook.OnBeforeModelCall(ctx, event) })
		}
	}
}

// FireAfterModelCall dispatches to every [toolloop.AfterModelCallHook].
func (r *Registry) FireAfterModelCall(ctx context.Context, event toolloop.AfterModelCallEvent) {
	for _, h := range r.snapshot() {
		if hook, ok := h.(toolloop.AfterModelCallHook); ok {
			r.call("after_model_call", h, func() { hook.OnAfterModelCall(ctx, event) })
		}
	}
}

// FireBeforeToolCall dispatches to every [toolloop.BeforeToolCallHook].
func (r *Registry) FireBeforeToolCall(ctx context.Context, event toolloop.BeforeToolCallEvent) {
	for _, h := range r.snapshot() {
		if hook, ok := h.(toolloop.BeforeToolCallHook); ok {
			r.call("before_tool_call", h, func() { hook.OnBeforeToolCall(ctx, event) })
		}
	}
}

// FireAfterToolCall dispatches to every [toolloop.AfterToolCallHook].
func (r *Registry) FireAfterToolCall(ctx context.Context, event toolloop.AfterToolCallEvent) {
	for _, h := range r.snapshot() {
		if hook, ok := h.(toolloop.AfterToolCallHook); ok {
			r.call("after_tool_call", h, func() { hook.OnAfterToolCall(ctx, event) })
		}
	}
}

// FireStateChange dispatches to every [toolloop.StateChangeHook].
func (r *Registry) FireStateChange(ctx context.Context, event toolloop.StateChangeEvent) {
	for _, h := range r.snapshot() {
		if hook, ok := h.(toolloop.StateChangeHook); ok {
			r.call("state_change", h, func() { hook.OnStateChange(ctx, event) })
		}
	}
}
