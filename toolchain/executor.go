package toolchain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickchristie/toolloop"
	"github.com/rickchristie/toolloop/config"
)

// DefaultMaxParallel is the number of tool requests a round runs at once when not configured.
const DefaultMaxParallel = 4

// Executor runs tool requests and converts every outcome into a [toolloop.ToolResult].
//
// Execute never returns an error and never panics: argument problems, tool errors, panics,
// unencodable results, and timeouts all become failure results.
type Executor struct {
	timeout     time.Duration
	maxParallel int
	logger      *slog.Logger
}

// NewExecutor creates an executor with no tool timeout and DefaultMaxParallel workers.
func NewExecutor() *Executor {
	return &Executor{
		maxParallel: DefaultMaxParallel,
		logger:      slog.New(slog.DiscardHandler),
	}
}

// WithTimeout sets the per-call tool timeout. Zero disables it.
func (e *Executor) WithTimeout(d time.Duration) *Executor {
	e.timeout = d
	return e
}

// WithMaxParallel sets how many requests of one round may run at once.
// Values below 1 are treated as 1.
func (e *Executor) WithMaxParallel(n int) *Executor {
	e.maxParallel = max(n, 1)
	return e
}

// WithLogger sets the logger. Nil restores the discarding default.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e.logger = logger
	return e
}

// Timeout returns the per-call tool timeout.
func (e *Executor) Timeout() time.Duration { return e.timeout }

// MaxParallel returns the worker pool size.
func (e *Executor) MaxParallel() int { return e.maxParallel }

type callOutcome struct {
	value    any
	err      error
	panicked bool
}

// Execute validates req against the tool's schema and invokes it.
//
// The tool runs under a context detached from ctx's cancellation, so an in-flight call is
// allowed to finish when the run is cancelled. Only the executor's own timeout bounds it.
func (e *Executor) Execute(
	ctx context.Context,
	tool *Tool,
	req toolloop.ToolInvocationRequest,
) toolloop.ToolResult {
	logger := e.logger.With("tool", req.ToolName, "call_id", req.ID)

	if req.DecodeError != "" {
		res := toolloop.Failure(req, "invalid arguments: "+req.DecodeError)
		logger.Warn("tool arguments not decodable", "error", req.DecodeError)
		return res
	}
	if err := tool.schema.Validate(req.Arguments); err != nil {
		logger.Warn("tool arguments rejected", "error", err)
		return toolloop.Failure(req, err.Error())
	}

	callCtx := context.WithoutCancel(ctx)
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, e.timeout)
		defer cancel()
	}

	logger.Debug("tool invoked")
	logger.Log(ctx, config.LevelTrace, "tool arguments", "args", req.Arguments)
	start := time.Now()

	done := make(chan callOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callOutcome{err: fmt.Errorf("panic: %v", r), panicked: true}
			}
		}()
		v, err := tool.spec.Func(callCtx, toolloop.CloneArguments(req.Arguments))
		done <- callOutcome{value: v, err: err}
	}()

	var res toolloop.ToolResult
	select {
	case out := <-done:
		res = e.convert(callCtx, req, out)
	case <-callCtx.Done():
		res = toolloop.Failure(req, toolloop.FailureTimeout)
	}
	res.Duration = time.Since(start)

	if res.Failed() {
		logger.Warn("tool failed", "error", res.Error, "duration", res.Duration)
	} else {
		logger.Debug("tool succeeded", "duration", res.Duration)
		logger.Log(ctx, config.LevelTrace, "tool result", "value", res.Value)
	}
	return res
}

func (e *Executor) convert(
	callCtx context.Context,
	req toolloop.ToolInvocationRequest,
	out callOutcome,
) toolloop.ToolResult {
	switch {
	case out.panicked:
		return toolloop.Failure(req, out.err.Error())
	case out.err != nil:
		// A tool that surfaces its own deadline error timed out all the same.
		if errors.Is(out.err, context.DeadlineExceeded) && callCtx.Err() != nil {
			return toolloop.Failure(req, toolloop.FailureTimeout)
		}
		return toolloop.Failure(req, out.err.Error())
	}

	if _, err := json.Marshal(out.value); err != nil {
		return toolloop.Failure(req, fmt.Sprintf("result is not JSON-encodable: %v", err))
	}
	return toolloop.Success(req, out.value)
}
