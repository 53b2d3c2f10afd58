package toolchain

import (
	"context"
	"errors"
	"sync"

	"github.com/rickchristie/toolloop"
)

// Observer is notified around each request of a dispatched round. Calls arrive from worker
// goroutines, so implementations must be safe for concurrent use.
type Observer interface {
	BeforeToolCall(ctx context.Context, index int, req toolloop.ToolInvocationRequest)
	AfterToolCall(
		ctx context.Context,
		index int,
		req toolloop.ToolInvocationRequest,
		result toolloop.ToolResult,
	)
}

// Dispatch runs one round of requests on a bounded worker pool and returns exactly one result
// per request. Result i answers request i, whatever order the calls finish in.
//
// Requests naming an unregistered tool get a "unknown tool" failure. If ctx is cancelled,
// requests that have not started yet get a "cancelled" failure without running; requests
// already running finish. obs may be nil.
func (e *Executor) Dispatch(
	ctx context.Context,
	registry *Registry,
	requests []toolloop.ToolInvocationRequest,
	obs Observer,
) []toolloop.ToolResult {
	results := make([]toolloop.ToolResult, len(requests))
	if len(requests) == 0 {
		return results
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for range min(e.maxParallel, len(requests)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = e.dispatchOne(ctx, registry, i, requests[i], obs)
			}
		}()
	}
	for i := range requests {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

func (e *Executor) dispatchOne(
	ctx context.Context,
	registry *Registry,
	index int,
	req toolloop.ToolInvocationRequest,
	obs Observer,
) toolloop.ToolResult {
	if obs != nil {
		obs.BeforeToolCall(ctx, index, req)
	}

	var res toolloop.ToolResult
	if ctx.Err() != nil {
		res = toolloop.Failure(req, toolloop.FailureCancelled)
	} else if tool, err := registry.Get(req.ToolName); errors.Is(err, toolloop.ErrUnknownTool) {
		e.logger.Warn("unknown tool requested", "tool", req.ToolName, "call_id", req.ID)
		res = toolloop.Failure(req, toolloop.FailureUnknownTool)
	} else {
		res = e.Execute(ctx, tool, req)
	}

	if obs != nil {
		obs.AfterToolCall(ctx, index, req, res)
	}
	return res
}
