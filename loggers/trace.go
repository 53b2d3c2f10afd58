// Package loggers provides hooks that print a readable, round-by-round trace of a run.
package loggers

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rickchristie/toolloop"
	"gopkg.in/yaml.v3"
)

const (
	heavyRule = "================================================================================"
	lightRule = "--------------------------------------------------------------------------------"
)

// TraceHook prints what happens during a run: the request, each model response, every tool
// call with its arguments and result, and the final answer. Arguments and results are written
// as YAML. Nothing is truncated.
//
// Tool hooks fire concurrently, so tool records are collected and written in request order when
// the round ends.
type TraceHook struct {
	mu      sync.Mutex
	out     io.Writer
	now     func() time.Time
	timings bool
	pending map[int]toolloop.AfterToolCallEvent
}

// NewTraceHook creates a TraceHook that writes to stdout.
func NewTraceHook() *TraceHook {
	return NewTraceHookWithWriter(os.Stdout)
}

// NewTraceHookWithWriter creates a TraceHook that writes to w.
func NewTraceHookWithWriter(w io.Writer) *TraceHook {
	return &TraceHook{
		out:     w,
		now:     time.Now,
		timings: true,
		pending: make(map[int]toolloop.AfterToolCallEvent),
	}
}

// WithTimings toggles timestamps and durations in the output. Returns the hook for chaining.
func (h *TraceHook) WithTimings(enabled bool) *TraceHook {
	h.timings = enabled
	return h
}

func (h *TraceHook) logEvent(name string) {
	if h.timings {
		fmt.Fprintf(h.out, "\n>>> [%s]: %s\n", name, h.now().Format("2006-01-02 15:04:05.000"))
		return
	}
	fmt.Fprintf(h.out, "\n>>> [%s]\n", name)
}

func (h *TraceHook) log(format string, args ...any) {
	fmt.Fprintf(h.out, format+"\n", args...)
}

func (h *TraceHook) logBlock(indent, text string) {
	for _, line := range strings.Split(text, "\n") {
		h.log("%s%s", indent, line)
	}
}

func (h *TraceHook) logYAML(v any) {
	data, err := yaml.Marshal(v)
	if err != nil {
		h.log("(failed to marshal: %v)", err)
		return
	}
	fmt.Fprint(h.out, string(data))
}

func (h *TraceHook) duration(d time.Duration) string {
	if !h.timings {
		return ""
	}
	return fmt.Sprintf(" (duration: %s)", d)
}

// OnBeforeRun writes the run header and the user request.
func (h *TraceHook) OnBeforeRun(_ context.Context, event toolloop.BeforeRunEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.logEvent("BeforeRun")
	h.log(heavyRule)
	h.log("RUN STARTED")
	h.log(heavyRule)
	h.log("Run: %s", event.RunID)
	h.log("Tools: %s", strings.Join(event.Tools, ", "))
	h.log("Max iterations: %d", event.MaxIterations)
	h.log("")
	h.log("Request:")
	h.logBlock("  ", event.Input)
}

// OnBeforeRound writes the round header.
func (h *TraceHook) OnBeforeRound(_ context.Context, event toolloop.BeforeRoundEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.logEvent(fmt.Sprintf("BeforeRound %d", event.Round))
	h.log(lightRule)
	h.log("ROUND %d", event.Round)
	h.log(lightRule)
}

// OnAfterModelCall writes the model response or error.
func (h *TraceHook) OnAfterModelCall(_ context.Context, event toolloop.AfterModelCallEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.logEvent("AfterModelCall" + h.duration(event.Duration))
	if event.Err != nil {
		h.log("Error: %v", event.Err)
		return
	}
	if event.Response.IsEmpty() {
		h.log("(empty response)")
		return
	}

	resp := event.Response
	if resp.Text != "" {
		h.log("Text:")
		h.logBlock("  ", resp.Text)
	}
	if len(resp.ToolCalls) > 0 {
		names := make([]string, len(resp.ToolCalls))
		for i, call := range resp.ToolCalls {
			names[i] = call.ToolName
		}
		h.log("Tool calls: %s", strings.Join(names, ", "))
	}
	if info := resp.Info; info != nil && info.TotalTokens > 0 {
		h.log("Tokens: input=%d, output=%d, total=%d",
			info.InputTokens, info.OutputTokens, info.TotalTokens)
	}
}

// OnAfterToolCall records the tool result until the round ends.
func (h *TraceHook) OnAfterToolCall(_ context.Context, event toolloop.AfterToolCallEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending[event.Index] = event
}

// OnAfterRound writes the round's tool calls in request order.
func (h *TraceHook) OnAfterRound(_ context.Context, event toolloop.AfterRoundEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.logEvent(fmt.Sprintf("AfterRound %d", event.Round) + h.duration(event.Trace.Duration))
	h.log("State: %s", event.State)
	h.flushTools()
}

// OnAfterRun writes the outcome, the final answer, and the run totals.
func (h *TraceHook) OnAfterRun(_ context.Context, event toolloop.AfterRunEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.flushTools()

	result := event.Result
	h.logEvent("AfterRun")
	h.log(heavyRule)
	h.log("RUN COMPLETED")
	h.log(heavyRule)
	h.log("Outcome: %s", result.Outcome)
	h.log("Rounds: %d", result.Rounds)
	if result.Err != nil {
		h.log("Error: %v", result.Err)
	}
	if result.Outcome == toolloop.OutcomeFinalAnswer {
		h.log("")
		h.log("Final answer:")
		h.logBlock("  ", result.Text)
	}

	if result.Trace != nil {
		h.log("")
		h.log("Stats:")
		stats := result.Trace.Stats
		h.logYAML(map[string]int{
			"model_calls":   stats.ModelCalls,
			"tool_calls":    stats.ToolCalls,
			"tool_failures": stats.ToolFailures,
			"input_tokens":  stats.InputTokens,
			"output_tokens": stats.OutputTokens,
		})
	}
}

// toolRecord is the YAML shape of one tool call.
type toolRecord struct {
	Tool   string         `yaml:"tool"`
	ID     string         `yaml:"id"`
	Args   map[string]any `yaml:"args"`
	Status string         `yaml:"status"`
	Value  any            `yaml:"value,omitempty"`
	Error  string         `yaml:"error,omitempty"`
}

// flushTools writes and clears the collected tool records. Callers hold h.mu.
func (h *TraceHook) flushTools() {
	if len(h.pending) == 0 {
		return
	}

	indexes := make([]int, 0, len(h.pending))
	for i := range h.pending {
		indexes = append(indexes, i)
	}
	slices.Sort(indexes)

	records := make([]toolRecord, 0, len(indexes))
	for _, i := range indexes {
		e := h.pending[i]
		rec := toolRecord{
			Tool:   e.Request.ToolName,
			ID:     e.Request.ID,
			Args:   e.Request.Arguments,
			Status: string(e.Result.Status),
		}
		if e.Result.Failed() {
			rec.Error = e.Result.Error
		} else {
			rec.Value = e.Result.Value
		}
		records = append(records, rec)
	}
	clear(h.pending)

	h.log("Tool results:")
	h.logYAML(records)
}

// Compile-time checks that TraceHook implements the hook interfaces it serves.
var (
	_ toolloop.BeforeRunHook      = (*TraceHook)(nil)
	_ toolloop.AfterRunHook       = (*TraceHook)(nil)
	_ toolloop.BeforeRoundHook    = (*TraceHook)(nil)
	_ toolloop.AfterRoundHook     = (*TraceHook)(nil)
	_ toolloop.AfterModelCallHook = (*TraceHook)(nil)
	_ toolloop.AfterToolCallHook  = (*TraceHook)(nil)
)
