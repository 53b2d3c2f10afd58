package tt

import (
	"context"
	"fmt"
	"sync"

	"github.com/rickchristie/toolloop"
)

// -----------------------------------------------------------------------------
// RecordingHook - implements every hook interface
// -----------------------------------------------------------------------------

// RecordingHook records every hook call. Lines holds a short rendering of each event in
// arrival order; the typed slices hold the events themselves.
type RecordingHook struct {
	mu sync.Mutex

	Lines        []string
	Runs         []toolloop.AfterRunEvent
	Rounds       []toolloop.AfterRoundEvent
	ModelCalls   []toolloop.AfterModelCallEvent
	ToolCalls    []toolloop.AfterToolCallEvent
	StateChanges []toolloop.StateChangeEvent
}

// NewRecordingHook creates an empty recorder.
func NewRecordingHook() *RecordingHook {
	return &RecordingHook{}
}

func (h *RecordingHook) add(line string) {
	h.Lines = append(h.Lines, line)
}

func (h *RecordingHook) OnBeforeRun(_ context.Context, e toolloop.BeforeRunEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.add("before_run")
}

func (h *RecordingHook) OnAfterRun(_ context.Context, e toolloop.AfterRunEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.add(fmt.Sprintf("after_run %s", e.Result.Outcome))
	h.Runs = append(h.Runs, e)
}

func (h *RecordingHook) OnBeforeRound(_ context.Context, e toolloop.BeforeRoundEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.add(fmt.Sprintf("before_round %d", e.Round))
}

func (h *RecordingHook) OnAfterRound(_ context.Context, e toolloop.AfterRoundEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.add(fmt.Sprintf("after_round %d %s", e.Round, e.State))
	h.Rounds = append(h.Rounds, e)
}

func (h *RecordingHook) OnBeforeModelCall(_ context.Context, e toolloop.BeforeModelCallEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.add(fmt.Sprintf("before_model %d", e.Round))
}

func (h *RecordingHook) OnAfterModelCall(_ context.Context, e toolloop.AfterModelCallEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.add(fmt.Sprintf("after_model %d", e.Round))
	h.ModelCalls = append(h.ModelCalls, e)
}

func (h *RecordingHook) OnBeforeToolCall(_ context.Context, e toolloop.BeforeToolCallEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.add(fmt.Sprintf("before_tool %d %s", e.Index, e.Request.ToolName))
}

func (h *RecordingHook) OnAfterToolCall(_ context.Context, e toolloop.AfterToolCallEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.add(fmt.Sprintf("after_tool %d %s %s", e.Index, e.Request.ToolName, e.Result.Status))
	h.ToolCalls = append(h.ToolCalls, e)
}

func (h *RecordingHook) OnStateChange(_ context.Context, e toolloop.StateChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.add(fmt.Sprintf("state %s -> %s", e.From, e.To))
	h.StateChanges = append(h.StateChanges, e)
}

// Snapshot returns a copy of Lines.
func (h *RecordingHook) Snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.Lines...)
}

var (
	_ toolloop.BeforeRunHook       = (*RecordingHook)(nil)
	_ toolloop.AfterRunHook        = (*RecordingHook)(nil)
	_ toolloop.BeforeRoundHook     = (*RecordingHook)(nil)
	_ toolloop.AfterRoundHook      = (*RecordingHook)(nil)
	_ toolloop.BeforeModelCallHook = (*RecordingHook)(nil)
	_ toolloop.AfterModelCallHook  = (*RecordingHook)(nil)
	_ toolloop.BeforeToolCallHook  = (*RecordingHook)(nil)
	_ toolloop.AfterToolCallHook   = (*RecordingHook)(nil)
	_ toolloop.StateChangeHook     = (*RecordingHook)(nil)
)
