package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rickchristie/toolloop"
	"github.com/rickchristie/toolloop/hooks"
	"github.com/rickchristie/toolloop/toolchain"
)

// DefaultMaxIterations is the model query budget of a run when Config.MaxIterations is unset.
const DefaultMaxIterations = 10

// Config holds the settings of a Controller. The zero value is usable: every unset field falls
// back to its default.
type Config struct {
	// Model identifies the backend model in logs. It does not select the model.
	Model string

	// MaxIterations caps the number of model queries in a run. Default: 10.
	MaxIterations int

	// Temperature is passed to every model query. Default: 0.0.
	Temperature float64

	// ModelTimeout bounds each model query. Zero disables the bound.
	ModelTimeout time.Duration

	// ToolTimeout bounds each tool call. Zero disables the bound.
	ToolTimeout time.Duration

	// MaxParallelTools caps how many tool requests of one round run at once. Default: 4.
	MaxParallelTools int

	// SystemPrompt is prepended to the user request in the seed turn.
	SystemPrompt string
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.MaxParallelTools <= 0 {
		c.MaxParallelTools = toolchain.DefaultMaxParallel
	}
	return c
}

// Controller drives the tool-calling loop.
//
// A run moves through four states:
//
//	AWAITING_MODEL   query the model with the conversation and tool schemas
//	EXECUTING_TOOLS  run every requested tool, append one tool_result turn
//	FINAL_ANSWER     the model answered with text only
//	EXHAUSTED        MaxIterations model queries were made without an answer
//
// When a response carries both text and tool requests, the tool requests win and the text is
// kept in the conversation. A response with neither ends the run with
// [toolloop.ErrEmptyResponse].
//
// The Controller holds no per-run state, so it can be reused for sequential runs.
type Controller struct {
	model    toolloop.Model
	registry *toolchain.Registry
	executor *toolchain.Executor
	config   Config
	hooks    *hooks.Registry
	ownHooks bool
	logger   *slog.Logger
	newID    func() string
}

// New creates a Controller. A nil registry is replaced with an empty one.
func New(model toolloop.Model, registry *toolchain.Registry, config Config) *Controller {
	if registry == nil {
		registry = toolchain.NewRegistry()
	}
	config = config.withDefaults()
	logger := slog.New(slog.DiscardHandler)

	return &Controller{
		model:    model,
		registry: registry,
		executor: toolchain.NewExecutor().
			WithTimeout(config.ToolTimeout).
			WithMaxParallel(config.MaxParallelTools).
			WithLogger(logger),
		config:   config,
		hooks:    hooks.NewRegistry(),
		ownHooks: true,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// WithHooks replaces the hook registry. Use it to share hooks between controllers.
// A shared registry keeps its own logger; a nil one is replaced with a fresh registry that
// logs through the controller's logger.
func (c *Controller) WithHooks(h *hooks.Registry) *Controller {
	c.ownHooks = h == nil
	if c.ownHooks {
		h = hooks.NewRegistry().WithLogger(c.logger)
	}
	c.hooks = h
	return c
}

// RegisterHook adds a hook to the controller's hook registry.
func (c *Controller) RegisterHook(hook any) *Controller {
	c.hooks.Register(hook)
	return c
}

// WithLogger sets the logger for the controller and its executor. The hook registry uses it
// too, unless it was supplied through WithHooks.
func (c *Controller) WithLogger(logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c.logger = logger
	c.executor.WithLogger(logger)
	if c.ownHooks {
		c.hooks.WithLogger(logger)
	}
	return c
}

// Config returns the resolved configuration.
func (c *Controller) Config() Config {
	return c.config
}

// Registry returns the tool registry.
func (c *Controller) Registry() *toolchain.Registry {
	return c.registry
}

// Run executes one run for the given user request.
//
// It returns the result together with result.Err. Exhaustion is not an error: check
// result.Outcome. On cancellation the error wraps both [toolloop.ErrCancelled] and the
// context's error. Tool faults never end a run; they are fed back to the model as failure
// results.
func (c *Controller) Run(ctx context.Context, input string) (*toolloop.RunResult, error) {
	r := &run{
		c:     c,
		id:    c.newID(),
		conv:  toolloop.NewConversation(),
		state: toolloop.StateAwaitingModel,
		start: time.Now(),
	}
	r.logger = c.logger.With("run_id", r.id)
	r.trace = &toolloop.RunTrace{RunID: r.id, StartTime: r.start}

	c.registry.Seal()
	r.conv.Append(toolloop.UserTurn(c.seed(input)))

	r.logger.Info("run started",
		"model", c.config.Model,
		"max_iterations", c.config.MaxIterations,
		"tools", c.registry.Len(),
	)
	c.hooks.FireBeforeRun(ctx, toolloop.BeforeRunEvent{
		RunID:         r.id,
		Input:         input,
		Tools:         c.registry.Names(),
		MaxIterations: c.config.MaxIterations,
	})

	result := r.loop(ctx)

	c.hooks.FireAfterRun(ctx, toolloop.AfterRunEvent{RunID: r.id, Result: result})
	return result, result.Err
}

// seed composes the first user turn.
func (c *Controller) seed(input string) string {
	if c.config.SystemPrompt == "" {
		return input
	}
	return c.config.SystemPrompt + "\n\n" + input
}

// -----------------------------------------------------------------------------
// Run
// -----------------------------------------------------------------------------

type run struct {
	c      *Controller
	id     string
	conv   *toolloop.Conversation
	state  toolloop.State
	round  int
	start  time.Time
	trace  *toolloop.RunTrace
	logger *slog.Logger
}

func (r *run) loop(ctx context.Context) *toolloop.RunResult {
	for {
		if err := ctx.Err(); err != nil {
			return r.cancelled(err)
		}
		if r.round >= r.c.config.MaxIterations {
			r.transition(ctx, toolloop.StateExhausted)
			r.logger.Warn("iteration budget exhausted", "rounds", r.round)
			return r.finish(toolloop.OutcomeExhausted, "", nil)
		}

		r.round++
		rt := toolloop.RoundTrace{Round: r.round, StartTime: time.Now()}
		r.c.hooks.FireBeforeRound(ctx, toolloop.BeforeRoundEvent{RunID: r.id, Round: r.round})

		resp, err := r.queryModel(ctx, &rt)
		if err != nil {
			r.abortRound(rt)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return r.cancelled(ctxErr)
			}
			return r.fail(err)
		}
		if resp.IsEmpty() {
			r.abortRound(rt)
			return r.fail(fmt.Errorf("%w (round %d)", toolloop.ErrEmptyResponse, r.round))
		}

		calls := r.assignCallIDs(resp.ToolCalls)
		r.conv.Append(toolloop.ModelTurn(resp.Text, calls))

		if len(calls) == 0 {
			r.transition(ctx, toolloop.StateFinalAnswer)
			r.endRound(ctx, rt)
			return r.finish(toolloop.OutcomeFinalAnswer, resp.Text, nil)
		}

		r.transition(ctx, toolloop.StateExecutingTools)
		toolStart := time.Now()
		results := r.c.executor.Dispatch(ctx, r.c.registry, calls, toolObserver{run: r, round: r.round})
		rt.ToolDuration = time.Since(toolStart)
		rt.ToolCalls = len(results)
		for _, res := range results {
			if res.Failed() {
				rt.ToolFailures++
			}
		}
		r.conv.Append(toolloop.ToolResultTurn(results))

		r.transition(ctx, toolloop.StateAwaitingModel)
		r.endRound(ctx, rt)
	}
}

type modelReply struct {
	resp *toolloop.Response
	err  error
}

// queryModel sends the conversation to the model under the model timeout.
// The call runs in its own goroutine and is abandoned once modelCtx is done.
func (r *run) queryModel(ctx context.Context, rt *toolloop.RoundTrace) (*toolloop.Response, error) {
	cfg := r.c.config
	snapshot := r.conv.Snapshot()

	modelCtx, cancel := ctx, context.CancelFunc(func() {})
	if cfg.ModelTimeout > 0 {
		modelCtx, cancel = context.WithTimeout(ctx, cfg.ModelTimeout)
	}
	defer cancel()

	r.c.hooks.FireBeforeModelCall(ctx, toolloop.BeforeModelCallEvent{
		RunID:        r.id,
		Round:        r.round,
		Conversation: snapshot,
	})

	start := time.Now()
	done := make(chan modelReply, 1)
	go func() {
		resp, err := r.c.model.Generate(modelCtx, snapshot, r.c.registry.Specs(), cfg.Temperature)
		done <- modelReply{resp: resp, err: err}
	}()

	var reply modelReply
	select {
	case reply = <-done:
	case <-modelCtx.Done():
		reply = modelReply{err: modelCtx.Err()}
	}
	rt.ModelDuration = time.Since(start)

	if reply.err != nil && ctx.Err() == nil && errors.Is(modelCtx.Err(), context.DeadlineExceeded) {
		reply.err = fmt.Errorf("%w after %v (round %d)", toolloop.ErrModelTimeout, cfg.ModelTimeout, r.round)
	} else if reply.err != nil && ctx.Err() == nil {
		reply.err = fmt.Errorf("model call (round %d): %w", r.round, reply.err)
	}

	if reply.err == nil && reply.resp != nil && reply.resp.Info != nil {
		rt.InputTokens = reply.resp.Info.InputTokens
		rt.OutputTokens = reply.resp.Info.OutputTokens
	}

	r.c.hooks.FireAfterModelCall(ctx, toolloop.AfterModelCallEvent{
		RunID:    r.id,
		Round:    r.round,
		Response: reply.resp,
		Duration: rt.ModelDuration,
		Err:      reply.err,
	})
	r.logger.Debug("model responded",
		"round", r.round,
		"duration", rt.ModelDuration,
		"tool_calls", toolCallCount(reply.resp),
		"error", reply.err,
	)

	return reply.resp, reply.err
}

func toolCallCount(resp *toolloop.Response) int {
	if resp == nil {
		return 0
	}
	return len(resp.ToolCalls)
}

// assignCallIDs returns a copy of calls where every request has an ID.
func (r *run) assignCallIDs(calls []toolloop.ToolInvocationRequest) []toolloop.ToolInvocationRequest {
	if len(calls) == 0 {
		return nil
	}
	out := make([]toolloop.ToolInvocationRequest, len(calls))
	for i, call := range calls {
		out[i] = call.Clone()
		if out[i].ID == "" {
			out[i].ID = "call_" + r.c.newID()
		}
	}
	return out
}

func (r *run) transition(ctx context.Context, to toolloop.State) {
	from := r.state
	r.state = to
	r.logger.Debug("state changed", "round", r.round, "from", from, "to", to)
	r.c.hooks.FireStateChange(ctx, toolloop.StateChangeEvent{
		RunID: r.id,
		Round: r.round,
		From:  from,
		To:    to,
	})
}

func (r *run) endRound(ctx context.Context, rt toolloop.RoundTrace) {
	rt.Duration = time.Since(rt.StartTime)
	rt.State = r.state
	r.trace.AddRound(rt)
	r.c.hooks.FireAfterRound(ctx, toolloop.AfterRoundEvent{
		RunID: r.id,
		Round: r.round,
		State: r.state,
		Trace: rt,
	})
}

// abortRound records a round that ended in a fatal error or cancellation. No AfterRound
// event is fired for it.
func (r *run) abortRound(rt toolloop.RoundTrace) {
	rt.Duration = time.Since(rt.StartTime)
	rt.State = r.state
	r.trace.AddRound(rt)
}

func (r *run) cancelled(cause error) *toolloop.RunResult {
	r.logger.Info("run cancelled", "round", r.round, "cause", cause)
	return r.finish(toolloop.OutcomeCancelled, "", fmt.Errorf("%w: %w", toolloop.ErrCancelled, cause))
}

func (r *run) fail(err error) *toolloop.RunResult {
	r.logger.Error("run failed", "round", r.round, "error", err)
	return r.finish(toolloop.OutcomeFailed, "", err)
}

func (r *run) finish(outcome toolloop.Outcome, text string, err error) *toolloop.RunResult {
	end := time.Now()
	r.trace.EndTime = end
	r.trace.Duration = end.Sub(r.start)
	r.trace.Outcome = outcome

	r.logger.Info("run finished",
		"outcome", outcome,
		"rounds", r.round,
		"tool_calls", r.trace.Stats.ToolCalls,
		"duration", r.trace.Duration,
	)

	return &toolloop.RunResult{
		RunID:        r.id,
		Outcome:      outcome,
		State:        r.state,
		Text:         text,
		Rounds:       r.round,
		Conversation: r.conv.Snapshot(),
		Trace:        r.trace,
		Err:          err,
	}
}

// -----------------------------------------------------------------------------
// Tool observer
// -----------------------------------------------------------------------------

// toolObserver forwards dispatch callbacks to the tool hooks, tagged with the run and round.
type toolObserver struct {
	run   *run
	round int
}

func (o toolObserver) BeforeToolCall(ctx context.Context, index int, req toolloop.ToolInvocationRequest) {
	o.run.c.hooks.FireBeforeToolCall(ctx, toolloop.BeforeToolCallEvent{
		RunID:   o.run.id,
		Round:   o.round,
		Index:   index,
		Request: req,
	})
}

func (o toolObserver) AfterToolCall(
	ctx context.Context,
	index int,
	req toolloop.ToolInvocationRequest,
	result toolloop.ToolResult,
) {
	o.run.c.hooks.FireAfterToolCall(ctx, toolloop.AfterToolCallEvent{
		RunID:   o.run.id,
		Round:   o.round,
		Index:   index,
		Request: req,
		Result:  result,
	})
}

var _ toolchain.Observer = toolObserver{}
