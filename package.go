// Package toolloop implements a tool-calling conversation loop: a language model is given a
// set of callable tools, requests invocations, observes their results, and iterates until it
// produces a final answer or exhausts an iteration budget.
//
// The root package holds the shared vocabulary: [Turn], [Conversation],
// [ToolInvocationRequest], [ToolResult], [ToolSpec], the [Model] boundary, sentinel errors,
// hook interfaces, and trace types. Behavior lives in subpackages:
//
//   - schema: parameter schema builders and compiled argument validation
//   - toolchain: tool registry, executor, and concurrent per-round dispatch
//   - loop: the loop controller and its four-state machine
//   - hooks: ordered fan-out of lifecycle events to observers
//   - models: langchaingo-backed [Model] implementations
//   - tools: built-in example tools
//   - config: YAML and environment configuration
//   - loggers: trace-printing hook
//
// # Quick Start
//
//	llm, err := models.NewGemini(ctx, apiKey, "gemini-2.5-flash")
//	if err != nil {
//	    return err
//	}
//
//	registry := toolchain.NewRegistry()
//	registry.MustRegister(toolloop.NewTool(
//	    "calculate",
//	    "Perform basic arithmetic.",
//	    schema.Object(map[string]*schema.Property{
//	        "operation": schema.String("The operation").Enum("add", "subtract", "multiply", "divide"),
//	        "a":         schema.Number("First operand"),
//	        "b":         schema.Number("Second operand"),
//	    }, "operation", "a", "b"),
//	    func(ctx context.Context, in CalcInput) (float64, error) { ... },
//	))
//
//	ctrl := loop.New(llm, registry, loop.Config{MaxIterations: 10})
//	result, err := ctrl.Run(ctx, "What is 15 plus 25?")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(result.Text)
//
// # Failure Model
//
// Tool faults never end a run. Invalid arguments, unknown tool names, tool errors, panics, and
// timeouts all become failure [ToolResult] values that the model sees on its next turn. A run
// ends only with a final answer, budget exhaustion ([OutcomeExhausted], not an error),
// cancellation ([ErrCancelled]), or a protocol fault ([ErrEmptyResponse], [ErrModelTimeout],
// or an error from the model backend).
package toolloop
