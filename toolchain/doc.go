// Package toolchain owns everything between a model's tool request and the result fed back to
// it.
//
// # Registry
//
// [Registry] maps unique names to tools. Each tool's parameter schema is compiled once, at
// registration, so a bad schema is reported to the caller who wrote it rather than to the model
// mid-run. A run seals the registry; registering afterwards fails with
// [toolloop.ErrRegistrySealed].
//
// # Executor
//
// [Executor.Execute] validates arguments, invokes the tool, and converts every outcome into a
// [toolloop.ToolResult]:
//
//	request has undecodable arguments  -> failure("invalid arguments: ...")
//	arguments fail schema validation   -> failure("invalid arguments: ...")
//	tool returns an error              -> failure(err.Error())
//	tool panics                        -> failure("panic: ...")
//	tool exceeds the executor timeout  -> failure("timeout")
//	result cannot be encoded as JSON   -> failure("result is not JSON-encodable: ...")
//	otherwise                          -> success(value)
//
// # Dispatch
//
// [Executor.Dispatch] runs all requests of one round concurrently, at most MaxParallel at a
// time, and returns results in request order:
//
//	exec := toolchain.NewExecutor().WithMaxParallel(4).WithTimeout(30 * time.Second)
//	results := exec.Dispatch(ctx, registry, response.ToolCalls, nil)
package toolchain
