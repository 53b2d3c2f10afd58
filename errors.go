package toolloop

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateTool is returned when registering a tool whose name is already taken.
	ErrDuplicateTool = errors.New("toolloop: duplicate tool")

	// ErrInvalidTool is returned when registering a tool with an empty name, no function,
	// or a parameter schema that does not compile.
	ErrInvalidTool = errors.New("toolloop: invalid tool")

	// ErrRegistrySealed is returned when registering a tool after a run has started.
	ErrRegistrySealed = errors.New("toolloop: registry is sealed")

	// ErrEmptyResponse is returned when the model returns neither text nor tool calls.
	// It is fatal for the run and is not retried.
	ErrEmptyResponse = errors.New("toolloop: empty model response")

	// ErrModelTimeout is returned when a model call exceeds the configured model timeout.
	// It is fatal for the run and is not retried.
	ErrModelTimeout = errors.New("toolloop: model call timed out")

	// ErrCancelled is returned when the caller's context is cancelled before the run
	// reaches a final answer.
	ErrCancelled = errors.New("toolloop: run cancelled")

	// ErrUnknownTool is returned by registry lookups for names that were never registered.
	// The loop reports it to the model as a failure result rather than ending the run.
	ErrUnknownTool = errors.New("toolloop: unknown tool")
)

// DuplicateToolError reports the name that collided on registration.
// It matches [ErrDuplicateTool] with errors.Is.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("toolloop: tool %q already registered", e.Name)
}

func (e *DuplicateToolError) Unwrap() error {
	return ErrDuplicateTool
}
