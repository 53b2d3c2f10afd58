package toolchain

import (
	"fmt"
	"sync"

	"github.com/rickchristie/toolloop"
	"github.com/rickchristie/toolloop/schema"
)

// Tool is a registered tool: its spec plus the compiled parameter schema.
type Tool struct {
	spec   toolloop.ToolSpec
	schema *schema.Schema
}

// Name returns the tool name.
func (t *Tool) Name() string { return t.spec.Name }

// Spec returns the spec the tool was registered with.
func (t *Tool) Spec() toolloop.ToolSpec { return t.spec }

// Schema returns the compiled parameter schema.
func (t *Tool) Schema() *schema.Schema { return t.schema }

// Registry maps tool names to tools.
//
// Tools are registered before a run starts. The loop controller seals the registry when a run
// begins; from then on it is read-only and safe for concurrent lookup from tool workers.
type Registry struct {
	mu     sync.RWMutex
	tools  []*Tool
	byName map[string]*Tool
	sealed bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:  make([]*Tool, 0),
		byName: make(map[string]*Tool),
	}
}

// Register adds a tool. It fails when the name is empty or already taken, when the tool has no
// function, when the parameter schema does not compile, or when the registry is sealed.
//
// The parameter schema is closed with [schema.Closed] before compiling, so arguments the
// schema does not declare are rejected. A tool without parameters accepts only an empty
// argument object. The stored spec carries the closed schema.
func (r *Registry) Register(spec toolloop.ToolSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("%w: empty name", toolloop.ErrInvalidTool)
	}
	if spec.Func == nil {
		return fmt.Errorf("%w: %s has no function", toolloop.ErrInvalidTool, spec.Name)
	}
	spec.Parameters = schema.Closed(spec.Parameters)
	compiled, err := schema.Compile(spec.Parameters)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", toolloop.ErrInvalidTool, spec.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("%w: cannot register %s", toolloop.ErrRegistrySealed, spec.Name)
	}
	if _, exists := r.byName[spec.Name]; exists {
		return &toolloop.DuplicateToolError{Name: spec.Name}
	}

	tool := &Tool{spec: spec, schema: compiled}
	r.tools = append(r.tools, tool)
	r.byName[spec.Name] = tool
	return nil
}

// MustRegister is like Register but panics on error. Use it for init-time wiring.
func (r *Registry) MustRegister(specs ...toolloop.ToolSpec) *Registry {
	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			panic(err)
		}
	}
	return r
}

// Lookup returns the tool with the given name, or false if none is registered.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.byName[name]
	return tool, ok
}

// Get is like Lookup but reports a missing tool as an error wrapping [toolloop.ErrUnknownTool].
func (r *Registry) Get(name string) (*Tool, error) {
	tool, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", toolloop.ErrUnknownTool, name)
	}
	return tool, nil
}

// Specs returns the specs of every registered tool in registration order.
func (r *Registry) Specs() []toolloop.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]toolloop.ToolSpec, len(r.tools))
	for i, t := range r.tools {
		out[i] = t.spec
	}
	return out
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.tools))
	for i, t := range r.tools {
		out[i] = t.spec.Name
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Seal makes the registry read-only. Sealing twice is a no-op.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}
