package toolchain

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rickchristie/toolloop"
	"github.com/rickchristie/toolloop/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoSpec(name string) toolloop.ToolSpec {
	return toolloop.ToolSpec{
		Name:        name,
		Description: "Echo the input",
		Parameters: schema.Object(map[string]*schema.Property{
			"text": schema.String("Text to echo"),
		}, "text"),
		Func: func(ctx context.Context, args map[string]any) (any, error) {
			return args["text"], nil
		},
	}
}

func TestRegistry_Register(t *testing.T) {
	type expected struct {
		err     error
		errName string
	}

	tests := []struct {
		name     string
		existing []string
		input    toolloop.ToolSpec
		expected expected
	}{
		{
			name:     "registers new tool",
			input:    echoSpec("echo"),
			expected: expected{},
		},
		{
			name:     "duplicate name fails",
			existing: []string{"echo"},
			input:    echoSpec("echo"),
			expected: expected{err: toolloop.ErrDuplicateTool, errName: "echo"},
		},
		{
			name:     "empty name fails",
			input:    echoSpec(""),
			expected: expected{err: toolloop.ErrInvalidTool},
		},
		{
			name:     "missing function fails",
			input:    toolloop.ToolSpec{Name: "nofunc"},
			expected: expected{err: toolloop.ErrInvalidTool},
		},
		{
			name: "uncompilable schema fails",
			input: toolloop.ToolSpec{
				Name:       "bad",
				Parameters: map[string]any{"type": 7},
				Func:       func(context.Context, map[string]any) (any, error) { return nil, nil },
			},
			expected: expected{err: toolloop.ErrInvalidTool},
		},
		{
			name: "nil parameters allowed",
			input: toolloop.ToolSpec{
				Name: "noargs",
				Func: func(context.Context, map[string]any) (any, error) { return "ok", nil },
			},
			expected: expected{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			for _, name := range tt.existing {
				require.NoError(t, reg.Register(echoSpec(name)))
			}

			err := reg.Register(tt.input)

			if tt.expected.err == nil {
				require.NoError(t, err)
				tool, ok := reg.Lookup(tt.input.Name)
				require.True(t, ok)
				assert.Equal(t, tt.input.Name, tool.Name())
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.expected.err)
			if tt.expected.errName != "" {
				var dup *toolloop.DuplicateToolError
				require.True(t, errors.As(err, &dup))
				assert.Equal(t, tt.expected.errName, dup.Name)
			}
			assert.Equal(t, len(tt.existing), reg.Len())
		})
	}
}

func TestRegistry_Sealed(t *testing.T) {
	reg := NewRegistry().MustRegister(echoSpec("echo"))
	assert.False(t, reg.Sealed())

	reg.Seal()
	reg.Seal()

	assert.True(t, reg.Sealed())
	err := reg.Register(echoSpec("late"))
	assert.ErrorIs(t, err, toolloop.ErrRegistrySealed)
	_, ok := reg.Lookup("late")
	assert.False(t, ok)

	_, ok = reg.Lookup("echo")
	assert.True(t, ok, "lookups keep working after sealing")
}

func TestRegistry_LookupAndGet(t *testing.T) {
	reg := NewRegistry().MustRegister(echoSpec("echo"))

	tool, ok := reg.Lookup("echo")
	require.True(t, ok)
	assert.NotNil(t, tool.Schema())
	assert.Equal(t, "Echo the input", tool.Spec().Description)

	_, ok = reg.Lookup("missing")
	assert.False(t, ok)

	_, err := reg.Get("missing")
	assert.ErrorIs(t, err, toolloop.ErrUnknownTool)
	assert.Contains(t, err.Error(), "missing")
}

func TestRegistry_SpecsInRegistrationOrder(t *testing.T) {
	reg := NewRegistry().MustRegister(
		echoSpec("zeta"),
		echoSpec("alpha"),
		echoSpec("mid"),
	)

	specs := reg.Specs()
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)
	assert.Equal(t, names, reg.Names())
}

func TestRegistry_MustRegisterPanicsOnDuplicate(t *testing.T) {
	reg := NewRegistry().MustRegister(echoSpec("echo"))
	assert.Panics(t, func() {
		reg.MustRegister(echoSpec("echo"))
	})
}

func TestRegistry_ConcurrentLookup(t *testing.T) {
	reg := NewRegistry().MustRegister(echoSpec("a"), echoSpec("b"))
	reg.Seal()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "a"
			if i%2 == 1 {
				name = "b"
			}
			_, ok := reg.Lookup(name)
			assert.True(t, ok)
			assert.Len(t, reg.Specs(), 2)
		}(i)
	}
	wg.Wait()
}

func TestRegistry_ClosesParameterSchemas(t *testing.T) {
	noop := func(context.Context, map[string]any) (any, error) { return nil, nil }
	handWritten := map[string]any{
		"type":       "object",
		"properties": map[string]any{"a": map[string]any{"type": "number"}},
	}
	reg := NewRegistry().MustRegister(
		toolloop.ToolSpec{Name: "noparams", Func: noop},
		toolloop.ToolSpec{Name: "raw", Parameters: handWritten, Func: noop},
	)

	noparams, err := reg.Get("noparams")
	require.NoError(t, err)
	assert.Equal(t, false, noparams.Spec().Parameters["additionalProperties"])
	assert.NoError(t, noparams.Schema().Validate(nil))
	assert.Error(t, noparams.Schema().Validate(map[string]any{"bogus": "x"}))

	raw, err := reg.Get("raw")
	require.NoError(t, err)
	assert.Equal(t, false, raw.Spec().Parameters["additionalProperties"])
	assert.Error(t, raw.Schema().Validate(map[string]any{"a": 1, "bogus": "x"}))
	_, touched := handWritten["additionalProperties"]
	assert.False(t, touched, "the caller's map is left alone")
}
