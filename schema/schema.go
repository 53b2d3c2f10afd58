// Package schema builds and validates tool parameter schemas.
//
// A parameter schema is a JSON Schema object: each property has a type and optionally an enum,
// required properties are listed, and properties not declared are rejected.
//
//	params := schema.Object(map[string]*schema.Property{
//	    "operation": schema.String("The operation to perform").
//	        Enum("add", "subtract", "multiply", "divide"),
//	    "a": schema.Number("First operand"),
//	    "b": schema.Number("Second operand"),
//	}, "operation", "a", "b")
//
// The registry compiles the schema once at registration and the executor validates every
// request's arguments against it before the tool runs.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const resourceName = "params.json"

var printer = message.NewPrinter(language.English)

// Schema is a compiled parameter schema.
type Schema struct {
	raw      map[string]any
	compiled *jsonschema.Schema
}

// Raw returns the schema as a plain map, suitable for handing to a model provider.
func (s *Schema) Raw() map[string]any {
	if s == nil {
		return nil
	}
	return s.raw
}

// Validate checks args against the schema. A nil schema accepts anything.
// The returned error, if any, is a *ValidationError.
func (s *Schema) Validate(args map[string]any) error {
	if s == nil || s.compiled == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}

	// Normalize Go values (ints, structs, typed slices) into the JSON value model the
	// validator understands.
	data, err := json.Marshal(args)
	if err != nil {
		return &ValidationError{Problems: []string{fmt.Sprintf("arguments are not JSON: %v", err)}}
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return &ValidationError{Problems: []string{fmt.Sprintf("arguments are not JSON: %v", err)}}
	}

	if err := s.compiled.Validate(inst); err != nil {
		return newValidationError(err)
	}
	return nil
}

// ValidationError lists every problem found in a set of arguments.
type ValidationError struct {
	Problems []string
	Err      error
}

func (e *ValidationError) Error() string {
	return "invalid arguments: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(err error) *ValidationError {
	ve := &ValidationError{Err: err}

	var jve *jsonschema.ValidationError
	if !errors.As(err, &jve) {
		ve.Problems = []string{err.Error()}
		return ve
	}
	collectLeaves(jve, &ve.Problems)
	if len(ve.Problems) == 0 {
		ve.Problems = []string{err.Error()}
	}
	slices.Sort(ve.Problems)
	return ve
}

// collectLeaves flattens the validator's error tree into one line per leaf.
func collectLeaves(e *jsonschema.ValidationError, out *[]string) {
	if len(e.Causes) > 0 {
		for _, c := range e.Causes {
			collectLeaves(c, out)
		}
		return
	}
	msg := e.ErrorKind.LocalizedString(printer)
	if len(e.InstanceLocation) > 0 {
		msg = "/" + strings.Join(e.InstanceLocation, "/") + ": " + msg
	}
	*out = append(*out, msg)
}

// Compile compiles a raw schema map. A nil map compiles to a nil *Schema,
// which accepts any arguments.
func Compile(raw map[string]any) (*Schema, error) {
	if raw == nil {
		return nil, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceName, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	compiled, err := c.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Schema{raw: raw, compiled: compiled}, nil
}

// Closed returns raw with undeclared arguments rejected. A nil schema becomes an object with
// no properties. The top-level object gets "additionalProperties": false unless it sets the
// keyword itself, and so does every nested object under properties or items that declares
// properties of its own. The input map is not modified.
func Closed(raw map[string]any) map[string]any {
	if raw == nil {
		return map[string]any{
			"type":                 "object",
			"properties":           map[string]any{},
			"additionalProperties": false,
		}
	}
	return closeObject(raw, true)
}

func closeObject(raw map[string]any, top bool) map[string]any {
	out := maps.Clone(raw)
	props, hasProps := out["properties"].(map[string]any)

	if out["type"] == "object" && (top || hasProps) {
		if _, set := out["additionalProperties"]; !set {
			out["additionalProperties"] = false
		}
	}
	if hasProps {
		closed := make(map[string]any, len(props))
		for name, p := range props {
			if sub, ok := p.(map[string]any); ok {
				p = closeObject(sub, false)
			}
			closed[name] = p
		}
		out["properties"] = closed
	}
	if items, ok := out["items"].(map[string]any); ok {
		out["items"] = closeObject(items, false)
	}
	return out
}

// MustCompile is like Compile but panics on error.
func MustCompile(raw map[string]any) *Schema {
	s, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return s
}

// -----------------------------------------------------------------------------
// Builders
// -----------------------------------------------------------------------------

// Object creates a closed object schema: undeclared properties are rejected. Names passed
// after the property map are required.
func Object(properties map[string]*Property, required ...string) map[string]any {
	props := make(map[string]any, len(properties))
	for name, prop := range properties {
		props[name] = prop.build()
	}

	out := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

// Property is a single property of an object schema.
type Property struct {
	typ         string
	description string
	enum        []any
	minimum     *float64
	maximum     *float64
	items       map[string]any
	def         any
}

func (p *Property) build() map[string]any {
	m := map[string]any{"type": p.typ}
	if p.description != "" {
		m["description"] = p.description
	}
	if len(p.enum) > 0 {
		m["enum"] = p.enum
	}
	if p.minimum != nil {
		m["minimum"] = *p.minimum
	}
	if p.maximum != nil {
		m["maximum"] = *p.maximum
	}
	if p.items != nil {
		m["items"] = p.items
	}
	if p.def != nil {
		m["default"] = p.def
	}
	return m
}

// String creates a string property.
func String(description string) *Property {
	return &Property{typ: "string", description: description}
}

// Integer creates an integer property.
func Integer(description string) *Property {
	return &Property{typ: "integer", description: description}
}

// Number creates a floating point property.
func Number(description string) *Property {
	return &Property{typ: "number", description: description}
}

// Boolean creates a boolean property.
func Boolean(description string) *Property {
	return &Property{typ: "boolean", description: description}
}

// Array creates an array property whose items match the given schema.
//
//	schema.Array("Tags", map[string]any{"type": "string"})
func Array(description string, items map[string]any) *Property {
	return &Property{typ: "array", description: description, items: items}
}

// Enum restricts the property to the given values.
//
//	schema.String("Operation").Enum("add", "subtract")
func (p *Property) Enum(values ...any) *Property {
	p.enum = values
	return p
}

// Min sets the inclusive minimum of a numeric property.
func (p *Property) Min(v float64) *Property {
	p.minimum = &v
	return p
}

// Max sets the inclusive maximum of a numeric property.
func (p *Property) Max(v float64) *Property {
	p.maximum = &v
	return p
}

// Default documents the value the tool assumes when the property is omitted.
// It is advisory for the model; validation does not fill it in.
func (p *Property) Default(value any) *Property {
	p.def = value
	return p
}
