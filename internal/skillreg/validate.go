package skillreg

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// compiledSchema caches a parsed jsonschema.Schema for one tool's input
// schema, compiled once at registration time.
type compiledSchema struct {
	schema *jsonschema.Schema
}

// compileSchema compiles raw (a JSON Schema Draft 2020-12 document) into a
// reusable validator.
func compileSchema(name string, raw json.RawMessage) (*compiledSchema, error) {
	if len(raw) == 0 {
		return &compiledSchema{}, nil
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	resourceName := name + ".json"
	if err := compiler.AddResource(resourceName, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("skillreg: compiling schema for %q: %w", name, err)
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("skillreg: compiling schema for %q: %w", name, err)
	}
	return &compiledSchema{schema: schema}, nil
}

// Validate checks input against the compiled schema, returning a
// user-facing error listing the problems on failure.
func (c *compiledSchema) Validate(input json.RawMessage) error {
	if c == nil || c.schema == nil {
		return nil
	}
	var v any
	if len(input) == 0 {
		v = map[string]any{}
	} else if err := json.Unmarshal(input, &v); err != nil {
		return fmt.Errorf("invalid JSON input: %w", err)
	}
	if err := c.schema.Validate(v); err != nil {
		return fmt.Errorf("input validation failed: %w", err)
	}
	return nil
}
