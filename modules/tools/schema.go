package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/amplifier-ai/kernel/kernel/moduleapi"
)

// SchemaValidated wraps an existing Tool, rejecting any Execute input that
// fails JSON Schema validation before the wrapped tool ever runs. Rejection
// is reported as a failed ToolResult (ToolResult.Success == false), never
// as a Go error — parallel to how an orchestrator treats any other tool
// failure, so a malformed call reads as "the tool said no" rather than
// "the kernel broke."
type SchemaValidated struct {
	inner  moduleapi.Tool
	schema *jsonschema.Schema
}

// NewSchemaValidated compiles schemaJSON once at construction time and
// returns a Tool that validates every Execute call's input against it.
func NewSchemaValidated(inner moduleapi.Tool, schemaJSON []byte) (*SchemaValidated, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("tools: schema is not valid JSON: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	resourceURL := fmt.Sprintf("inline:///%s-schema.json", inner.Name())
	if err := compiler.AddResource(resourceURL, doc); err != nil {
		return nil, fmt.Errorf("tools: schema failed to register: %w", err)
	}
	schema, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("tools: schema failed to compile: %w", err)
	}

	return &SchemaValidated{inner: inner, schema: schema}, nil
}

func (t *SchemaValidated) Name() string        { return t.inner.Name() }
func (t *SchemaValidated) Description() string { return t.inner.Description() }

func (t *SchemaValidated) Execute(ctx context.Context, input []byte) (moduleapi.ToolResult, error) {
	var instance any
	if err := json.Unmarshal(input, &instance); err != nil {
		return moduleapi.NewToolResult(false, "", fmt.Sprintf("input is not valid JSON: %v", err)), nil
	}
	if err := t.schema.Validate(instance); err != nil {
		return moduleapi.NewToolResult(false, "", fmt.Sprintf("input failed schema validation: %v", err)), nil
	}
	return t.inner.Execute(ctx, input)
}

var _ moduleapi.Tool = (*SchemaValidated)(nil)
