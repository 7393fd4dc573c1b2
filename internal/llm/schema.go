package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildDocumentJSONSchema returns the JSON-Schema for the transformer's
// wire contract: a closed envelope whose data rows must match the shape
// selected by data_format.
func BuildDocumentJSONSchema() map[string]any {
	testRow := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"name":       map[string]any{"type": "string"},
			"value":      map[string]any{"type": "string"},
			"unit":       map[string]any{"type": "string"},
			"range":      map[string]any{"type": "string"},
			"commentary": map[string]any{"type": "string"},
		},
		"required": []string{"name", "value", "unit", "range"},
	}
	studyRow := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"device":         map[string]any{"type": "string"},
			"result":         map[string]any{"type": "string"},
			"report":         map[string]any{"type": "string"},
			"recommendation": map[string]any{"type": "string"},
		},
		"required": []string{"device", "result"},
	}

	envelope := func(format string, row map[string]any) map[string]any {
		return map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"data_format":      map[string]any{"const": format},
				"institution_name": map[string]any{"type": "string"},
				"document_type":    map[string]any{"type": "string"},
				"document_date":    map[string]any{"type": "string"},
				"data":             map[string]any{"type": "array", "items": row},
			},
			"required": []string{"data_format", "institution_name", "document_type", "document_date", "data"},
		}
	}

	return map[string]any{
		"oneOf": []any{
			envelope("test", testRow),
			envelope("study", studyRow),
		},
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
