package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var numberish = map[string]any{"type": []any{"number", "string", "null"}}

var extractionSchema = map[string]any{
	"type":     "object",
	"required": []any{"line_items"},
	"properties": map[string]any{
		"extraction_reasoning": map[string]any{"type": []any{"string", "null"}},
		"page_type":            map[string]any{"type": []any{"string", "null"}},
		"notes":                map[string]any{"type": []any{"string", "null"}},
		"bill_total":           numberish,
		"line_items": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"item_name"},
				"properties": map[string]any{
					"item_name":  map[string]any{"type": "string"},
					"quantity":   numberish,
					"rate":       numberish,
					"amount":     numberish,
					"confidence": map[string]any{"type": []any{"number", "null"}},
				},
			},
		},
	},
}

var correctionSchema = map[string]any{
	"type":     "object",
	"required": []any{"corrections"},
	"properties": map[string]any{
		"analysis": map[string]any{"type": []any{"string", "null"}},
		"corrections": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"action"},
				"properties": map[string]any{
					"action":    map[string]any{"type": "string"},
					"item_name": map[string]any{"type": []any{"string", "null"}},
					"quantity":  numberish,
					"rate":      numberish,
					"amount":    numberish,
				},
			},
		},
	},
}

var (
	compiledExtractionSchema = mustCompileSchema("extraction.json", extractionSchema)
	compiledCorrectionSchema = mustCompileSchema("correction.json", correctionSchema)
)

func mustCompileSchema(name string, schemaMap map[string]any) *jsonschema.Schema {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		panic(fmt.Sprintf("marshaling %s: %v", name, err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		panic(fmt.Sprintf("adding %s: %v", name, err))
	}
	return compiler.MustCompile(name)
}

// validateAgainstSchema checks model output before it is decoded
func validateAgainstSchema(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshaling json: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
