// Package dispatch implements the tool dispatcher and schema builder:
// tool descriptor publication, input-schema validation, and
// execute-and-serialize dispatch. Every tool's own fields are merged with
// the common fields all tools share before the schema is compiled.
package dispatch

// FieldSpec describes one JSON Schema property as data, so tool fields
// and the common fields can be merged uniformly.
type FieldSpec struct {
	Type        string // "string" | "number" | "boolean" | "array" | "object"
	Description string
	Enum        []string
	Items       *FieldSpec // only meaningful when Type == "array"
}

func (f FieldSpec) toJSONSchema() map[string]interface{} {
	m := map[string]interface{}{"type": f.Type}
	if f.Description != "" {
		m["description"] = f.Description
	}
	if len(f.Enum) > 0 {
		m["enum"] = f.Enum
	}
	if f.Type == "array" && f.Items != nil {
		m["items"] = f.Items.toJSONSchema()
	}
	return m
}

// String, Number, Bool, Array, and Enum are convenience constructors for
// the common property shapes.
func String(description string) FieldSpec { return FieldSpec{Type: "string", Description: description} }
func Number(description string) FieldSpec { return FieldSpec{Type: "number", Description: description} }
func Bool(description string) FieldSpec   { return FieldSpec{Type: "boolean", Description: description} }
func Array(description string, items FieldSpec) FieldSpec {
	return FieldSpec{Type: "array", Description: description, Items: &items}
}
func Enum(description string, values ...string) FieldSpec {
	return FieldSpec{Type: "string", Description: description, Enum: values}
}

// CommonFields returns the fields merged into every tool's own schema.
func CommonFields() map[string]FieldSpec {
	return map[string]FieldSpec{
		"model":             String(`model alias or canonical name; "auto" selects by category/rank`),
		"temperature":       Number("sampling temperature, if the model supports it"),
		"thinking_mode":     Enum("extended-thinking effort", "minimal", "low", "medium", "high", "max"),
		"continuation_id":   String("an existing thread_id to continue a prior conversation"),
		"files":             Array("absolute paths to files to attach", String("")),
		"images":            Array("absolute paths to images to attach", String("")),
		"working_directory": String("absolute path; required for tools that may emit generated code artifacts"),
	}
}

// BuildSchema merges a tool's own fields with CommonFields into a single
// JSON Schema object, marking required fields explicitly.
func BuildSchema(toolFields map[string]FieldSpec, required []string) map[string]interface{} {
	properties := map[string]interface{}{}
	for name, spec := range CommonFields() {
		properties[name] = spec.toJSONSchema()
	}
	for name, spec := range toolFields {
		properties[name] = spec.toJSONSchema()
	}

	schema := map[string]interface{}{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
