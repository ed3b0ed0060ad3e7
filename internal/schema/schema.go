// Package schema holds the JSON schemas of the reporting service wire format
// and validates documents against them.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ReportRequest describes the body of POST /reports.
func ReportRequest() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"ein":                  map[string]any{"type": "string", "pattern": `^\d{2}-\d{7}$`},
			"ssn":                  map[string]any{"type": "string", "pattern": `^\d{3}-\d{2}-\d{4}$`},
			"wages":                decimalProp(),
			"federal_tax_withheld": decimalProp(),
		},
		"required": []string{"ein", "ssn", "wages", "federal_tax_withheld"},
	}
}

// ReportResponse describes a successful POST /reports response.
func ReportResponse() map[string]any {
	return idResponse("report_id")
}

// FileResponse describes a successful POST /files response.
func FileResponse() map[string]any {
	return idResponse("file_id")
}

func idResponse(key string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			key: map[string]any{"type": "string", "minLength": 1},
		},
		"required": []string{key},
	}
}

func decimalProp() map[string]any {
	return map[string]any{"type": "string", "pattern": `^\d+\.\d{2}$`}
}

// Validator is a compiled schema. Safe for concurrent use.
type Validator struct {
	schema *jsonschema.Schema
}

// Compile compiles schemaMap once so it can be reused per request.
func Compile(name string, schemaMap map[string]any) (*Validator, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	url := name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	s, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// MustCompile is Compile for the package's built-in schemas.
func MustCompile(name string, schemaMap map[string]any) *Validator {
	v, err := Compile(name, schemaMap)
	if err != nil {
		panic(err)
	}
	return v
}

// ValidateJSON validates raw JSON bytes.
func (v *Validator) ValidateJSON(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	return v.Validate(doc)
}

// Validate validates an already decoded document.
func (v *Validator) Validate(doc any) error {
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
