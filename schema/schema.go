// Package schema validates report documents against a JSON Schema before they
// are written to the local store.
package schema

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed report.schema.json
var reportSchemaJSON []byte

// Report is the compiled schema every stored report document must satisfy.
var Report = MustCompile(reportSchemaJSON)

// Schema is a compiled JSON Schema.
type Schema struct {
	s *gojsonschema.Schema
}

// Compile parses a JSON Schema document.
func Compile(raw []byte) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{s: s}, nil
}

// MustCompile is like Compile but panics on error. Intended for embedded
// schemas.
func MustCompile(raw []byte) *Schema {
	s, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return s
}

// ValidationError lists every violation found in a document.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "schema validation failed: " + strings.Join(e.Violations, "; ")
}

// Validate checks doc against the schema. It returns nil when the document is
// valid and a *ValidationError otherwise.
func (s *Schema) Validate(doc map[string]any) error {
	if s == nil {
		return nil
	}
	result, err := s.s.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate document: %w", err)
	}
	if result.Valid() {
		return nil
	}
	violations := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		violations = append(violations, fmt.Sprintf("%s: %s", re.Field(), re.Description()))
	}
	return &ValidationError{Violations: violations}
}
