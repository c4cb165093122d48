package extract

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// fieldsSchema is the contract the model's JSON must satisfy: the five
// resume keys, nothing else, with null allowed for unknown scalars.
const fieldsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "required": ["name", "email", "github", "education", "experiences"],
  "properties": {
    "name": {"type": ["string", "null"]},
    "email": {"type": ["string", "null"]},
    "github": {"type": ["string", "null"]},
    "education": {"type": ["string", "null"]},
    "experiences": {"type": "array", "items": {"type": "string"}}
  }
}`

// SchemaError reports which fields of a model response violated the contract.
type SchemaError struct {
	Violations []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("resume fields schema: %s", strings.Join(e.Violations, "; "))
}

// ValidateFieldsJSON checks a JSON document against the resume fields schema.
func ValidateFieldsJSON(doc string) error {
	schemaLoader := gojsonschema.NewStringLoader(fieldsSchema)
	documentLoader := gojsonschema.NewStringLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("validate resume fields: %w", err)
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		violations = append(violations, fmt.Sprintf("%s: %s", field, desc.Description()))
	}
	return &SchemaError{Violations: violations}
}
