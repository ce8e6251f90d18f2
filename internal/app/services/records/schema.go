package records

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// applicationSchema is the minimum shape of a submitted document. Anything
// beyond these fields is kept as submitted. The fiscal block is written by
// the server only.
const applicationSchema = `{
  "type": "object",
  "required": ["guardian", "applicant"],
  "properties": {
    "guardian": {
      "type": "object",
      "required": ["lastName", "firstNames", "email"],
      "properties": {
        "lastName":   {"type": "string", "minLength": 1},
        "firstNames": {"type": "string", "minLength": 1},
        "email":      {"type": "string", "format": "email"}
      }
    },
    "applicant": {
      "type": "object",
      "required": ["lastName", "firstNames"],
      "properties": {
        "lastName":   {"type": "string", "minLength": 1},
        "firstNames": {"type": "string", "minLength": 1}
      }
    },
    "credentials": {
      "type": "object",
      "properties": {
        "fiscalNumber":    {"type": "string"},
        "noticeReference": {"type": "string"}
      }
    }
  },
  "not": {"required": ["fiscal"]}
}`

var schema = mustSchema(applicationSchema)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("records: bad application schema: %v", err))
	}
	return s
}

// validatePayload checks doc against applicationSchema.
func validatePayload(doc map[string]any) error {
	if doc == nil {
		return invalid(ErrInvalidPayload, "document is empty")
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return invalid(ErrInvalidPayload, err.Error())
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		problems[i] = desc.String()
	}
	return invalid(ErrInvalidPayload, problems...)
}
