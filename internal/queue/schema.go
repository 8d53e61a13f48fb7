package queue

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// NotificationJobSchema validates durable notification message bodies
const NotificationJobSchema = `{
  "type": "object",
  "required": ["notificationType", "recipient", "channel", "message", "companyId", "companyDbName"],
  "properties": {
    "notificationType": {"type": "string", "minLength": 1},
    "recipient":        {"type": "string", "minLength": 1},
    "channel":          {"type": "string", "enum": ["email", "sms"]},
    "subject":          {"type": "string"},
    "message":          {"type": "string"},
    "htmlMessage":      {"type": "string"},
    "companyId":        {"type": "string", "minLength": 1},
    "companyDbName":    {"type": "string", "minLength": 1},
    "documentId":       {"type": "string"},
    "attempts":         {"type": "integer", "minimum": 0}
  }
}`

// PDFJobSchema validates durable PDF render message bodies
const PDFJobSchema = `{
  "type": "object",
  "required": ["companyId", "companyDbName", "documentId"],
  "properties": {
    "companyId":     {"type": "string", "minLength": 1},
    "companyDbName": {"type": "string", "minLength": 1},
    "documentId":    {"type": "string", "pattern": "^[0-9a-fA-F]{24}$"},
    "attempts":      {"type": "integer", "minimum": 0}
  }
}`

// Schema validates raw message bodies before they are decoded
type Schema struct {
	schema *gojsonschema.Schema
}

// NewSchema compiles a JSON schema document
func NewSchema(doc string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to compile message schema: %w", err)
	}
	return &Schema{schema: s}, nil
}

// MustSchema is NewSchema for package-level schema constants
func MustSchema(doc string) *Schema {
	s, err := NewSchema(doc)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks body against the schema
func (s *Schema) Validate(body []byte) error {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("message validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}
