package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

// citeSchema is the JSON schema every persisted citation record satisfies.
const citeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["cite_id", "schema_version", "type", "id", "path", "sha256", "loc",
               "quote", "context", "created_at", "retention_class"],
  "properties": {
    "cite_id": {"type": "string", "pattern": "^c-[A-Za-z0-9_-]+$"},
    "schema_version": {"type": "integer", "const": 1},
    "type": {"enum": ["doc", "chunk", "memory"]},
    "id": {"type": "string", "minLength": 1},
    "path": {"type": "string"},
    "sha256": {"type": "string", "pattern": "^[0-9a-f]{64}$"},
    "loc": {
      "type": "object",
      "required": ["kind", "start", "end"],
      "properties": {
        "kind": {"enum": ["char", "tok"]},
        "start": {"type": "integer", "minimum": 0},
        "end": {"type": "integer", "minimum": 0}
      }
    },
    "quote": {"type": "string"},
    "context": {
      "type": "object",
      "required": ["pre", "post"],
      "properties": {
        "pre": {"type": "string"},
        "post": {"type": "string"}
      }
    },
    "source": {
      "type": "object",
      "properties": {
        "url": {"type": "string"},
        "page": {"type": "integer", "minimum": 0}
      }
    },
    "created_at": {"type": "string", "format": "date-time"},
    "retention_class": {"enum": ["ephemeral", "standard", "durable", "pinned"]},
    "tags": {"type": "array", "items": {"type": "string"}}
  }
}`

var citeSchemaLoader = gojsonschema.NewStringLoader(citeSchema)

// validateCite checks a citation record against citeSchema.
func validateCite(cite domain.Cite) error {
	data, err := json.Marshal(cite)
	if err != nil {
		return fmt.Errorf("marshalling citation: %w", err)
	}

	result, err := gojsonschema.Validate(citeSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validating citation: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: citation record: %s", domain.ErrInvalidInput, strings.Join(msgs, "; "))
	}
	if cite.Loc.End < cite.Loc.Start {
		return fmt.Errorf("%w: citation loc ends before it starts", domain.ErrInvalidInput)
	}
	return nil
}
