package room

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/room.json
var roomSchema string

const schemaURL = "https://bingoroom.dev/schemas/room.json"

// Schema validates room records as stored, before a write commits.
type Schema struct {
	schema *jsonschema.Schema
}

// CompileSchema loads the embedded room record schema.
func CompileSchema() (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	if err := compiler.AddResource(schemaURL, strings.NewReader(roomSchema)); err != nil {
		return nil, fmt.Errorf("failed to add room schema: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile room schema: %w", err)
	}
	return &Schema{schema: schema}, nil
}

// ValidateRecord checks the record stored under key. It has the
// store.RecordValidator signature so it can be installed with
// store.WithValidator(Collection, s.ValidateRecord). Removing a record is
// always allowed.
func (s *Schema) ValidateRecord(key string, record any) error {
	if record == nil {
		return nil
	}
	if err := s.schema.Validate(record); err != nil {
		return fmt.Errorf("room schema validation failed: %w", err)
	}
	if m, ok := record.(map[string]any); ok {
		if id, ok := m["id"].(string); ok && id != key {
			return fmt.Errorf("room id %q does not match key %q", id, key)
		}
	}
	return nil
}
