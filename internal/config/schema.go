package config

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaJSON is the structural schema for the configuration document.
// Semantic checks (valid modifier names, known log levels) live in
// Validate; the schema catches shape mistakes like a string where a
// list belongs, with a field path in the error.
const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "input": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "ignore_mods": {"type": "array", "items": {"type": "string"}},
        "source": {"type": "string"},
        "display": {"type": "string"},
        "devices": {"type": "array", "items": {"type": "string"}}
      }
    },
    "logging": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "level": {"type": "string"},
        "format": {"type": "string"},
        "output": {"type": "string"},
        "file": {"type": "string"}
      }
    },
    "ipc": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "socket_path": {"type": "string"}
      }
    },
    "session": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "watch_lock": {"type": "boolean"}
      }
    }
  }
}`

var schema = jsonschema.MustCompileString("config.schema.json", schemaJSON)

// validateSchema checks the structural shape of the raw decoded
// document, before it is bound to the Config struct. This is what
// catches an unknown key or a string where a list belongs, with a
// field path in the error.
func validateSchema(doc map[string]any) error {
	// Round-trip through JSON so the document matches what the schema
	// validator expects, regardless of the source format.
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal config for validation: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal config for validation: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	return nil
}
