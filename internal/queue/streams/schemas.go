package streams

import "fmt"

// EventType and EventVersion label run progress envelopes.
const (
	EventType    = "research.event"
	EventVersion = "v1"
)

// Definition describes a schema entry managed by the registry.
type Definition struct {
	EventType string
	Version   string
	Schema    []byte
}

var baseDefinitions = []Definition{
	{
		EventType: EventType,
		Version:   EventVersion,
		Schema: []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "run_id", "progress", "timestamp"],
  "properties": {
    "type": {"type": "string", "enum": ["run_started", "agent_started", "agent_finished", "synthesis_started", "run_completed", "run_failed"]},
    "run_id": {"type": "string", "minLength": 1},
    "agent": {"type": "string"},
    "agent_name": {"type": "string"},
    "message": {"type": "string"},
    "progress": {"type": "number", "minimum": 0, "maximum": 1},
    "success": {"type": "boolean"},
    "output": {"type": "string"},
    "tokens_used": {"type": "integer", "minimum": 0},
    "duration": {"type": "integer", "minimum": 0},
    "timestamp": {"type": "string", "format": "date-time"}
  },
  "additionalProperties": false
}`),
	},
}

// RegisterBaseSchemas loads the run event schema into reg.
func RegisterBaseSchemas(reg *SchemaRegistry) error {
	if reg == nil {
		return fmt.Errorf("registry is nil")
	}
	for _, def := range baseDefinitions {
		if err := reg.Register(def.EventType, def.Version, def.Schema); err != nil {
			return fmt.Errorf("register %s %s: %w", def.EventType, def.Version, err)
		}
	}
	return nil
}
