package streams

import "fmt"

// Event types carried on progress streams.
const (
	EventProgress = "progress"
	EventComplete = "complete"

	PayloadVersion = "v1"
)

// ProgressPayload is the data of a progress event.
type ProgressPayload struct {
	Message string `json:"message"`
}

// Definition describes a schema entry managed by the registry.
type Definition struct {
	EventType string
	Version   string
	Schema    []byte
}

var baseDefinitions = []Definition{
	{
		EventType: EventProgress,
		Version:   PayloadVersion,
		Schema: []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["message"],
  "properties": {
    "message": {"type": "string", "minLength": 1}
  },
  "additionalProperties": false
}`),
	},
	{
		EventType: EventComplete,
		Version:   PayloadVersion,
		Schema: []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "query", "results", "comprehensiveAnswer", "searchSummary"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "query": {"type": "string"},
    "results": {"type": "array"},
    "comprehensiveAnswer": {"type": "string"},
    "searchSummary": {
      "type": "object",
      "required": ["totalResults", "sourceBreakdown", "searchRounds"],
      "properties": {
        "totalResults": {"type": "integer", "minimum": 0},
        "sourceBreakdown": {"type": "object", "additionalProperties": {"type": "integer"}},
        "searchRounds": {"type": "integer", "minimum": 1}
      }
    }
  },
  "additionalProperties": true
}`),
	},
}

// RegisterBaseSchemas loads the progress and complete schemas into reg.
func RegisterBaseSchemas(reg *SchemaRegistry) error {
	for _, def := range baseDefinitions {
		if err := reg.Register(def.EventType, def.Version, def.Schema); err != nil {
			return fmt.Errorf("register %s/%s: %w", def.EventType, def.Version, err)
		}
	}
	return nil
}
