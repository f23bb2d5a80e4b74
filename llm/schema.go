package llm

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Planner replies must carry a non-empty task list. Owner and priority
// values are left loose here; plan normalization rejects unknown owners and
// defaults missing priorities.
const plannerSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["tasks"],
	"properties": {
		"tasks": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["id", "description", "owner"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"description": {"type": "string", "minLength": 1},
					"owner": {"type": "string", "minLength": 1},
					"dependencies": {"type": "array", "items": {"type": "string"}},
					"priority": {"type": "string"}
				}
			}
		},
		"reasoning": {"type": "string"}
	}
}`

// Worker replies must carry a tool call or a task status; a reply with
// neither cannot advance the task and takes the fallback path.
const workerSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"tool": {"type": "string", "minLength": 1},
		"params": {"type": "object"},
		"task_status": {"type": "string", "enum": ["completed", "failed", "pending"]},
		"message_to_client": {"type": "string"},
		"reasoning": {"type": "string"},
		"result": {"type": "string"}
	},
	"anyOf": [
		{"required": ["tool"]},
		{"required": ["task_status"]}
	]
}`

var (
	schemaOnce sync.Once
	schemaErr  error
	schemas    map[Role]*jsonschema.Schema
)

func compileSchemas() {
	schemas = make(map[Role]*jsonschema.Schema, 2)
	for role, src := range map[Role]string{
		RolePlanner: plannerSchemaJSON,
		RoleWorker:  workerSchemaJSON,
	} {
		var doc any
		if err := json.Unmarshal([]byte(src), &doc); err != nil {
			schemaErr = fmt.Errorf("llm: unmarshal %s schema: %w", role, err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("schema.json", doc); err != nil {
			schemaErr = fmt.Errorf("llm: add %s schema resource: %w", role, err)
			return
		}
		compiled, err := c.Compile("schema.json")
		if err != nil {
			schemaErr = fmt.Errorf("llm: compile %s schema: %w", role, err)
			return
		}
		schemas[role] = compiled
	}
}

// ValidateDecision checks the canonical form of the decision against the
// schema for the role. The decision is round-tripped through JSON so alias
// keys accepted during parsing are validated in their normalized form.
func ValidateDecision(role Role, d *Decision) error {
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	s, ok := schemas[role]
	if !ok {
		return fmt.Errorf("llm: no schema for role %q", role)
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("llm: marshal decision: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("llm: decode decision: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("llm: %s decision rejected: %w", role, err)
	}
	return nil
}
