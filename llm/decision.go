package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// ErrNoDecision is returned when a model reply contains no JSON object.
var ErrNoDecision = errors.New("llm: reply carries no decision object")

type (
	// PlannedTask is one entry of a planner decision. Owner accepts both
	// "owner" and the legacy "agent" key.
	PlannedTask struct {
		ID           string   `json:"id"`
		Description  string   `json:"description"`
		Owner        string   `json:"owner"`
		Dependencies []string `json:"dependencies,omitempty"`
		Priority     string   `json:"priority,omitempty"`
	}

	// Decision is the structured reply of one agent turn. Planner turns
	// fill Tasks; worker turns fill the tool call and task status fields.
	Decision struct {
		Tasks           []PlannedTask  `json:"tasks,omitempty"`
		Tool            string         `json:"tool,omitempty"`
		Params          map[string]any `json:"params,omitempty"`
		TaskStatus      string         `json:"task_status,omitempty"`
		MessageToClient string         `json:"message_to_client,omitempty"`
		Reasoning       string         `json:"reasoning,omitempty"`
		// Result is the short task summary, filled either directly or from
		// a task_completion block.
		Result string `json:"result,omitempty"`

		// Bookkeeping set by adapters, never serialized.
		Cached         bool          `json:"-"`
		Fallback       bool          `json:"-"`
		FallbackReason string        `json:"-"`
		Latency        time.Duration `json:"-"`
		// DroppedCalls counts extra tool calls discarded during parsing;
		// one decision executes at most one tool.
		DroppedCalls int `json:"-"`
	}
)

// toolCall tolerates the call shapes models actually emit: tool or name for
// the identifier, params or arguments for the payload.
type toolCall struct {
	Tool   string
	Params map[string]any
}

func (tc *toolCall) UnmarshalJSON(data []byte) error {
	var raw struct {
		Tool      string         `json:"tool"`
		Name      string         `json:"name"`
		Params    map[string]any `json:"params"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	tc.Tool = raw.Tool
	if tc.Tool == "" {
		tc.Tool = raw.Name
	}
	tc.Params = raw.Params
	if tc.Params == nil {
		tc.Params = raw.Arguments
	}
	return nil
}

func (pt *PlannedTask) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID           string   `json:"id"`
		Description  string   `json:"description"`
		Owner        string   `json:"owner"`
		Agent        string   `json:"agent"`
		Dependencies []string `json:"dependencies"`
		Priority     string   `json:"priority"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	pt.ID = raw.ID
	pt.Description = raw.Description
	pt.Owner = raw.Owner
	if pt.Owner == "" {
		pt.Owner = raw.Agent
	}
	pt.Dependencies = raw.Dependencies
	pt.Priority = raw.Priority
	return nil
}

// UnmarshalJSON accepts the canonical decision shape plus the variants
// models drift into: tool_calls or tools_to_use arrays instead of a single
// tool, a status key instead of task_status, and a task_completion block.
// When a list of calls arrives only the first is kept.
func (d *Decision) UnmarshalJSON(data []byte) error {
	var raw struct {
		Tasks           []PlannedTask  `json:"tasks"`
		Tool            string         `json:"tool"`
		Params          map[string]any `json:"params"`
		TaskStatus      string         `json:"task_status"`
		Status          string         `json:"status"`
		MessageToClient string         `json:"message_to_client"`
		Reasoning       string         `json:"reasoning"`
		Result          string         `json:"result"`
		ToolCalls       []toolCall     `json:"tool_calls"`
		ToolsToUse      []toolCall     `json:"tools_to_use"`
		TaskCompletion  *struct {
			TaskID string `json:"task_id"`
			Result string `json:"result"`
		} `json:"task_completion"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = Decision{
		Tasks:           raw.Tasks,
		Tool:            raw.Tool,
		Params:          raw.Params,
		TaskStatus:      raw.TaskStatus,
		MessageToClient: raw.MessageToClient,
		Reasoning:       raw.Reasoning,
		Result:          raw.Result,
	}
	if d.TaskStatus == "" && validTaskStatus(raw.Status) {
		d.TaskStatus = raw.Status
	}
	if d.Tool == "" {
		calls := raw.ToolCalls
		if len(calls) == 0 {
			calls = raw.ToolsToUse
		}
		if len(calls) > 0 {
			d.Tool = calls[0].Tool
			d.Params = calls[0].Params
			d.DroppedCalls = len(calls) - 1
		}
	}
	if raw.TaskCompletion != nil {
		if d.TaskStatus == "" {
			d.TaskStatus = "completed"
		}
		if d.Result == "" {
			d.Result = raw.TaskCompletion.Result
		}
	}
	return nil
}

// clone deep-copies the decision so shared copies (cache entries, fallback
// templates) cannot be mutated through each other.
func (d *Decision) clone() *Decision {
	if d == nil {
		return nil
	}
	out := *d
	if d.Tasks != nil {
		out.Tasks = make([]PlannedTask, len(d.Tasks))
		for i, t := range d.Tasks {
			out.Tasks[i] = t
			out.Tasks[i].Dependencies = append([]string(nil), t.Dependencies...)
		}
	}
	out.Params = cloneAnyMap(d.Params)
	return &out
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneAnyValue(v)
	}
	return out
}

func cloneAnyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneAnyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneAnyValue(e)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

func validTaskStatus(s string) bool {
	switch s {
	case "completed", "failed", "pending":
		return true
	}
	return false
}

// ParseDecision extracts the decision object from a raw model reply. Code
// fences and prose around the object are tolerated; replies that parse
// strictly are preferred and malformed JSON gets one repair attempt before
// giving up.
func ParseDecision(text string) (*Decision, error) {
	candidate := extractJSON(text)
	if candidate == "" {
		return nil, ErrNoDecision
	}
	var d Decision
	if err := json.Unmarshal([]byte(candidate), &d); err == nil {
		return &d, nil
	}
	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return nil, fmt.Errorf("llm: repair decision: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &d); err != nil {
		return nil, fmt.Errorf("llm: decode decision: %w", err)
	}
	return &d, nil
}

// extractJSON returns the outermost object in the text: code fences are
// stripped first, then everything outside the first { and last } goes.
func extractJSON(text string) string {
	s := text
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
