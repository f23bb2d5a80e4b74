// Package events implements the in-process pub/sub fabric that carries typed
// engine events to observers. Every agent decision, tool call, LLM call, and
// state mutation is published here; subscribers receive per-workflow streams
// with publication ordering preserved and bounded buffering in between.
package events

import (
	"encoding/json"
	"time"

	"github.com/wealthdesk/agentflow/workflow"
)

// Type enumerates the closed set of event types the engine publishes.
type Type string

const (
	TypeWorkflowStart    Type = "workflow_start"
	TypeAgentMessage     Type = "agent_message"
	TypeLLMCall          Type = "llm_call"
	TypeToolExecution    Type = "tool_execution"
	TypeRouting          Type = "routing"
	TypeTaskUpdate       Type = "task_update"
	TypeSuccess          Type = "success"
	TypeNotification     Type = "notification"
	TypeLog              Type = "log"
	TypeError            Type = "error"
	TypeWorkflowComplete Type = "workflow_complete"
)

// Critical reports whether the event type may never be dropped, whatever the
// bus back-pressure policy.
func (t Type) Critical() bool {
	switch t {
	case TypeWorkflowStart, TypeTaskUpdate, TypeToolExecution, TypeWorkflowComplete, TypeError:
		return true
	}
	return false
}

// Event is the envelope delivered to subscribers. The wire form serializes
// the timestamp as milliseconds since the epoch.
type Event struct {
	Type       Type
	WorkflowID string
	// Agent names the publishing agent when one is responsible.
	Agent string
	// Payload carries the type-specific payload struct.
	Payload any
	// Timestamp is stamped by the bus at publication when left zero.
	Timestamp time.Time
}

type eventWire struct {
	Type        Type   `json:"type"`
	WorkflowID  string `json:"workflow_id"`
	Agent       string `json:"agent,omitempty"`
	Payload     any    `json:"payload,omitempty"`
	TimestampMS int64  `json:"timestamp_ms"`
}

// MarshalJSON renders the envelope in its wire form.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventWire{
		Type:        e.Type,
		WorkflowID:  e.WorkflowID,
		Agent:       e.Agent,
		Payload:     e.Payload,
		TimestampMS: e.Timestamp.UnixMilli(),
	})
}

type (
	// WorkflowStartPayload opens every workflow stream.
	WorkflowStartPayload struct {
		Request workflow.Request `json:"request"`
	}

	// TaskUpdatePayload reports a task status change.
	TaskUpdatePayload struct {
		TaskID       string   `json:"task_id"`
		Status       string   `json:"status"`
		Owner        string   `json:"owner"`
		Description  string   `json:"description"`
		Result       string   `json:"result,omitempty"`
		Dependencies []string `json:"dependencies"`
	}

	// ToolResultPayload summarizes a tool result inside a tool_execution
	// event.
	ToolResultPayload struct {
		Kind    string         `json:"kind"`
		Payload map[string]any `json:"payload,omitempty"`
		Message string         `json:"message,omitempty"`
	}

	// ToolExecutionPayload reports one registry invocation and its result.
	ToolExecutionPayload struct {
		Agent  string            `json:"agent"`
		Tool   string            `json:"tool"`
		Params map[string]any    `json:"params,omitempty"`
		Result ToolResultPayload `json:"result"`
	}

	// LLMCallPayload brackets an adapter inference call. Phase is "begin"
	// or "end"; latency and cache information ride on the end event.
	LLMCallPayload struct {
		Agent     string `json:"agent"`
		Phase     string `json:"phase"`
		LatencyMS int64  `json:"latency_ms,omitempty"`
		Cached    bool   `json:"cached"`
		Fallback  bool   `json:"fallback,omitempty"`
	}

	// RoutingPayload reports a supervisor decision.
	RoutingPayload struct {
		Next   string `json:"next,omitempty"`
		Done   bool   `json:"done"`
		Reason string `json:"reason"`
	}

	// AgentMessagePayload mirrors a message appended to the state document.
	AgentMessagePayload struct {
		From    string `json:"from_agent"`
		To      string `json:"to_agent"`
		Content string `json:"content"`
		Kind    string `json:"type"`
	}

	// NotificationPayload reports a client notification appended to the
	// notification sink.
	NotificationPayload struct {
		ClientID string `json:"client_id"`
		Kind     string `json:"type"`
		Content  string `json:"content"`
	}

	// SuccessPayload celebrates a notable milestone, e.g. account creation.
	SuccessPayload struct {
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	}

	// LogPayload carries free-form diagnostic messages. Log events are the
	// first to be dropped under back-pressure.
	LogPayload struct {
		Message string         `json:"message"`
		Fields  map[string]any `json:"fields,omitempty"`
	}

	// ErrorPayload reports a failure; non-recoverable errors terminate the
	// workflow.
	ErrorPayload struct {
		Agent       string `json:"agent,omitempty"`
		Message     string `json:"message"`
		Recoverable bool   `json:"recoverable"`
	}

	// WorkflowCompletePayload closes every workflow stream with the final
	// status, the outcome when completed, and the outstanding blockers
	// otherwise.
	WorkflowCompletePayload struct {
		Status         string         `json:"status"`
		Outcome        map[string]any `json:"outcome,omitempty"`
		TasksCompleted int            `json:"tasks_completed"`
		TotalTasks     int            `json:"total_tasks"`
		Blockers       []string       `json:"blockers,omitempty"`
	}
)
