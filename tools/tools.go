// Package tools exposes the operations agents run against the simulated
// backends. Every invocation goes through the Registry, which owns parameter
// validation, per-agent authorization, the success/failure tagging of
// results, and the tool_execution event stream.
package tools

import (
	"fmt"

	"github.com/wealthdesk/agentflow/workflow"
)

// Tool names. The set is closed; unknown names fail with KindNotFound.
const (
	ToolGetClientInfo    = "get_client_info"
	ToolCheckEligibility = "check_eligibility"
	ToolGetDocument      = "get_document"
	ToolValidateDocument = "validate_document"
	ToolCreateDocument   = "create_document"
	ToolUpdateDocument   = "update_document"
	ToolOpenAccount      = "open_account"
	ToolSendNotification = "send_notification"
)

// Kind tags a tool result. KindOK marks success; the remaining kinds form
// the failure taxonomy shared with event payloads and blockers.
type Kind string

const (
	KindOK              Kind = "ok"
	KindNotFound        Kind = "not_found"
	KindPrecondition    Kind = "precondition_failed"
	KindConflict        Kind = "conflict"
	KindInvalidArgument Kind = "invalid_argument"
	KindTimeout         Kind = "timeout"
	KindInternal        Kind = "internal"
)

// Result is the tagged outcome of a tool invocation: either success with a
// payload or a failure kind with a message. Backend errors never ride inside
// a success payload; the Registry seals that boundary.
type Result struct {
	Kind    Kind           `json:"kind"`
	Payload map[string]any `json:"payload,omitempty"`
	Message string         `json:"message,omitempty"`
}

// OK reports whether the result is a success.
func (r Result) OK() bool { return r.Kind == KindOK }

// Ok builds a success result. The payload is annotated with success: true.
func Ok(payload map[string]any) Result {
	if payload == nil {
		payload = make(map[string]any, 1)
	}
	payload["success"] = true
	return Result{Kind: KindOK, Payload: payload}
}

// Failf builds a failure result with a formatted message.
func Failf(kind Kind, format string, args ...any) Result {
	return Result{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Authorized reports whether the agent may invoke the named tool. The
// Orchestrator plans and never calls tools; Operations owns the backend
// surface and the Advisor the client-facing one. Both may read client info.
func Authorized(agent workflow.AgentID, tool string) bool {
	switch agent {
	case workflow.AgentOperations:
		switch tool {
		case ToolCheckEligibility, ToolValidateDocument, ToolGetDocument, ToolOpenAccount, ToolGetClientInfo:
			return true
		}
	case workflow.AgentAdvisor:
		switch tool {
		case ToolCreateDocument, ToolUpdateDocument, ToolSendNotification, ToolGetClientInfo:
			return true
		}
	}
	return false
}

type invalidArgumentError struct{ msg string }

func (e *invalidArgumentError) Error() string { return e.msg }

func invalidArgumentf(format string, args ...any) error {
	return &invalidArgumentError{msg: fmt.Sprintf(format, args...)}
}

// stringParam extracts a required non-empty string parameter.
func stringParam(params map[string]any, key string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return "", invalidArgumentf("missing required parameter %q", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", invalidArgumentf("parameter %q must be a string, got %T", key, raw)
	}
	if s == "" {
		return "", invalidArgumentf("parameter %q must not be empty", key)
	}
	return s, nil
}

// objectParam extracts a required map-valued parameter.
func objectParam(params map[string]any, key string) (map[string]any, error) {
	raw, ok := params[key]
	if !ok {
		return nil, invalidArgumentf("missing required parameter %q", key)
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, invalidArgumentf("parameter %q must be an object, got %T", key, raw)
	}
	return m, nil
}
