// Package agent implements the role-specialized decision units that advance a
// workflow: the Orchestrator plans the task graph once, Operations executes
// backend tasks, and the Advisor handles client-facing ones. Every agent turn
// mutates at most one task and invokes at most one tool, whatever the model
// decided; those bounds are enforced here, not trusted to the LLM.
package agent

import (
	"context"
	"errors"

	"github.com/wealthdesk/agentflow/events"
	"github.com/wealthdesk/agentflow/llm"
	"github.com/wealthdesk/agentflow/telemetry"
	"github.com/wealthdesk/agentflow/tools"
	"github.com/wealthdesk/agentflow/workflow"
)

// Agent is one decision unit. Step advances the workflow by at most one task
// and returns an error only for unrecoverable conditions (cancellation,
// broken state); domain failures become blockers on the state instead.
type Agent interface {
	ID() workflow.AgentID
	Step(ctx context.Context, s *workflow.State) error
}

// Options configures agent construction. Adapter is always required; workers
// additionally need a Registry. Everything else defaults to no-ops.
type Options struct {
	// Adapter produces structured decisions. Required.
	Adapter llm.Adapter
	// Registry executes tool calls. Required for Operations and Advisor.
	Registry *tools.Registry
	// Bus receives llm_call, task_update and agent_message events when set.
	Bus *events.Bus
	// Clock stamps decisions and measures latency. Defaults to system clock.
	Clock workflow.Clock
	// Logger reports discarded tool calls and downgraded messages.
	Logger telemetry.Logger
	// Metrics counts agent steps and outcomes.
	Metrics telemetry.Metrics
}

func (o Options) withDefaults() (Options, error) {
	if o.Adapter == nil {
		return o, errors.New("agent: Adapter is required")
	}
	if o.Clock == nil {
		o.Clock = workflow.SystemClock()
	}
	if o.Logger == nil {
		o.Logger = telemetry.NoopLogger{}
	}
	if o.Metrics == nil {
		o.Metrics = telemetry.NoopMetrics{}
	}
	return o, nil
}

// publisher bundles the event emission shared by all agents. A nil bus
// disables publication; agents stay usable in isolation.
type publisher struct {
	bus *events.Bus
}

func (p publisher) taskUpdate(ctx context.Context, s *workflow.State, t *workflow.Task) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(ctx, events.Event{
		Type:       events.TypeTaskUpdate,
		WorkflowID: s.WorkflowID,
		Agent:      string(t.Owner),
		Payload: events.TaskUpdatePayload{
			TaskID:       t.ID,
			Status:       string(t.Status),
			Owner:        string(t.Owner),
			Description:  t.Description,
			Result:       t.Result,
			Dependencies: t.Dependencies,
		},
	})
}

func (p publisher) llmCall(ctx context.Context, s *workflow.State, agent workflow.AgentID, payload events.LLMCallPayload) {
	if p.bus == nil {
		return
	}
	payload.Agent = string(agent)
	p.bus.Publish(ctx, events.Event{
		Type:       events.TypeLLMCall,
		WorkflowID: s.WorkflowID,
		Agent:      string(agent),
		Payload:    payload,
	})
}

func (p publisher) agentMessage(ctx context.Context, s *workflow.State, m workflow.Message) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(ctx, events.Event{
		Type:       events.TypeAgentMessage,
		WorkflowID: s.WorkflowID,
		Agent:      m.From,
		Payload: events.AgentMessagePayload{
			From:    m.From,
			To:      m.To,
			Content: m.Content,
			Kind:    m.Type,
		},
	})
}

func (p publisher) logf(ctx context.Context, s *workflow.State, agent workflow.AgentID, msg string, fields map[string]any) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(ctx, events.Event{
		Type:       events.TypeLog,
		WorkflowID: s.WorkflowID,
		Agent:      string(agent),
		Payload:    events.LogPayload{Message: msg, Fields: fields},
	})
}

func (p publisher) success(ctx context.Context, s *workflow.State, agent workflow.AgentID, msg string, details map[string]any) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(ctx, events.Event{
		Type:       events.TypeSuccess,
		WorkflowID: s.WorkflowID,
		Agent:      string(agent),
		Payload:    events.SuccessPayload{Message: msg, Details: details},
	})
}
