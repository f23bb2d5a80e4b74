package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/wealthdesk/agentflow/events"
	"github.com/wealthdesk/agentflow/llm"
	"github.com/wealthdesk/agentflow/telemetry"
	"github.com/wealthdesk/agentflow/tools"
	"github.com/wealthdesk/agentflow/workflow"
)

// worker is the shared turn machinery behind Operations and Advisor: select
// one owned ready task, consult the adapter, run at most one tool, and apply
// the error-propagation rule. Role differences plug in through the two hooks.
type worker struct {
	id       workflow.AgentID
	prompt   string
	adapter  llm.Adapter
	registry *tools.Registry
	pub      publisher
	clock    workflow.Clock
	log      telemetry.Logger
	metrics  telemetry.Metrics

	// beforeTool may rewrite the decision before the tool runs, e.g. the
	// advisor downgrading an unverified "account created" notification.
	beforeTool func(ctx context.Context, s *workflow.State, t *workflow.Task, d *llm.Decision)
	// afterTool runs on the success path, e.g. operations recording the
	// outcome after open_account.
	afterTool func(ctx context.Context, s *workflow.State, t *workflow.Task, d *llm.Decision, res tools.Result)
}

func newWorker(id workflow.AgentID, prompt string, opts Options) (*worker, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("agent: Registry is required for %s", id)
	}
	return &worker{
		id:       id,
		prompt:   prompt,
		adapter:  opts.Adapter,
		registry: opts.Registry,
		pub:      publisher{bus: opts.Bus},
		clock:    opts.Clock,
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}, nil
}

func (w *worker) ID() workflow.AgentID { return w.id }

// Step executes one agent turn. Exactly one task changes status: the selected
// task moves pending -> in_progress -> completed or failed before Step
// returns. Tool failures and semantically false results (eligible: false,
// valid: false) fail the task, record a blocker and block the workflow.
func (w *worker) Step(ctx context.Context, s *workflow.State) error {
	task := w.selectTask(s)
	if task == nil {
		w.log.Warn(ctx, "no ready task to work", "agent", string(w.id), "workflow_id", s.WorkflowID)
		w.pub.logf(ctx, s, w.id, "routed with no ready task", nil)
		return nil
	}
	w.metrics.IncCounter("agent_steps", 1, "agent", string(w.id))

	if err := s.MarkTask(task.ID, workflow.TaskInProgress, "", w.clock.Now()); err != nil {
		return err
	}
	w.pub.taskUpdate(ctx, s, task)

	d, err := w.infer(ctx, s, task)
	if err != nil {
		return err
	}
	if d.Fallback {
		// The adapter could not obtain a usable decision; block instead of
		// spinning the step budget down on retries.
		w.fail(ctx, s, task, "no usable decision",
			fmt.Sprintf("%s could not decide how to complete %q: %s", w.id, task.Description, d.FallbackReason))
		s.AppendDecision(w.id, fmt.Sprintf("blocked %s: no usable decision", task.ID), d.Reasoning, w.clock.Now())
		return nil
	}
	if d.DroppedCalls > 0 {
		w.log.Warn(ctx, "extra tool calls discarded", "agent", string(w.id), "task", task.ID, "dropped", d.DroppedCalls)
		w.pub.logf(ctx, s, w.id, "decision carried multiple tool calls; only the first was invoked",
			map[string]any{"task_id": task.ID, "dropped": d.DroppedCalls})
	}

	var res tools.Result
	invoked := false
	if d.Tool != "" {
		if w.beforeTool != nil {
			w.beforeTool(ctx, s, task, d)
		}
		res = w.registry.Invoke(ctx, w.id, d.Tool, d.Params)
		invoked = true
		if reason, bad := failureReason(d.Tool, res); bad {
			w.fail(ctx, s, task, res.Message, reason)
			s.AppendDecision(w.id, fmt.Sprintf("failed %s: %s", task.ID, d.Tool), d.Reasoning, w.clock.Now())
			return nil
		}
	}

	// The decision's declared status drives the transition. A declared
	// failure must never settle as success, and a deferral blocks rather
	// than spinning the step budget down on retries; the task leaves
	// in_progress either way.
	switch d.TaskStatus {
	case "failed":
		reason := d.Result
		if reason == "" {
			reason = d.Reasoning
		}
		if reason == "" {
			reason = "no reason given"
		}
		w.fail(ctx, s, task, reason,
			fmt.Sprintf("%s reported %q as failed: %s", w.id, task.Description, reason))
		s.AppendDecision(w.id, fmt.Sprintf("failed %s", task.ID), d.Reasoning, w.clock.Now())
		return nil
	case "pending":
		w.fail(ctx, s, task, "task deferred",
			fmt.Sprintf("%s deferred %q without completing it", w.id, task.Description))
		s.AppendDecision(w.id, fmt.Sprintf("deferred %s", task.ID), d.Reasoning, w.clock.Now())
		return nil
	}

	result := d.Result
	if result == "" {
		result = completionSummary(task, d, res, invoked)
	}
	if err := s.MarkTask(task.ID, workflow.TaskCompleted, result, w.clock.Now()); err != nil {
		return err
	}
	if invoked && w.afterTool != nil {
		w.afterTool(ctx, s, task, d, res)
	}
	if d.MessageToClient != "" {
		now := w.clock.Now()
		s.AppendMessage(string(w.id), "client", d.MessageToClient, "client_message", now)
		w.pub.agentMessage(ctx, s, s.Messages[len(s.Messages)-1])
	}
	s.AppendDecision(w.id, fmt.Sprintf("completed %s", task.ID), d.Reasoning, w.clock.Now())
	w.hintNext(s)
	w.pub.taskUpdate(ctx, s, task)
	return nil
}

// selectTask returns the first pending task owned by this agent whose
// dependencies are all completed.
func (w *worker) selectTask(s *workflow.State) *workflow.Task {
	for i := range s.Tasks {
		t := &s.Tasks[i]
		if t.Owner == w.id && t.Status == workflow.TaskPending && s.DependenciesMet(t) {
			return t
		}
	}
	return nil
}

// infer consults the adapter and brackets the call with llm_call events.
func (w *worker) infer(ctx context.Context, s *workflow.State, task *workflow.Task) (*llm.Decision, error) {
	w.pub.llmCall(ctx, s, w.id, events.LLMCallPayload{Phase: "begin"})
	d, err := w.adapter.Infer(ctx, llm.RoleWorker, w.prompt, llm.DigestForTask(s, task))
	if err != nil {
		return nil, err
	}
	w.pub.llmCall(ctx, s, w.id, events.LLMCallPayload{
		Phase:     "end",
		LatencyMS: d.Latency.Milliseconds(),
		Cached:    d.Cached,
		Fallback:  d.Fallback,
	})
	w.metrics.RecordTimer("llm_latency", d.Latency, "agent", string(w.id))
	return d, nil
}

// fail applies the error-propagation rule: task failed, blocker recorded,
// workflow blocked, router hint cleared.
func (w *worker) fail(ctx context.Context, s *workflow.State, task *workflow.Task, result, blocker string) {
	now := w.clock.Now()
	if err := s.MarkTask(task.ID, workflow.TaskFailed, result, now); err != nil {
		w.log.Error(ctx, "failed task could not be marked", "task", task.ID, "err", err)
	}
	s.AddBlocker(blocker, w.id, now)
	s.Status = workflow.StatusBlocked
	s.NextActions = nil
	s.Touch(now)
	w.metrics.IncCounter("tasks_failed", 1, "agent", string(w.id))
	w.pub.taskUpdate(ctx, s, task)
}

// hintNext records which agent is expected to act next. The hint is purely
// observational; routing always derives from the task graph.
func (w *worker) hintNext(s *workflow.State) {
	s.NextActions = nil
	ready := s.Ready()
	if len(ready) == 0 {
		return
	}
	next := ready[0]
	s.NextActions = []workflow.Action{{
		Agent:    next.Owner,
		Action:   next.Description,
		Priority: next.Priority,
	}}
}

// failureReason classifies a tool result under the propagation rule. Fail
// results always count; OK results count when they carry a semantic falsity
// flag.
func failureReason(tool string, res tools.Result) (string, bool) {
	if !res.OK() {
		return fmt.Sprintf("%s failed (%s): %s", tool, res.Kind, res.Message), true
	}
	if eligible, ok := res.Payload["eligible"].(bool); ok && !eligible {
		reason, _ := res.Payload["reason"].(string)
		if reason == "" {
			reason = "client does not meet the product requirements"
		}
		return fmt.Sprintf("Client is not eligible: %s", reason), true
	}
	if valid, ok := res.Payload["valid"].(bool); ok && !valid {
		return fmt.Sprintf("Document validation failed: %s", strings.Join(payloadErrors(res.Payload), "; ")), true
	}
	return "", false
}

// payloadErrors flattens the errors list of a validation payload, which
// arrives as []string from the registry or []any after a JSON round trip.
func payloadErrors(payload map[string]any) []string {
	switch raw := payload["errors"].(type) {
	case []string:
		return raw
	case []any:
		out := make([]string, 0, len(raw))
		for _, e := range raw {
			out = append(out, fmt.Sprint(e))
		}
		return out
	}
	return nil
}

// completionSummary derives a short task result when the decision carried
// none.
func completionSummary(task *workflow.Task, d *llm.Decision, res tools.Result, invoked bool) string {
	if invoked {
		if number, ok := res.Payload["account_number"].(string); ok {
			return fmt.Sprintf("Account %s opened", number)
		}
		if msg, ok := res.Payload["message"].(string); ok && msg != "" {
			return msg
		}
		if reason, ok := res.Payload["reason"].(string); ok && reason != "" {
			return reason
		}
		return fmt.Sprintf("%s succeeded", d.Tool)
	}
	return fmt.Sprintf("Completed: %s", task.Description)
}
