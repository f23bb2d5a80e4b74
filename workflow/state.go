// Package workflow defines the shared state document that drives a single
// agent workflow: the originating request, the planned task graph, and the
// append-only audit trail (messages, decisions, blockers) written by agents
// as they execute. The document is owned exclusively by one executor
// goroutine; the package provides the mutation helpers that keep it
// consistent but performs no synchronization of its own.
package workflow

import (
	"fmt"
	"time"
)

type (
	// Status is the lifecycle state of a workflow.
	Status string

	// TaskStatus is the lifecycle state of a single task.
	TaskStatus string

	// Priority orders ready tasks when more than one could run.
	Priority string

	// AgentID names one of the role agents that own and execute tasks.
	AgentID string
)

const (
	// StatusPending marks a workflow created but not yet planned.
	StatusPending Status = "pending"
	// StatusInProgress marks a workflow with a plan under execution.
	StatusInProgress Status = "in_progress"
	// StatusBlocked marks a workflow halted by an unresolved blocker.
	StatusBlocked Status = "blocked"
	// StatusCompleted marks a workflow whose tasks all finished cleanly.
	StatusCompleted Status = "completed"
	// StatusFailed marks a workflow that terminated without completing.
	StatusFailed Status = "failed"
)

const (
	// TaskPending marks a task waiting on dependencies or scheduling.
	TaskPending TaskStatus = "pending"
	// TaskInProgress marks the task currently being worked by an agent.
	TaskInProgress TaskStatus = "in_progress"
	// TaskCompleted marks a task that finished successfully.
	TaskCompleted TaskStatus = "completed"
	// TaskFailed marks a task that finished unsuccessfully.
	TaskFailed TaskStatus = "failed"
	// TaskSkipped marks a pending task intentionally bypassed.
	TaskSkipped TaskStatus = "skipped"
)

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

const (
	// AgentOrchestrator plans the task graph; it runs once per workflow.
	AgentOrchestrator AgentID = "orchestrator_agent"
	// AgentOperations executes backend tasks: eligibility, validation,
	// account creation.
	AgentOperations AgentID = "operations_agent"
	// AgentAdvisor executes client-facing tasks: forms, notifications.
	AgentAdvisor AgentID = "advisor_agent"
)

type (
	// Request is the immutable business request that started the workflow.
	Request struct {
		// Type tags the request family, e.g. "open_roth_ira".
		Type string `json:"request_type"`
		// ClientID identifies the client the request concerns.
		ClientID string `json:"client_id"`
		// ClientName is optional display metadata, filled during planning.
		ClientName string `json:"client_name,omitempty"`
		// Initiator records who filed the request.
		Initiator string `json:"initiator,omitempty"`
		// CreatedAt is when the request entered the system.
		CreatedAt time.Time `json:"created_at"`
	}

	// Task is one unit of work in the plan, owned by a single agent and
	// gated by its dependencies.
	Task struct {
		ID           string     `json:"id"`
		Description  string     `json:"description"`
		Owner        AgentID    `json:"owner"`
		Status       TaskStatus `json:"status"`
		Dependencies []string   `json:"dependencies"`
		Priority     Priority   `json:"priority"`
		// Result is a short summary set when the task reaches a terminal
		// status, e.g. the new account number or the failure reason.
		Result string `json:"result,omitempty"`
	}

	// Message is an observational inter-agent note; it never gates
	// execution.
	Message struct {
		From      string    `json:"from_agent"`
		To        string    `json:"to_agent"`
		Timestamp time.Time `json:"timestamp"`
		Content   string    `json:"content"`
		Type      string    `json:"type"`
	}

	// Decision is the audit record each agent turn appends.
	Decision struct {
		Agent     AgentID   `json:"agent"`
		Timestamp time.Time `json:"timestamp"`
		Decision  string    `json:"decision"`
		Reasoning string    `json:"reasoning"`
	}

	// Blocker records an impediment. Any unresolved blocker forces the
	// workflow into StatusBlocked.
	Blocker struct {
		Description string    `json:"description"`
		CreatedBy   AgentID   `json:"created_by"`
		CreatedAt   time.Time `json:"created_at"`
		Resolved    bool      `json:"resolved"`
	}

	// Action is a router hint naming the agent expected to act next. Hints
	// are short-lived and purely advisory; routing derives from the task
	// graph.
	Action struct {
		Agent    AgentID  `json:"agent"`
		Action   string   `json:"action"`
		Priority Priority `json:"priority"`
	}

	// State is the single shared document for one workflow. Exactly one
	// instance exists per workflow and only the owning executor mutates it.
	State struct {
		WorkflowID string  `json:"workflow_id"`
		Request    Request `json:"request"`
		Status     Status  `json:"status"`
		// Context holds facts gathered by tools during execution, e.g. the
		// client profile loaded at planning time.
		Context   map[string]any `json:"context,omitempty"`
		Tasks     []Task         `json:"tasks"`
		Messages  []Message      `json:"messages"`
		Decisions []Decision     `json:"decisions"`
		Blockers  []Blocker      `json:"blockers"`
		// NextActions is the short-lived router hint; cleared on failure
		// paths.
		NextActions []Action `json:"next_actions,omitempty"`
		// Outcome is populated only when the workflow completes, e.g.
		// {"account_number": "ROTH_IRA-1000"}.
		Outcome   map[string]any `json:"outcome,omitempty"`
		CreatedAt time.Time      `json:"created_at"`
		UpdatedAt time.Time      `json:"updated_at"`
	}
)

// Terminal reports whether the workflow status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusBlocked:
		return true
	}
	return false
}

// Terminal reports whether the task status is final.
func (ts TaskStatus) Terminal() bool {
	switch ts {
	case TaskCompleted, TaskFailed, TaskSkipped:
		return true
	}
	return false
}

// Rank orders priorities for the router; higher runs first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 0
	}
	return 1
}

// CanTransition reports whether a task may move from one status to another.
// The only legal paths are pending -> in_progress -> {completed, failed} and
// pending -> skipped.
func CanTransition(from, to TaskStatus) bool {
	switch from {
	case TaskPending:
		return to == TaskInProgress || to == TaskSkipped
	case TaskInProgress:
		return to == TaskCompleted || to == TaskFailed
	}
	return false
}

// Task returns a pointer to the task with the given id, or false when absent.
func (s *State) Task(id string) (*Task, bool) {
	for i := range s.Tasks {
		if s.Tasks[i].ID == id {
			return &s.Tasks[i], true
		}
	}
	return nil, false
}

// InProgress returns the task currently being worked, if any. The executor is
// single-threaded per workflow so at most one task is ever in progress.
func (s *State) InProgress() (*Task, bool) {
	for i := range s.Tasks {
		if s.Tasks[i].Status == TaskInProgress {
			return &s.Tasks[i], true
		}
	}
	return nil, false
}

// Ready returns the tasks that are pending with every dependency completed,
// in plan order.
func (s *State) Ready() []*Task {
	var ready []*Task
	for i := range s.Tasks {
		if s.Tasks[i].Status != TaskPending {
			continue
		}
		if s.DependenciesMet(&s.Tasks[i]) {
			ready = append(ready, &s.Tasks[i])
		}
	}
	return ready
}

// DependenciesMet reports whether every dependency of the task is completed.
func (s *State) DependenciesMet(t *Task) bool {
	for _, dep := range t.Dependencies {
		d, ok := s.Task(dep)
		if !ok || d.Status != TaskCompleted {
			return false
		}
	}
	return true
}

// AllTerminal reports whether every task has reached a terminal status.
func (s *State) AllTerminal() bool {
	for i := range s.Tasks {
		if !s.Tasks[i].Status.Terminal() {
			return false
		}
	}
	return true
}

// AllCompleted reports whether every task is completed or skipped.
func (s *State) AllCompleted() bool {
	for i := range s.Tasks {
		switch s.Tasks[i].Status {
		case TaskCompleted, TaskSkipped:
		default:
			return false
		}
	}
	return true
}

// CompletedCount returns the number of tasks in TaskCompleted.
func (s *State) CompletedCount() int {
	n := 0
	for i := range s.Tasks {
		if s.Tasks[i].Status == TaskCompleted {
			n++
		}
	}
	return n
}

// UnresolvedBlockers returns the descriptions of blockers not yet resolved.
func (s *State) UnresolvedBlockers() []string {
	var out []string
	for _, b := range s.Blockers {
		if !b.Resolved {
			out = append(out, b.Description)
		}
	}
	return out
}

// MarkTask transitions the task to the given status, records the result
// summary, and stamps UpdatedAt. It rejects unknown tasks and transitions
// outside the legal paths.
func (s *State) MarkTask(id string, to TaskStatus, result string, now time.Time) error {
	t, ok := s.Task(id)
	if !ok {
		return fmt.Errorf("workflow: unknown task %s", id)
	}
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("workflow: task %s cannot transition %s -> %s", id, t.Status, to)
	}
	t.Status = to
	if result != "" {
		t.Result = result
	}
	s.Touch(now)
	return nil
}

// AddBlocker appends an unresolved blocker and stamps UpdatedAt. The caller
// decides whether state.Status moves to StatusBlocked.
func (s *State) AddBlocker(description string, by AgentID, now time.Time) {
	s.Blockers = append(s.Blockers, Blocker{
		Description: description,
		CreatedBy:   by,
		CreatedAt:   now,
	})
	s.Touch(now)
}

// AppendMessage appends an inter-agent message and stamps UpdatedAt.
func (s *State) AppendMessage(from, to, content, kind string, now time.Time) {
	s.Messages = append(s.Messages, Message{
		From:      from,
		To:        to,
		Timestamp: now,
		Content:   content,
		Type:      kind,
	})
	s.Touch(now)
}

// AppendDecision appends an agent decision record and stamps UpdatedAt.
func (s *State) AppendDecision(agent AgentID, decision, reasoning string, now time.Time) {
	s.Decisions = append(s.Decisions, Decision{
		Agent:     agent,
		Timestamp: now,
		Decision:  decision,
		Reasoning: reasoning,
	})
	s.Touch(now)
}

// SetOutcome records the workflow result and stamps UpdatedAt. Callers only
// set an outcome when the workflow completes.
func (s *State) SetOutcome(outcome map[string]any, now time.Time) {
	s.Outcome = outcome
	s.Touch(now)
}

// Touch stamps UpdatedAt. Mutation helpers call it; callers writing fields
// directly should too.
func (s *State) Touch(now time.Time) {
	s.UpdatedAt = now
}

// Clone returns a deep copy of the state suitable for observers. Nested
// context and outcome values of map or slice shape are copied recursively.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.Context = cloneMap(s.Context)
	out.Outcome = cloneMap(s.Outcome)
	out.Tasks = make([]Task, len(s.Tasks))
	for i, t := range s.Tasks {
		out.Tasks[i] = t
		out.Tasks[i].Dependencies = append([]string(nil), t.Dependencies...)
	}
	out.Messages = append([]Message(nil), s.Messages...)
	out.Decisions = append([]Decision(nil), s.Decisions...)
	out.Blockers = append([]Blocker(nil), s.Blockers...)
	out.NextActions = append([]Action(nil), s.NextActions...)
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}
