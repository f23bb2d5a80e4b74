// Package llm turns workflow state into structured agent decisions. The
// ModelAdapter drives a model.Client with role prompts and a compact state
// digest, parses and schema-checks the reply, and falls back to the
// deterministic Playbook when the model times out, rate-limits or returns
// garbage. Decisions are cached so identical digests do not re-bill.
package llm

import (
	"context"

	"github.com/wealthdesk/agentflow/workflow"
)

// Role selects the decision schema: the planner produces a task list, a
// worker produces a single tool decision for the task at hand.
type Role string

const (
	RolePlanner Role = "planner"
	RoleWorker  Role = "worker"
)

type (
	// TaskDigest is the compact task view sent to the model.
	TaskDigest struct {
		ID           string   `json:"id"`
		Description  string   `json:"description"`
		Owner        string   `json:"owner"`
		Status       string   `json:"status"`
		Dependencies []string `json:"dependencies,omitempty"`
		Result       string   `json:"result,omitempty"`
	}

	// Digest is the state summary an adapter receives. It is deliberately
	// flat and JSON-stable so it can double as a cache key.
	Digest struct {
		WorkflowID  string         `json:"workflow_id"`
		RequestType string         `json:"request_type"`
		ClientID    string         `json:"client_id"`
		ClientName  string         `json:"client_name,omitempty"`
		Status      string         `json:"status"`
		Task        *TaskDigest    `json:"task,omitempty"`
		Tasks       []TaskDigest   `json:"tasks,omitempty"`
		Blockers    []string       `json:"blockers,omitempty"`
		Outcome     map[string]any `json:"outcome,omitempty"`
		Completed   int            `json:"tasks_completed"`
		Total       int            `json:"tasks_total"`
	}

	// Adapter produces a structured decision for a role given a prompt and a
	// state digest. Implementations must be safe for concurrent use.
	Adapter interface {
		Infer(ctx context.Context, role Role, prompt string, digest Digest) (*Decision, error)
	}
)

// DigestForPlan summarizes a freshly created workflow for the planner.
func DigestForPlan(s *workflow.State) Digest {
	return digest(s, nil)
}

// DigestForTask summarizes the workflow around the task a worker owns.
func DigestForTask(s *workflow.State, t *workflow.Task) Digest {
	return digest(s, t)
}

func digest(s *workflow.State, current *workflow.Task) Digest {
	d := Digest{
		WorkflowID:  s.WorkflowID,
		RequestType: s.Request.Type,
		ClientID:    s.Request.ClientID,
		ClientName:  s.Request.ClientName,
		Status:      string(s.Status),
		Blockers:    s.UnresolvedBlockers(),
		Completed:   s.CompletedCount(),
		Total:       len(s.Tasks),
	}
	if len(s.Outcome) > 0 {
		d.Outcome = s.Outcome
	}
	for i := range s.Tasks {
		t := &s.Tasks[i]
		td := TaskDigest{
			ID:           t.ID,
			Description:  t.Description,
			Owner:        string(t.Owner),
			Status:       string(t.Status),
			Dependencies: t.Dependencies,
			Result:       t.Result,
		}
		d.Tasks = append(d.Tasks, td)
		if current != nil && t.ID == current.ID {
			d.Task = &td
		}
	}
	return d
}
