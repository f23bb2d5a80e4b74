package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wealthdesk/agentflow/backend"
	"github.com/wealthdesk/agentflow/llm"
	"github.com/wealthdesk/agentflow/tools"
	"github.com/wealthdesk/agentflow/workflow"
)

// fixedClock returns the same instant on every call.
type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

// scriptedAdapter returns canned decisions per role, falling back to the
// playbook when no script is installed for the role.
type scriptedAdapter struct {
	planner  *llm.Decision
	worker   *llm.Decision
	playbook *llm.Playbook
}

func (a *scriptedAdapter) Infer(ctx context.Context, role llm.Role, prompt string, digest llm.Digest) (*llm.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch role {
	case llm.RolePlanner:
		if a.planner != nil {
			return a.planner, nil
		}
	case llm.RoleWorker:
		if a.worker != nil {
			return a.worker, nil
		}
	}
	if a.playbook == nil {
		a.playbook = llm.NewPlaybook()
	}
	return a.playbook.Infer(ctx, role, prompt, digest)
}

func testRegistry(t *testing.T) (*tools.Registry, *backend.Backends) {
	t.Helper()
	backends, err := backend.New(backend.DefaultFixtures(), backend.Options{})
	require.NoError(t, err)
	registry, err := tools.New(tools.Options{Backends: backends})
	require.NoError(t, err)
	return registry, backends
}

func plannedState(t *testing.T, req workflow.Request, tasks ...workflow.Task) *workflow.State {
	t.Helper()
	s := workflow.NewStore(fixedClock{at: time.Unix(1700000000, 0)}).Create(req)
	s.Tasks = tasks
	s.Status = workflow.StatusInProgress
	return s
}

func pendingTask(id, desc string, owner workflow.AgentID, deps ...string) workflow.Task {
	return workflow.Task{
		ID:           id,
		Description:  desc,
		Owner:        owner,
		Status:       workflow.TaskPending,
		Dependencies: deps,
		Priority:     workflow.PriorityHigh,
	}
}

func completedTask(id, desc string, owner workflow.AgentID, deps ...string) workflow.Task {
	t := pendingTask(id, desc, owner, deps...)
	t.Status = workflow.TaskCompleted
	return t
}
