package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wealthdesk/agentflow/workflow"
)

func stateWithTasks(tasks ...workflow.Task) *workflow.State {
	return &workflow.State{
		WorkflowID: "wf_test",
		Request:    workflow.Request{Type: "open_roth_ira", ClientID: "c1"},
		Status:     workflow.StatusInProgress,
		Tasks:      tasks,
	}
}

func routerTask(id string, owner workflow.AgentID, status workflow.TaskStatus, priority workflow.Priority, deps ...string) workflow.Task {
	return workflow.Task{
		ID:           id,
		Description:  "task " + id,
		Owner:        owner,
		Status:       status,
		Priority:     priority,
		Dependencies: deps,
	}
}

func TestRouteTerminalStatusIsDone(t *testing.T) {
	for _, status := range []workflow.Status{workflow.StatusCompleted, workflow.StatusFailed, workflow.StatusBlocked} {
		s := stateWithTasks(routerTask("task_1", workflow.AgentOperations, workflow.TaskPending, workflow.PriorityNormal))
		s.Status = status
		d, err := Route(s, time.Now())
		require.NoError(t, err)
		assert.True(t, d.Done, "status %s", status)
	}
}

func TestRouteCompletesWhenAllTasksFinish(t *testing.T) {
	s := stateWithTasks(
		routerTask("task_1", workflow.AgentOperations, workflow.TaskCompleted, workflow.PriorityNormal),
		routerTask("task_2", workflow.AgentAdvisor, workflow.TaskSkipped, workflow.PriorityNormal),
	)
	d, err := Route(s, time.Now())
	require.NoError(t, err)
	assert.True(t, d.Done)
	assert.Equal(t, workflow.StatusCompleted, s.Status)
}

func TestRouteFailsWhenTasksFinishWithFailure(t *testing.T) {
	s := stateWithTasks(
		routerTask("task_1", workflow.AgentOperations, workflow.TaskCompleted, workflow.PriorityNormal),
		routerTask("task_2", workflow.AgentOperations, workflow.TaskFailed, workflow.PriorityNormal),
	)
	d, err := Route(s, time.Now())
	require.NoError(t, err)
	assert.True(t, d.Done)
	assert.Equal(t, workflow.StatusFailed, s.Status)
}

func TestRouteCompletesOnOutcomeDespiteSkips(t *testing.T) {
	s := stateWithTasks(
		routerTask("task_1", workflow.AgentOperations, workflow.TaskCompleted, workflow.PriorityNormal),
		routerTask("task_2", workflow.AgentOperations, workflow.TaskFailed, workflow.PriorityNormal),
	)
	s.Outcome = map[string]any{"account_number": "ROTH_IRA-1000"}
	d, err := Route(s, time.Now())
	require.NoError(t, err)
	assert.True(t, d.Done)
	assert.Equal(t, workflow.StatusCompleted, s.Status)
}

func TestRoutePicksReadyTaskOwner(t *testing.T) {
	s := stateWithTasks(
		routerTask("task_1", workflow.AgentOperations, workflow.TaskCompleted, workflow.PriorityNormal),
		routerTask("task_2", workflow.AgentAdvisor, workflow.TaskPending, workflow.PriorityNormal, "task_1"),
		routerTask("task_3", workflow.AgentOperations, workflow.TaskPending, workflow.PriorityNormal, "task_2"),
	)
	d, err := Route(s, time.Now())
	require.NoError(t, err)
	assert.False(t, d.Done)
	assert.Equal(t, workflow.AgentAdvisor, d.Next)
}

func TestRoutePriorityThenNumericID(t *testing.T) {
	s := stateWithTasks(
		routerTask("task_2", workflow.AgentAdvisor, workflow.TaskPending, workflow.PriorityNormal),
		routerTask("task_10", workflow.AgentOperations, workflow.TaskPending, workflow.PriorityHigh),
		routerTask("task_9", workflow.AgentAdvisor, workflow.TaskPending, workflow.PriorityHigh),
	)
	d, err := Route(s, time.Now())
	require.NoError(t, err)
	// High beats normal; among high, task_9 numerically precedes task_10.
	assert.Equal(t, workflow.AgentAdvisor, d.Next)
	assert.Contains(t, d.Reason, "task_9")
}

func TestRouteDeadlockBlocks(t *testing.T) {
	s := stateWithTasks(
		routerTask("task_1", workflow.AgentOperations, workflow.TaskFailed, workflow.PriorityNormal),
		routerTask("task_2", workflow.AgentAdvisor, workflow.TaskPending, workflow.PriorityNormal, "task_1"),
	)
	d, err := Route(s, time.Now())
	require.NoError(t, err)
	assert.True(t, d.Done)
	assert.Equal(t, workflow.StatusBlocked, s.Status)
	require.Len(t, s.UnresolvedBlockers(), 1)
	assert.Contains(t, s.UnresolvedBlockers()[0], "deadlock")
}

func TestRouteInProgressWithEmptyReadySetIsInvariantViolation(t *testing.T) {
	s := stateWithTasks(
		routerTask("task_1", workflow.AgentOperations, workflow.TaskInProgress, workflow.PriorityNormal),
		routerTask("task_2", workflow.AgentAdvisor, workflow.TaskPending, workflow.PriorityNormal, "task_1"),
	)
	_, err := Route(s, time.Now())
	require.Error(t, err)
}

func TestRouteIsPureOnHappyPath(t *testing.T) {
	s := stateWithTasks(
		routerTask("task_1", workflow.AgentOperations, workflow.TaskPending, workflow.PriorityNormal),
	)
	before := *s
	_, err := Route(s, time.Now())
	require.NoError(t, err)
	assert.Equal(t, before.Status, s.Status)
	assert.Empty(t, s.Blockers)
}
