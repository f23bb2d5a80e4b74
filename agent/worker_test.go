package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wealthdesk/agentflow/llm"
	"github.com/wealthdesk/agentflow/tools"
	"github.com/wealthdesk/agentflow/workflow"
)

func rothRequest(clientID string) workflow.Request {
	return workflow.Request{Type: "open_roth_ira", ClientID: clientID, ClientName: "Test Client Complete"}
}

func TestOperationsCompletesEligibilityTask(t *testing.T) {
	registry, _ := testRegistry(t)
	ops, err := NewOperations(Options{Adapter: llm.NewPlaybook(), Registry: registry})
	require.NoError(t, err)

	s := plannedState(t, rothRequest("test_client_complete"),
		pendingTask("task_1", "Verify IRA income eligibility and regulatory requirements", workflow.AgentOperations),
		pendingTask("task_2", "Notify client of successful account opening", workflow.AgentAdvisor, "task_1"),
	)
	require.NoError(t, ops.Step(context.Background(), s))

	assert.Equal(t, workflow.TaskCompleted, s.Tasks[0].Status)
	assert.NotEmpty(t, s.Tasks[0].Result)
	assert.Equal(t, workflow.TaskPending, s.Tasks[1].Status)
	assert.Equal(t, workflow.StatusInProgress, s.Status)
	assert.Empty(t, s.Blockers)
	require.Len(t, s.Decisions, 1)

	// The hint names the now-ready advisor task.
	require.Len(t, s.NextActions, 1)
	assert.Equal(t, workflow.AgentAdvisor, s.NextActions[0].Agent)
}

func TestOperationsBlocksOnIneligibleClient(t *testing.T) {
	registry, _ := testRegistry(t)
	ops, err := NewOperations(Options{Adapter: llm.NewPlaybook(), Registry: registry})
	require.NoError(t, err)

	// rachel_kim_452 earns above the Roth income limit.
	s := plannedState(t, rothRequest("rachel_kim_452"),
		pendingTask("task_1", "Verify IRA income eligibility", workflow.AgentOperations),
		pendingTask("task_2", "Open account", workflow.AgentOperations, "task_1"),
	)
	require.NoError(t, ops.Step(context.Background(), s))

	assert.Equal(t, workflow.TaskFailed, s.Tasks[0].Status)
	assert.Equal(t, workflow.StatusBlocked, s.Status)
	assert.Empty(t, s.NextActions)
	require.Len(t, s.UnresolvedBlockers(), 1)
	assert.Contains(t, s.UnresolvedBlockers()[0], "not eligible")
	assert.Contains(t, s.UnresolvedBlockers()[0], "exceeds Roth IRA limit")
	// The later task is untouched.
	assert.Equal(t, workflow.TaskPending, s.Tasks[1].Status)
}

func TestOperationsBlocksOnDuplicateAccount(t *testing.T) {
	registry, _ := testRegistry(t)
	ops, err := NewOperations(Options{Adapter: llm.NewPlaybook(), Registry: registry})
	require.NoError(t, err)

	// dana_wells_204 already holds ROTH_IRA-1001.
	s := plannedState(t, rothRequest("dana_wells_204"),
		pendingTask("task_1", "Open roth account in system", workflow.AgentOperations),
	)
	require.NoError(t, ops.Step(context.Background(), s))

	assert.Equal(t, workflow.TaskFailed, s.Tasks[0].Status)
	assert.Equal(t, workflow.StatusBlocked, s.Status)
	require.Len(t, s.UnresolvedBlockers(), 1)
	assert.Contains(t, s.UnresolvedBlockers()[0], "conflict")
	assert.Contains(t, s.UnresolvedBlockers()[0], "ROTH_IRA-1001")
	assert.Empty(t, s.Outcome)
}

func TestOperationsRecordsOutcomeOnAccountOpen(t *testing.T) {
	registry, backends := testRegistry(t)
	ops, err := NewOperations(Options{Adapter: llm.NewPlaybook(), Registry: registry})
	require.NoError(t, err)

	s := plannedState(t, rothRequest("test_client_complete"),
		completedTask("task_1", "Verify eligibility", workflow.AgentOperations),
		pendingTask("task_2", "Open IRA account in system and generate account number", workflow.AgentOperations, "task_1"),
	)
	require.NoError(t, ops.Step(context.Background(), s))

	assert.Equal(t, workflow.TaskCompleted, s.Tasks[1].Status)
	number, _ := s.Outcome["account_number"].(string)
	assert.Regexp(t, `^ROTH_IRA-\d+$`, number)
	assert.Equal(t, "roth_ira", s.Outcome["account_type"])
	assert.Contains(t, s.Tasks[1].Result, number)

	accounts := backends.Accounts.List()
	require.NotEmpty(t, accounts)
}

func TestWorkerBlocksOnFallbackDecision(t *testing.T) {
	registry, _ := testRegistry(t)
	adapter := &scriptedAdapter{worker: &llm.Decision{
		TaskStatus:     "pending",
		Fallback:       true,
		FallbackReason: "completion timed out",
	}}
	ops, err := NewOperations(Options{Adapter: adapter, Registry: registry})
	require.NoError(t, err)

	s := plannedState(t, rothRequest("test_client_complete"),
		pendingTask("task_1", "Verify eligibility", workflow.AgentOperations),
	)
	require.NoError(t, ops.Step(context.Background(), s))

	assert.Equal(t, workflow.TaskFailed, s.Tasks[0].Status)
	assert.Equal(t, workflow.StatusBlocked, s.Status)
	require.Len(t, s.UnresolvedBlockers(), 1)
	assert.Contains(t, s.UnresolvedBlockers()[0], "completion timed out")
}

func TestWorkerBlocksOnDeclaredTaskFailure(t *testing.T) {
	registry, _ := testRegistry(t)
	adapter := &scriptedAdapter{worker: &llm.Decision{
		TaskStatus: "failed",
		Reasoning:  "client records are inconsistent across systems",
	}}
	ops, err := NewOperations(Options{Adapter: adapter, Registry: registry})
	require.NoError(t, err)

	s := plannedState(t, rothRequest("test_client_complete"),
		pendingTask("task_1", "Verify eligibility", workflow.AgentOperations),
		pendingTask("task_2", "Open account", workflow.AgentOperations, "task_1"),
	)
	require.NoError(t, ops.Step(context.Background(), s))

	// A declared failure must never settle as success.
	assert.Equal(t, workflow.TaskFailed, s.Tasks[0].Status)
	assert.Equal(t, workflow.StatusBlocked, s.Status)
	assert.Empty(t, s.NextActions)
	require.Len(t, s.UnresolvedBlockers(), 1)
	assert.Contains(t, s.UnresolvedBlockers()[0], "client records are inconsistent")
	assert.Equal(t, workflow.TaskPending, s.Tasks[1].Status)
}

func TestWorkerBlocksOnDeclaredFailureAfterToolSuccess(t *testing.T) {
	registry, backends := testRegistry(t)
	adapter := &scriptedAdapter{worker: &llm.Decision{
		Tool: tools.ToolCheckEligibility,
		Params: map[string]any{
			"client_id":    "test_client_complete",
			"product_type": "roth_ira",
		},
		TaskStatus: "failed",
		Result:     "eligibility could not be established",
	}}
	ops, err := NewOperations(Options{Adapter: adapter, Registry: registry})
	require.NoError(t, err)

	s := plannedState(t, rothRequest("test_client_complete"),
		pendingTask("task_1", "Verify eligibility", workflow.AgentOperations),
	)
	require.NoError(t, ops.Step(context.Background(), s))

	assert.Equal(t, workflow.TaskFailed, s.Tasks[0].Status)
	assert.Equal(t, workflow.StatusBlocked, s.Status)
	require.Len(t, s.UnresolvedBlockers(), 1)
	assert.Contains(t, s.UnresolvedBlockers()[0], "eligibility could not be established")
	assert.Empty(t, backends.Accounts.List())
}

func TestWorkerBlocksOnDeferredDecision(t *testing.T) {
	registry, _ := testRegistry(t)
	// Non-fallback decision that leaves the task pending: the turn must not
	// complete the task and must not leave it in_progress either.
	adapter := &scriptedAdapter{worker: &llm.Decision{
		TaskStatus: "pending",
		Reasoning:  "waiting on information the workflow cannot provide",
	}}
	ops, err := NewOperations(Options{Adapter: adapter, Registry: registry})
	require.NoError(t, err)

	s := plannedState(t, rothRequest("test_client_complete"),
		pendingTask("task_1", "Verify eligibility", workflow.AgentOperations),
	)
	require.NoError(t, ops.Step(context.Background(), s))

	assert.Equal(t, workflow.TaskFailed, s.Tasks[0].Status)
	assert.Equal(t, workflow.StatusBlocked, s.Status)
	require.Len(t, s.UnresolvedBlockers(), 1)
	assert.Contains(t, s.UnresolvedBlockers()[0], "deferred")
}

func TestWorkerInvokesOnlyFirstToolCall(t *testing.T) {
	registry, backends := testRegistry(t)
	adapter := &scriptedAdapter{worker: &llm.Decision{
		Tool: tools.ToolCheckEligibility,
		Params: map[string]any{
			"client_id":    "test_client_complete",
			"product_type": "roth_ira",
		},
		TaskStatus:   "completed",
		DroppedCalls: 2,
	}}
	ops, err := NewOperations(Options{Adapter: adapter, Registry: registry})
	require.NoError(t, err)

	s := plannedState(t, rothRequest("test_client_complete"),
		pendingTask("task_1", "Verify eligibility", workflow.AgentOperations),
	)
	require.NoError(t, ops.Step(context.Background(), s))

	assert.Equal(t, workflow.TaskCompleted, s.Tasks[0].Status)
	// The dropped calls never reached the backends: no account was opened.
	assert.Empty(t, backends.Accounts.List())
}

func TestWorkerStepMutatesAtMostOneTask(t *testing.T) {
	registry, _ := testRegistry(t)
	ops, err := NewOperations(Options{Adapter: llm.NewPlaybook(), Registry: registry})
	require.NoError(t, err)

	s := plannedState(t, rothRequest("test_client_complete"),
		pendingTask("task_1", "Verify eligibility", workflow.AgentOperations),
		pendingTask("task_2", "Review and validate submitted IRA application", workflow.AgentOperations),
		pendingTask("task_3", "Open IRA account", workflow.AgentOperations),
	)
	before := map[string]workflow.TaskStatus{}
	for _, task := range s.Tasks {
		before[task.ID] = task.Status
	}
	require.NoError(t, ops.Step(context.Background(), s))

	changed := 0
	for _, task := range s.Tasks {
		if task.Status != before[task.ID] {
			changed++
		}
	}
	assert.Equal(t, 1, changed)
}

func TestAdvisorSendsFormLetter(t *testing.T) {
	registry, backends := testRegistry(t)
	advisor, err := NewAdvisor(Options{Adapter: llm.NewPlaybook(), Registry: registry})
	require.NoError(t, err)

	s := plannedState(t, rothRequest("test_client_complete"),
		completedTask("task_1", "Verify eligibility", workflow.AgentOperations),
		pendingTask("task_2", "Send personalized IRA application form to client", workflow.AgentAdvisor, "task_1"),
	)
	require.NoError(t, advisor.Step(context.Background(), s))

	assert.Equal(t, workflow.TaskCompleted, s.Tasks[1].Status)
	require.Len(t, s.Messages, 1)
	assert.Contains(t, s.Messages[0].Content, "sign on page 3")

	// The form was stored without clobbering the application on file.
	_, err = backends.Documents.Get("test_client_complete", "enrollment_form")
	assert.NoError(t, err)
	app, err := backends.Documents.Get("test_client_complete", "ira_application")
	require.NoError(t, err)
	assert.Equal(t, true, app["signature_page3"])
}

func TestAdvisorDowngradesUnverifiedTerminalClaim(t *testing.T) {
	registry, backends := testRegistry(t)
	adapter := &scriptedAdapter{worker: &llm.Decision{
		Tool: tools.ToolSendNotification,
		Params: map[string]any{
			"client_id": "test_client_complete",
			"type":      "status_update",
			"content":   "Congratulations! Your Roth IRA account has been successfully opened.",
		},
		TaskStatus:      "completed",
		MessageToClient: "Congratulations! Your Roth IRA account has been successfully opened.",
	}}
	advisor, err := NewAdvisor(Options{Adapter: adapter, Registry: registry})
	require.NoError(t, err)

	// No outcome recorded: the account claim is unverified.
	s := plannedState(t, rothRequest("test_client_complete"),
		pendingTask("task_1", "Notify client of account opening", workflow.AgentAdvisor),
	)
	require.NoError(t, advisor.Step(context.Background(), s))

	assert.Equal(t, workflow.TaskCompleted, s.Tasks[0].Status)
	notes := backends.Notifier.Log()
	require.Len(t, notes, 1)
	assert.NotContains(t, notes[0].Content, "successfully opened")
	assert.Contains(t, notes[0].Content, "update on your IRA application")
}

func TestAdvisorKeepsVerifiedTerminalClaim(t *testing.T) {
	registry, backends := testRegistry(t)
	advisor, err := NewAdvisor(Options{Adapter: llm.NewPlaybook(), Registry: registry})
	require.NoError(t, err)

	s := plannedState(t, rothRequest("test_client_complete"),
		completedTask("task_1", "Open account", workflow.AgentOperations),
		pendingTask("task_2", "Notify client of successful account opening", workflow.AgentAdvisor, "task_1"),
	)
	s.Outcome = map[string]any{"account_number": "ROTH_IRA-1000", "account_type": "roth_ira"}
	require.NoError(t, advisor.Step(context.Background(), s))

	notes := backends.Notifier.Log()
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Content, "successfully opened")
	assert.Contains(t, notes[0].Content, "ROTH_IRA-1000")
}

func TestAdvisorUnauthorizedToolBlocks(t *testing.T) {
	registry, _ := testRegistry(t)
	adapter := &scriptedAdapter{worker: &llm.Decision{
		Tool:       tools.ToolOpenAccount,
		Params:     map[string]any{"client_id": "test_client_complete", "account_type": "roth_ira"},
		TaskStatus: "completed",
	}}
	advisor, err := NewAdvisor(Options{Adapter: adapter, Registry: registry})
	require.NoError(t, err)

	s := plannedState(t, rothRequest("test_client_complete"),
		pendingTask("task_1", "Notify client", workflow.AgentAdvisor),
	)
	require.NoError(t, advisor.Step(context.Background(), s))

	assert.Equal(t, workflow.TaskFailed, s.Tasks[0].Status)
	assert.Equal(t, workflow.StatusBlocked, s.Status)
	require.Len(t, s.UnresolvedBlockers(), 1)
	assert.Contains(t, s.UnresolvedBlockers()[0], "not authorized")
}
