package validator

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wealthdesk/agentflow/workflow"
)

func rothRequest() workflow.Request {
	return workflow.Request{Type: "open_roth_ira", ClientID: "john_smith_123"}
}

func task(id, desc string, owner workflow.AgentID, deps ...string) workflow.Task {
	return workflow.Task{
		ID:           id,
		Description:  desc,
		Owner:        owner,
		Status:       workflow.TaskPending,
		Dependencies: deps,
		Priority:     workflow.PriorityHigh,
	}
}

func TestApplyKeepsCompletePlan(t *testing.T) {
	v := New()
	plan := []workflow.Task{
		task("task_1", "Verify IRA income eligibility and regulatory requirements", workflow.AgentOperations),
		task("task_2", "Send personalized IRA application form to client", workflow.AgentAdvisor, "task_1"),
		task("task_3", "Review and validate submitted IRA application for completeness", workflow.AgentOperations, "task_2"),
		task("task_4", "Open IRA account in system and generate account number", workflow.AgentOperations, "task_3"),
		task("task_5", "Notify client of successful account opening and next steps", workflow.AgentAdvisor, "task_4"),
	}

	got, changed, err := v.Apply(rothRequest(), plan)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, plan, got)
}

func TestApplyInsertsMissingAccountTask(t *testing.T) {
	v := New()
	plan := []workflow.Task{
		task("task_1", "Verify IRA income eligibility and regulatory requirements", workflow.AgentOperations),
		task("task_2", "Send personalized IRA application form to client", workflow.AgentAdvisor, "task_1"),
		task("task_3", "Review and validate submitted IRA application for completeness", workflow.AgentOperations, "task_2"),
		task("task_4", "Notify client of successful account opening and next steps", workflow.AgentAdvisor, "task_3"),
	}

	got, changed, err := v.Apply(rothRequest(), plan)
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, got, 5)

	// Inserted immediately after the last operations task, chained onto it.
	assert.Equal(t, "task_4", got[3].ID)
	assert.Equal(t, "Create roth_ira account for the client", got[3].Description)
	assert.Equal(t, workflow.AgentOperations, got[3].Owner)
	assert.Equal(t, []string{"task_3"}, got[3].Dependencies)
	assert.Equal(t, workflow.PriorityHigh, got[3].Priority)

	// The notification that waited on validation now waits on the account
	// creation instead.
	assert.Equal(t, "task_5", got[4].ID)
	assert.Equal(t, []string{"task_4"}, got[4].Dependencies)

	// Earlier tasks keep their ids and wiring.
	assert.Equal(t, "task_1", got[0].ID)
	assert.Equal(t, []string{"task_1"}, got[1].Dependencies)
	assert.Equal(t, []string{"task_2"}, got[2].Dependencies)

	require.NoError(t, workflow.ValidateTasks(got))
}

func TestApplyInsertsAtFrontWithoutOperationsTasks(t *testing.T) {
	v := New()
	plan := []workflow.Task{
		task("task_1", "Send personalized IRA application form to client", workflow.AgentAdvisor),
		task("task_2", "Notify client of successful account opening and next steps", workflow.AgentAdvisor, "task_1"),
	}

	got, changed, err := v.Apply(rothRequest(), plan)
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, got, 3)

	assert.Equal(t, "task_1", got[0].ID)
	assert.Equal(t, "Create roth_ira account for the client", got[0].Description)
	assert.Empty(t, got[0].Dependencies)

	assert.Equal(t, "task_2", got[1].ID)
	assert.Empty(t, got[1].Dependencies)
	assert.Equal(t, []string{"task_2"}, got[2].Dependencies)

	require.NoError(t, workflow.ValidateTasks(got))
}

func TestApplyRenumbersOddIDs(t *testing.T) {
	v := New()
	plan := []workflow.Task{
		task("check", "Verify IRA income eligibility and regulatory requirements", workflow.AgentOperations),
		task("tell", "Notify client of successful account opening and next steps", workflow.AgentAdvisor, "check"),
	}

	got, changed, err := v.Apply(rothRequest(), plan)
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"task_1", "task_2", "task_3"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, []string{"task_1"}, got[1].Dependencies, "synthetic chains on the eligibility check")
	assert.Equal(t, []string{"task_2"}, got[2].Dependencies, "notification rewired onto the synthetic task")
}

func TestApplyIgnoresOtherRequestFamilies(t *testing.T) {
	v := New()
	plan := []workflow.Task{
		task("task_1", "Update the client's mailing address", workflow.AgentOperations),
	}
	got, changed, err := v.Apply(workflow.Request{Type: "update_address", ClientID: "c1"}, plan)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, plan, got)
}

func TestApplyLeavesInputUntouched(t *testing.T) {
	v := New()
	plan := []workflow.Task{
		task("task_1", "Verify IRA income eligibility and regulatory requirements", workflow.AgentOperations),
		task("task_2", "Notify client of successful account opening and next steps", workflow.AgentAdvisor, "task_1"),
	}
	snapshot := []workflow.Task{
		task("task_1", "Verify IRA income eligibility and regulatory requirements", workflow.AgentOperations),
		task("task_2", "Notify client of successful account opening and next steps", workflow.AgentAdvisor, "task_1"),
	}

	_, changed, err := v.Apply(rothRequest(), plan)
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, snapshot, plan, "Apply must not mutate its input")
}

func TestApplyIsIdempotent(t *testing.T) {
	v := New()
	plan := []workflow.Task{
		task("task_1", "Verify IRA income eligibility and regulatory requirements", workflow.AgentOperations),
		task("task_2", "Notify client of successful account opening and next steps", workflow.AgentAdvisor, "task_1"),
	}

	once, changed, err := v.Apply(rothRequest(), plan)
	require.NoError(t, err)
	require.True(t, changed)

	twice, changed, err := v.Apply(rothRequest(), once)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, once, twice)
}

func TestApplyCustomRule(t *testing.T) {
	rule := Rule{
		Name:           "compliance_review",
		RequestPattern: regexp.MustCompile(`rollover`),
		TaskPattern:    regexp.MustCompile(`compliance`),
		Owner:          workflow.AgentOperations,
		MissingDescription: func(workflow.Request) string {
			return "Complete the compliance review for the rollover"
		},
	}
	v := New(rule, AccountCreationRule())
	plan := []workflow.Task{
		task("task_1", "Open rollover account for the incoming funds", workflow.AgentOperations),
	}

	got, changed, err := v.Apply(workflow.Request{Type: "account_rollover", ClientID: "c1"}, plan)
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, got, 2)
	assert.Equal(t, "Complete the compliance review for the rollover", got[1].Description)
	require.NoError(t, workflow.ValidateTasks(got))
}
