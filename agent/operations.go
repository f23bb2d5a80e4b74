package agent

import (
	"context"

	"github.com/wealthdesk/agentflow/llm"
	"github.com/wealthdesk/agentflow/tools"
	"github.com/wealthdesk/agentflow/workflow"
)

const operationsPrompt = `You are the operations agent of a financial services firm. You execute the
backend step of the workflow you are handed: eligibility checks, document
validation, account opening and record retrieval. Work only the task in the
digest. Prefer the authorized tools check_eligibility, validate_document,
get_document, open_account and get_client_info.`

// Operations executes backend-facing tasks. On a successful account opening
// it records the workflow outcome and publishes a success event.
type Operations struct {
	*worker
}

// NewOperations builds the operations agent.
func NewOperations(opts Options) (*Operations, error) {
	w, err := newWorker(workflow.AgentOperations, operationsPrompt, opts)
	if err != nil {
		return nil, err
	}
	o := &Operations{worker: w}
	w.afterTool = o.recordOutcome
	return o, nil
}

// recordOutcome captures the account details after a successful open_account
// call. The outcome is what later lets the advisor confirm the terminal
// wording of its client notification.
func (o *Operations) recordOutcome(ctx context.Context, s *workflow.State, t *workflow.Task, d *llm.Decision, res tools.Result) {
	if d.Tool != tools.ToolOpenAccount || !res.OK() {
		return
	}
	number, _ := res.Payload["account_number"].(string)
	if number == "" {
		return
	}
	accountType, _ := d.Params["account_type"].(string)
	outcome := map[string]any{
		"account_number": number,
		"account_type":   accountType,
	}
	if status, ok := res.Payload["status"].(string); ok {
		outcome["status"] = status
	}
	if createdAt, ok := res.Payload["created_at"].(string); ok {
		outcome["created_at"] = createdAt
	}
	s.SetOutcome(outcome, o.clock.Now())
	o.metrics.IncCounter("accounts_opened", 1, "account_type", accountType)
	o.pub.success(ctx, s, o.id, "Account opened", outcome)
}
