package agent

import (
	"context"
	"regexp"

	"github.com/wealthdesk/agentflow/llm"
	"github.com/wealthdesk/agentflow/tools"
	"github.com/wealthdesk/agentflow/workflow"
)

const advisorPrompt = `You are the client advisor of a financial services firm. You execute the
client-facing step of the workflow you are handed: preparing and sending
application forms, notifications and status updates. Work only the task in
the digest. Prefer the authorized tools create_document, update_document,
send_notification and get_client_info. Never tell a client an account exists
unless the workflow outcome confirms it.`

// terminalClaim matches notification wording that asserts a finished outcome.
var terminalClaim = regexp.MustCompile(`(?i)successfully opened|has been opened|has been created|account is (?:now )?(?:open|active)|congratulations`)

// Advisor executes client-facing tasks. Before sending a notification that
// claims a terminal outcome it verifies the outcome actually exists on the
// state and otherwise downgrades the wording to an in-progress update.
type Advisor struct {
	*worker
}

// NewAdvisor builds the advisor agent.
func NewAdvisor(opts Options) (*Advisor, error) {
	w, err := newWorker(workflow.AgentAdvisor, advisorPrompt, opts)
	if err != nil {
		return nil, err
	}
	a := &Advisor{worker: w}
	w.beforeTool = a.verifyOutcomeClaims
	return a, nil
}

// verifyOutcomeClaims enforces the state-verification rule: the model may
// phrase a notification as if the account were already open while the
// workflow has no recorded outcome. Such content is replaced with the
// in-progress letter before the notification is sent.
func (a *Advisor) verifyOutcomeClaims(ctx context.Context, s *workflow.State, t *workflow.Task, d *llm.Decision) {
	if d.Tool != tools.ToolSendNotification {
		return
	}
	content, _ := d.Params["content"].(string)
	if content == "" || !terminalClaim.MatchString(content) {
		return
	}
	if number, _ := s.Outcome["account_number"].(string); number != "" {
		return
	}
	downgraded := llm.StatusUpdateLetter(s.Request.ClientName)
	d.Params["content"] = downgraded
	if d.MessageToClient != "" {
		d.MessageToClient = downgraded
	}
	a.log.Warn(ctx, "downgraded unverified terminal notification",
		"agent", string(a.id), "task", t.ID, "workflow_id", s.WorkflowID)
	a.pub.logf(ctx, s, a.id, "notification claimed an outcome the workflow has not recorded; wording downgraded",
		map[string]any{"task_id": t.ID})
}
