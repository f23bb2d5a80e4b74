package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/wealthdesk/agentflow/tools"
	"github.com/wealthdesk/agentflow/workflow"
)

// Playbook is a deterministic Adapter: template plans per request family and
// keyword-driven tool selection for worker turns. It backs tests and the
// demo, and serves as the ModelAdapter's planning fallback.
type Playbook struct{}

// NewPlaybook returns a ready Playbook.
func NewPlaybook() *Playbook { return &Playbook{} }

// Infer implements Adapter. The prompt is ignored; decisions derive solely
// from the digest.
func (p *Playbook) Infer(ctx context.Context, role Role, prompt string, digest Digest) (*Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch role {
	case RolePlanner:
		return p.plan(digest), nil
	case RoleWorker:
		return p.workerDecision(digest)
	}
	return nil, fmt.Errorf("llm: playbook has no rules for role %q", role)
}

// accountFamily matches request types the IRA account template applies to.
func accountFamily(requestType string) bool {
	rt := strings.ToLower(requestType)
	return strings.Contains(rt, "ira") || strings.Contains(rt, "account")
}

func (p *Playbook) plan(digest Digest) *Decision {
	if !accountFamily(digest.RequestType) {
		return &Decision{
			Tasks: []PlannedTask{
				{
					ID:          "task_1",
					Description: "Confirm the request details against the client profile",
					Owner:       string(workflow.AgentOperations),
					Priority:    string(workflow.PriorityHigh),
				},
				{
					ID:           "task_2",
					Description:  "Notify the client that their request was received",
					Owner:        string(workflow.AgentAdvisor),
					Dependencies: []string{"task_1"},
					Priority:     string(workflow.PriorityNormal),
				},
			},
			Reasoning: fmt.Sprintf("No template exists for %s; planned a minimal review-and-notify sequence", digest.RequestType),
		}
	}
	ops := string(workflow.AgentOperations)
	advisor := string(workflow.AgentAdvisor)
	high := string(workflow.PriorityHigh)
	return &Decision{
		Tasks: []PlannedTask{
			{
				ID:          "task_1",
				Description: "Verify IRA income eligibility and regulatory requirements",
				Owner:       ops,
				Priority:    high,
			},
			{
				ID:           "task_2",
				Description:  "Send personalized IRA application form to client",
				Owner:        advisor,
				Dependencies: []string{"task_1"},
				Priority:     high,
			},
			{
				ID:           "task_3",
				Description:  "Review and validate submitted IRA application for completeness",
				Owner:        ops,
				Dependencies: []string{"task_2"},
				Priority:     high,
			},
			{
				ID:           "task_4",
				Description:  "Open IRA account in system and generate account number",
				Owner:        ops,
				Dependencies: []string{"task_3"},
				Priority:     high,
			},
			{
				ID:           "task_5",
				Description:  "Notify client of successful account opening and next steps",
				Owner:        advisor,
				Dependencies: []string{"task_4"},
				Priority:     high,
			},
		},
		Reasoning: fmt.Sprintf("Standard IRA opening sequence for %s: eligibility, application, validation, account opening, client notification", digest.RequestType),
	}
}

// openAccountPattern matches descriptions that ask for an account to be
// opened or created. Word order matters: "account opening" in a notification
// description must not match.
var openAccountPattern = regexp.MustCompile(`(open|create).*account`)

// workerDecision selects the tool for the task in the digest. Rules apply in
// order and the first match wins.
func (p *Playbook) workerDecision(digest Digest) (*Decision, error) {
	task := digest.Task
	if task == nil {
		return nil, errors.New("llm: worker digest carries no task")
	}
	desc := strings.ToLower(task.Description)
	accountType := workflow.AccountTypeFor(digest.RequestType)
	switch {
	case strings.Contains(desc, "verify") || strings.Contains(desc, "eligib"):
		return &Decision{
			Tool: tools.ToolCheckEligibility,
			Params: map[string]any{
				"client_id":    digest.ClientID,
				"product_type": accountType,
			},
			TaskStatus: "completed",
			Reasoning:  fmt.Sprintf("Income eligibility must be confirmed before a %s can be opened", AccountTypeLabel(accountType)),
		}, nil
	case strings.Contains(desc, "validate") || strings.Contains(desc, "review"):
		docType := docTypeFor(desc)
		return &Decision{
			Tool: tools.ToolValidateDocument,
			Params: map[string]any{
				"client_id": digest.ClientID,
				"doc_type":  docType,
			},
			TaskStatus: "completed",
			Reasoning:  fmt.Sprintf("The %s must pass validation before processing continues", docType),
		}, nil
	case openAccountPattern.MatchString(desc):
		return &Decision{
			Tool: tools.ToolOpenAccount,
			Params: map[string]any{
				"client_id":    digest.ClientID,
				"account_type": accountType,
			},
			TaskStatus: "completed",
			Reasoning:  "All prerequisites are complete; opening the account in the system",
		}, nil
	case strings.Contains(desc, "form") || strings.Contains(desc, "application"):
		name := displayName(digest.ClientName)
		return &Decision{
			Tool: tools.ToolCreateDocument,
			Params: map[string]any{
				"client_id": digest.ClientID,
				"doc_type":  "enrollment_form",
				"data": map[string]any{
					"client_name":  name,
					"account_type": accountType,
					"status":       "sent",
					"prefilled":    true,
				},
			},
			TaskStatus:      "completed",
			MessageToClient: FormLetter(digest.ClientName),
			Result:          fmt.Sprintf("Sent IRA application form to %s", name),
			Reasoning:       "Client is existing customer, pre-filled form with known details for better experience",
		}, nil
	case strings.Contains(desc, "notify") || strings.Contains(desc, "send"):
		name := displayName(digest.ClientName)
		var content string
		switch {
		case outcomeAccountNumber(digest.Outcome) != "":
			content = AccountOpenedLetter(digest.ClientName, accountType, outcomeAccountNumber(digest.Outcome))
		case accountFamily(digest.RequestType):
			content = StatusUpdateLetter(digest.ClientName)
		default:
			content = fmt.Sprintf("Dear %s,\n\nWe have received your %s request and will follow up as soon as it has been processed.\n\nBest regards,\nYour Financial Advisor", name, digest.RequestType)
		}
		return &Decision{
			Tool: tools.ToolSendNotification,
			Params: map[string]any{
				"client_id": digest.ClientID,
				"type":      "status_update",
				"content":   content,
			},
			TaskStatus:      "completed",
			MessageToClient: content,
			Result:          fmt.Sprintf("Sent status update to %s", name),
			Reasoning:       "Keeping the client informed of where their request stands",
		}, nil
	}
	return &Decision{
		TaskStatus: "completed",
		Result:     fmt.Sprintf("Completed: %s", task.Description),
		Reasoning:  "Task requires no backend tool",
	}, nil
}

// docTypeFor maps a validation task description onto the document to check.
func docTypeFor(desc string) string {
	switch {
	case strings.Contains(desc, "tax") || strings.Contains(desc, "income") || strings.Contains(desc, "return"):
		return "tax_return_2023"
	case strings.Contains(desc, "driver") || strings.Contains(desc, "license"):
		return "drivers_license"
	}
	return "ira_application"
}

func outcomeAccountNumber(outcome map[string]any) string {
	if outcome == nil {
		return ""
	}
	acct, _ := outcome["account_number"].(string)
	return acct
}
