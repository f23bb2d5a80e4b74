// Package validator checks freshly planned task graphs against
// per-request-family completeness rules and repairs plans that miss a
// required step. Rules describe what must exist in a plan, never which tool
// runs; planners stay free to phrase and order the rest however they like.
package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wealthdesk/agentflow/workflow"
)

type (
	// Rule requires that plans for matching requests contain at least one
	// task with a matching description under the given owner. Patterns are
	// matched against lowercased text.
	Rule struct {
		// Name identifies the rule.
		Name string
		// RequestPattern selects the request families the rule applies to.
		RequestPattern *regexp.Regexp
		// TaskPattern must match some task description owned by Owner.
		TaskPattern *regexp.Regexp
		// Owner is the agent the matching task must belong to.
		Owner workflow.AgentID
		// MissingDescription phrases the synthetic task inserted when no
		// task matches.
		MissingDescription func(req workflow.Request) string
	}

	// Validator applies its rules to a plan once, immediately after
	// planning.
	Validator struct {
		rules []Rule
	}
)

// AccountCreationRule is the default rule: any IRA or account request must
// plan an operations-owned task that opens or creates the account.
func AccountCreationRule() Rule {
	return Rule{
		Name:           "account_creation",
		RequestPattern: regexp.MustCompile(`ira|account`),
		TaskPattern:    regexp.MustCompile(`(open|create).*account`),
		Owner:          workflow.AgentOperations,
		MissingDescription: func(req workflow.Request) string {
			return fmt.Sprintf("Create %s account for the client", workflow.AccountTypeFor(req.Type))
		},
	}
}

// New builds a Validator. With no rules it applies AccountCreationRule.
func New(rules ...Rule) *Validator {
	if len(rules) == 0 {
		rules = []Rule{AccountCreationRule()}
	}
	return &Validator{rules: rules}
}

// Apply checks every applicable rule and inserts the synthetic task each
// unmet rule prescribes. The input slice is never mutated; when nothing is
// missing it is returned unchanged with changed false. Applying the result
// again is a no-op.
func (v *Validator) Apply(req workflow.Request, tasks []workflow.Task) ([]workflow.Task, bool, error) {
	out := tasks
	changed := false
	for _, rule := range v.rules {
		if rule.RequestPattern == nil || !rule.RequestPattern.MatchString(strings.ToLower(req.Type)) {
			continue
		}
		if satisfied(out, rule) {
			continue
		}
		out = insertRequired(out, rule, req)
		changed = true
	}
	if changed {
		if err := workflow.ValidateTasks(out); err != nil {
			return nil, false, fmt.Errorf("validator: repaired plan is invalid: %w", err)
		}
	}
	return out, changed, nil
}

func satisfied(tasks []workflow.Task, rule Rule) bool {
	for _, t := range tasks {
		if t.Owner == rule.Owner && rule.TaskPattern.MatchString(strings.ToLower(t.Description)) {
			return true
		}
	}
	return false
}

// insertRequired places the synthetic task immediately after the last task
// the rule's owner already has, chains it onto that task, renumbers ids
// sequentially, and points later tasks that waited on the anchor at the
// inserted task instead.
func insertRequired(tasks []workflow.Task, rule Rule, req workflow.Request) []workflow.Task {
	pos := 0
	anchorID := ""
	for i, t := range tasks {
		if t.Owner == rule.Owner {
			pos = i + 1
			anchorID = t.ID
		}
	}

	oldToNew := make(map[string]string, len(tasks))
	for i, t := range tasks {
		n := i + 1
		if i >= pos {
			n = i + 2
		}
		oldToNew[t.ID] = fmt.Sprintf("task_%d", n)
	}
	syntheticID := fmt.Sprintf("task_%d", pos+1)

	remap := func(deps []string, rewireAnchor bool) []string {
		if deps == nil {
			return nil
		}
		out := make([]string, len(deps))
		for i, dep := range deps {
			switch {
			case rewireAnchor && anchorID != "" && dep == anchorID:
				out[i] = syntheticID
			default:
				mapped, ok := oldToNew[dep]
				if !ok {
					mapped = dep
				}
				out[i] = mapped
			}
		}
		return out
	}

	out := make([]workflow.Task, 0, len(tasks)+1)
	for _, t := range tasks[:pos] {
		nt := t
		nt.ID = oldToNew[t.ID]
		nt.Dependencies = remap(t.Dependencies, false)
		out = append(out, nt)
	}

	synthetic := workflow.Task{
		ID:          syntheticID,
		Description: rule.MissingDescription(req),
		Owner:       rule.Owner,
		Status:      workflow.TaskPending,
		Priority:    workflow.PriorityHigh,
	}
	if anchorID != "" {
		synthetic.Dependencies = []string{oldToNew[anchorID]}
	}
	out = append(out, synthetic)

	for _, t := range tasks[pos:] {
		nt := t
		nt.ID = oldToNew[t.ID]
		nt.Dependencies = remap(t.Dependencies, true)
		out = append(out, nt)
	}
	return out
}
