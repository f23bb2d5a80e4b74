package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/wealthdesk/agentflow/backend"
	"github.com/wealthdesk/agentflow/events"
	"github.com/wealthdesk/agentflow/llm"
	"github.com/wealthdesk/agentflow/telemetry"
	"github.com/wealthdesk/agentflow/workflow"
)

const orchestratorPrompt = `You are the orchestrator of a financial services workflow. Break the request
in the digest into an ordered task plan. Describe outcomes, never tools.
Assign backend work (eligibility, validation, account opening) to
operations_agent and client-facing work (forms, notifications) to
advisor_agent. Order tasks with dependencies so nothing client-visible runs
before its backend prerequisite.`

// ClientDirectory is the read-only client lookup the orchestrator uses to
// enrich the workflow context before planning. *backend.CRM satisfies it.
type ClientDirectory interface {
	Get(clientID string) (backend.Client, error)
}

// Orchestrator plans the task graph. It runs exactly once per workflow,
// before any worker agent, and never invokes tools: the only backend touch is
// the read-only client profile lookup.
type Orchestrator struct {
	adapter   llm.Adapter
	directory ClientDirectory
	playbook  *llm.Playbook
	pub       publisher
	clock     workflow.Clock
	log       telemetry.Logger
	metrics   telemetry.Metrics
}

// OrchestratorOptions configures the Orchestrator.
type OrchestratorOptions struct {
	// Adapter produces the plan. Required.
	Adapter llm.Adapter
	// Directory resolves the client profile at planning time. Optional; a
	// missing or unknown client leaves the context thin and the eligibility
	// check surfaces the problem during execution.
	Directory ClientDirectory
	// Bus receives llm_call events when set.
	Bus     *events.Bus
	Clock   workflow.Clock
	Logger  telemetry.Logger
	Metrics telemetry.Metrics
}

// NewOrchestrator builds the planning agent.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Adapter == nil {
		return nil, errors.New("agent: Adapter is required")
	}
	if opts.Clock == nil {
		opts.Clock = workflow.SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NoopLogger{}
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NoopMetrics{}
	}
	return &Orchestrator{
		adapter:   opts.Adapter,
		directory: opts.Directory,
		playbook:  llm.NewPlaybook(),
		pub:       publisher{bus: opts.Bus},
		clock:     opts.Clock,
		log:       opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

// ID implements Agent.
func (o *Orchestrator) ID() workflow.AgentID { return workflow.AgentOrchestrator }

// Step populates the task graph and moves the workflow to in_progress. An
// unusable plan from the adapter falls back to the deterministic template
// plan; only a plan that is still invalid after the fallback fails planning.
func (o *Orchestrator) Step(ctx context.Context, s *workflow.State) error {
	if len(s.Tasks) > 0 {
		return fmt.Errorf("agent: workflow %s is already planned", s.WorkflowID)
	}
	o.enrichContext(ctx, s)

	digest := llm.DigestForPlan(s)
	o.pub.llmCall(ctx, s, o.ID(), events.LLMCallPayload{Phase: "begin"})
	d, err := o.adapter.Infer(ctx, llm.RolePlanner, orchestratorPrompt, digest)
	if err != nil {
		return err
	}
	o.pub.llmCall(ctx, s, o.ID(), events.LLMCallPayload{
		Phase:     "end",
		LatencyMS: d.Latency.Milliseconds(),
		Cached:    d.Cached,
		Fallback:  d.Fallback,
	})

	tasks, err := NormalizePlan(d.Tasks)
	if err != nil {
		o.log.Warn(ctx, "plan rejected, using template plan",
			"workflow_id", s.WorkflowID, "err", err)
		o.pub.logf(ctx, s, o.ID(), "planner decision rejected; template plan substituted",
			map[string]any{"reason": err.Error()})
		fd, ferr := o.playbook.Infer(ctx, llm.RolePlanner, orchestratorPrompt, digest)
		if ferr != nil {
			return ferr
		}
		d = fd
		if tasks, err = NormalizePlan(d.Tasks); err != nil {
			return fmt.Errorf("agent: template plan is invalid: %w", err)
		}
	}

	now := o.clock.Now()
	s.Tasks = tasks
	s.Status = workflow.StatusInProgress
	s.AppendDecision(o.ID(), fmt.Sprintf("planned %d tasks", len(tasks)), d.Reasoning, now)
	o.metrics.IncCounter("plans_produced", 1, "tasks", fmt.Sprint(len(tasks)))
	return nil
}

// enrichContext loads the client profile into the workflow context. Failure
// is deliberately non-fatal.
func (o *Orchestrator) enrichContext(ctx context.Context, s *workflow.State) {
	if o.directory == nil {
		return
	}
	client, err := o.directory.Get(s.Request.ClientID)
	if err != nil {
		o.log.Debug(ctx, "client profile unavailable at planning time",
			"client_id", s.Request.ClientID, "err", err)
		return
	}
	if s.Request.ClientName == "" {
		s.Request.ClientName = client.Name
	}
	s.Context["client_profile"] = map[string]any{
		"name":              client.Name,
		"age":               client.Age,
		"email":             client.Email,
		"income":            client.Income,
		"existing_accounts": client.ExistingAccounts,
	}
	s.Touch(o.clock.Now())
}

// NormalizePlan converts a planner decision into the canonical task list:
// owners validated against the worker roles, ids renumbered sequentially with
// dependency references remapped, priorities defaulted to normal, and the
// dependency graph checked for cycles. A cyclic or malformed plan fails.
func NormalizePlan(planned []llm.PlannedTask) ([]workflow.Task, error) {
	if len(planned) == 0 {
		return nil, errors.New("agent: plan carries no tasks")
	}
	idMap := make(map[string]string, len(planned))
	for i, pt := range planned {
		if pt.ID == "" {
			return nil, fmt.Errorf("agent: planned task %d has no id", i+1)
		}
		if _, dup := idMap[pt.ID]; dup {
			return nil, fmt.Errorf("agent: duplicate planned task id %s", pt.ID)
		}
		idMap[pt.ID] = fmt.Sprintf("task_%d", i+1)
	}

	tasks := make([]workflow.Task, 0, len(planned))
	for i, pt := range planned {
		if pt.Description == "" {
			return nil, fmt.Errorf("agent: planned task %s has no description", pt.ID)
		}
		owner := workflow.AgentID(pt.Owner)
		if owner != workflow.AgentOperations && owner != workflow.AgentAdvisor {
			return nil, fmt.Errorf("agent: planned task %s has unknown owner %q", pt.ID, pt.Owner)
		}
		var deps []string
		for _, dep := range pt.Dependencies {
			mapped, ok := idMap[dep]
			if !ok {
				return nil, fmt.Errorf("agent: planned task %s depends on unknown task %s", pt.ID, dep)
			}
			deps = append(deps, mapped)
		}
		tasks = append(tasks, workflow.Task{
			ID:           fmt.Sprintf("task_%d", i+1),
			Description:  pt.Description,
			Owner:        owner,
			Status:       workflow.TaskPending,
			Dependencies: deps,
			Priority:     normalizePriority(pt.Priority),
		})
	}
	if err := workflow.ValidateTasks(tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func normalizePriority(p string) workflow.Priority {
	switch workflow.Priority(p) {
	case workflow.PriorityLow, workflow.PriorityNormal, workflow.PriorityHigh:
		return workflow.Priority(p)
	}
	return workflow.PriorityNormal
}
