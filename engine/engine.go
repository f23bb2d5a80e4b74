// Package engine drives workflows from request to terminal state. The Engine
// owns the executor loop: it plans through the orchestrator, repairs the plan
// through the validator, then alternates routing and single-task agent turns
// until the workflow completes, blocks, fails, or exhausts its step budget.
// Each workflow runs on its own goroutine and owns its state exclusively;
// observers follow along on the event bus.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wealthdesk/agentflow/agent"
	"github.com/wealthdesk/agentflow/events"
	"github.com/wealthdesk/agentflow/llm"
	"github.com/wealthdesk/agentflow/telemetry"
	"github.com/wealthdesk/agentflow/tools"
	"github.com/wealthdesk/agentflow/validator"
	"github.com/wealthdesk/agentflow/workflow"
)

// DefaultMaxSteps bounds agent invocations per workflow, planning included.
// It comfortably exceeds the sample plans (five to six tasks) while stopping
// runaway decision loops.
const DefaultMaxSteps = 50

type (
	// Options configures an Engine. Adapter and Registry are required; the
	// rest defaults to working in-process implementations.
	Options struct {
		// Adapter produces agent decisions. Required.
		Adapter llm.Adapter
		// Registry executes tool calls. Required.
		Registry *tools.Registry
		// Directory resolves client profiles at planning time. Optional;
		// typically the CRM backend.
		Directory agent.ClientDirectory
		// Bus carries engine events. Defaults to a new bus with default
		// buffering.
		Bus *events.Bus
		// Validator repairs plans after the orchestrator. Defaults to the
		// account-creation rule set.
		Validator *validator.Validator
		// Clock stamps state mutations and events. Defaults to system clock.
		Clock workflow.Clock
		// MaxSteps bounds agent invocations per workflow. Defaults to 50.
		MaxSteps int
		Logger   telemetry.Logger
		Metrics  telemetry.Metrics
		Tracer   telemetry.Tracer
	}

	// Engine starts, tracks and cancels workflows.
	Engine struct {
		store     *workflow.Store
		bus       *events.Bus
		validator *validator.Validator
		clock     workflow.Clock
		maxSteps  int
		log       telemetry.Logger
		metrics   telemetry.Metrics
		tracer    telemetry.Tracer

		orchestrator *agent.Orchestrator
		agents       map[workflow.AgentID]agent.Agent

		mu   sync.Mutex
		runs map[string]*Run
	}

	// Run is the handle for one started workflow: its id, its event
	// subscription, and completion signaling.
	Run struct {
		// WorkflowID identifies the workflow.
		WorkflowID string
		// Events streams the workflow's events until workflow_complete.
		Events *events.Subscription

		cancel context.CancelFunc
		done   chan struct{}
		state  *workflow.State
		err    error
	}
)

// New validates the options and builds an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Adapter == nil {
		return nil, errors.New("engine: Adapter is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("engine: Registry is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = workflow.SystemClock()
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.New(events.Options{Clock: clock})
	}
	v := opts.Validator
	if v == nil {
		v = validator.New()
	}
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NoopMetrics{}
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NoopTracer{}
	}

	orchestrator, err := agent.NewOrchestrator(agent.OrchestratorOptions{
		Adapter:   opts.Adapter,
		Directory: opts.Directory,
		Bus:       bus,
		Clock:     clock,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		return nil, err
	}
	workerOpts := agent.Options{
		Adapter:  opts.Adapter,
		Registry: opts.Registry,
		Bus:      bus,
		Clock:    clock,
		Logger:   logger,
		Metrics:  metrics,
	}
	operations, err := agent.NewOperations(workerOpts)
	if err != nil {
		return nil, err
	}
	advisor, err := agent.NewAdvisor(workerOpts)
	if err != nil {
		return nil, err
	}

	return &Engine{
		store:        workflow.NewStore(clock),
		bus:          bus,
		validator:    v,
		clock:        clock,
		maxSteps:     maxSteps,
		log:          logger,
		metrics:      metrics,
		tracer:       tracer,
		orchestrator: orchestrator,
		agents: map[workflow.AgentID]agent.Agent{
			workflow.AgentOperations: operations,
			workflow.AgentAdvisor:    advisor,
		},
		runs: make(map[string]*Run),
	}, nil
}

// Bus returns the event bus so additional observers can subscribe before or
// while workflows run.
func (e *Engine) Bus() *events.Bus { return e.bus }

// Start creates a workflow for the request and launches its executor
// goroutine. The returned Run is already subscribed to the workflow's event
// stream, so the caller observes every event from workflow_start on.
func (e *Engine) Start(ctx context.Context, req workflow.Request) (*Run, error) {
	if req.Type == "" {
		return nil, errors.New("engine: request type is required")
	}
	if req.ClientID == "" {
		return nil, errors.New("engine: request client id is required")
	}

	state := e.store.Create(req)
	// The run context derives from the caller's so cancelling either the
	// caller or the run handle stops the workflow at its next suspension
	// point.
	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{
		WorkflowID: state.WorkflowID,
		Events:     e.bus.Subscribe(state.WorkflowID),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	e.mu.Lock()
	e.runs[state.WorkflowID] = run
	e.mu.Unlock()

	go e.execute(runCtx, state, run)
	return run, nil
}

// Cancel requests cancellation of a running workflow. It reports whether the
// workflow was known; cancellation of an already finished workflow is a
// harmless no-op.
func (e *Engine) Cancel(workflowID string) bool {
	e.mu.Lock()
	run, ok := e.runs[workflowID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	run.cancel()
	return true
}

// Wait blocks until the workflow reaches its terminal state or the given
// context expires, returning the final state document.
func (r *Run) Wait(ctx context.Context) (*workflow.State, error) {
	select {
	case <-r.done:
		return r.state, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// execute is the executor loop. It owns the state exclusively; every
// mutation and event publication happens in program order on this goroutine.
func (e *Engine) execute(ctx context.Context, s *workflow.State, run *Run) {
	ctx = events.WithWorkflowID(ctx, s.WorkflowID)
	ctx, span := e.tracer.Start(ctx, "workflow.execute")
	defer span.End()
	defer func() {
		e.mu.Lock()
		delete(e.runs, s.WorkflowID)
		e.mu.Unlock()
		run.state = s
		close(run.done)
	}()

	e.metrics.IncCounter("workflows_started", 1, "request_type", s.Request.Type)
	e.log.Info(ctx, "workflow started",
		"workflow_id", s.WorkflowID, "request_type", s.Request.Type, "client_id", s.Request.ClientID)
	e.bus.Publish(ctx, events.Event{
		Type:       events.TypeWorkflowStart,
		WorkflowID: s.WorkflowID,
		Payload:    events.WorkflowStartPayload{Request: s.Request},
	})

	steps := 1 // planning counts against the budget
	if err := e.orchestrator.Step(ctx, s); err != nil {
		e.terminate(ctx, s, err)
		e.complete(ctx, s)
		return
	}
	if err := e.applyValidator(ctx, s); err != nil {
		e.terminate(ctx, s, err)
		e.complete(ctx, s)
		return
	}
	e.announcePlan(ctx, s)

	for {
		if ctx.Err() != nil {
			e.cancelled(ctx, s)
			break
		}
		decision, err := Route(s, e.clock.Now())
		if err != nil {
			e.terminate(ctx, s, err)
			break
		}
		e.bus.Publish(ctx, events.Event{
			Type:       events.TypeRouting,
			WorkflowID: s.WorkflowID,
			Agent:      string(supervisor),
			Payload: events.RoutingPayload{
				Next:   string(decision.Next),
				Done:   decision.Done,
				Reason: decision.Reason,
			},
		})
		if decision.Done {
			break
		}
		if steps >= e.maxSteps {
			now := e.clock.Now()
			s.AddBlocker(fmt.Sprintf("step budget exhausted after %d agent invocations", steps), supervisor, now)
			s.Status = workflow.StatusFailed
			s.Touch(now)
			e.log.Warn(ctx, "step budget exhausted", "workflow_id", s.WorkflowID, "steps", steps)
			break
		}
		next, ok := e.agents[decision.Next]
		if !ok {
			e.terminate(ctx, s, fmt.Errorf("engine: no agent registered for %s", decision.Next))
			break
		}
		steps++
		if err := next.Step(ctx, s); err != nil {
			if ctx.Err() != nil {
				e.cancelled(ctx, s)
			} else {
				e.terminate(ctx, s, err)
			}
			break
		}
	}

	e.complete(ctx, s)
}

// applyValidator repairs the freshly planned task list and reports the
// repair on the stream.
func (e *Engine) applyValidator(ctx context.Context, s *workflow.State) error {
	tasks, changed, err := e.validator.Apply(s.Request, s.Tasks)
	if err != nil {
		return err
	}
	if changed {
		s.Tasks = tasks
		s.Touch(e.clock.Now())
		e.log.Info(ctx, "validator repaired plan", "workflow_id", s.WorkflowID, "tasks", len(tasks))
		e.bus.Publish(ctx, events.Event{
			Type:       events.TypeLog,
			WorkflowID: s.WorkflowID,
			Agent:      string(supervisor),
			Payload: events.LogPayload{
				Message: "plan was missing a required step; a synthetic task was inserted",
				Fields:  map[string]any{"tasks": len(tasks)},
			},
		})
	}
	return nil
}

// announcePlan publishes one task_update per planned task so subscribers see
// the full graph before execution begins.
func (e *Engine) announcePlan(ctx context.Context, s *workflow.State) {
	for i := range s.Tasks {
		t := &s.Tasks[i]
		e.bus.Publish(ctx, events.Event{
			Type:       events.TypeTaskUpdate,
			WorkflowID: s.WorkflowID,
			Agent:      string(t.Owner),
			Payload: events.TaskUpdatePayload{
				TaskID:       t.ID,
				Status:       string(t.Status),
				Owner:        string(t.Owner),
				Description:  t.Description,
				Dependencies: t.Dependencies,
			},
		})
	}
}

// terminate handles internal errors: they are published as non-recoverable
// error events and fail the workflow.
func (e *Engine) terminate(ctx context.Context, s *workflow.State, err error) {
	now := e.clock.Now()
	e.log.Error(ctx, "workflow terminated", "workflow_id", s.WorkflowID, "err", err)
	e.bus.Publish(ctx, events.Event{
		Type:       events.TypeError,
		WorkflowID: s.WorkflowID,
		Payload:    events.ErrorPayload{Message: err.Error(), Recoverable: false},
	})
	if !s.Status.Terminal() {
		s.AddBlocker(fmt.Sprintf("internal error: %v", err), supervisor, now)
		s.Status = workflow.StatusFailed
		s.Touch(now)
	}
}

// cancelled applies the cancellation contract: fail the workflow with a
// "cancelled" blocker. Results of any in-flight work are left as they
// landed; nothing is rolled back.
func (e *Engine) cancelled(ctx context.Context, s *workflow.State) {
	if s.Status.Terminal() {
		return
	}
	now := e.clock.Now()
	s.AddBlocker("cancelled", supervisor, now)
	s.Status = workflow.StatusFailed
	s.Touch(now)
	e.log.Info(ctx, "workflow cancelled", "workflow_id", s.WorkflowID)
}

// complete publishes the terminal event. The bus closes the workflow's
// subscriptions once it is delivered.
func (e *Engine) complete(ctx context.Context, s *workflow.State) {
	// Subscribers rely on workflow_complete to observe end-of-stream, so the
	// terminal publish must survive run-context cancellation.
	ctx = context.WithoutCancel(ctx)
	e.metrics.IncCounter("workflows_finished", 1, "status", string(s.Status))
	e.log.Info(ctx, "workflow finished",
		"workflow_id", s.WorkflowID, "status", string(s.Status),
		"tasks_completed", s.CompletedCount(), "total_tasks", len(s.Tasks))
	e.bus.Publish(ctx, events.Event{
		Type:       events.TypeWorkflowComplete,
		WorkflowID: s.WorkflowID,
		Payload: events.WorkflowCompletePayload{
			Status:         string(s.Status),
			Outcome:        s.Outcome,
			TasksCompleted: s.CompletedCount(),
			TotalTasks:     len(s.Tasks),
			Blockers:       s.UnresolvedBlockers(),
		},
	})
}
