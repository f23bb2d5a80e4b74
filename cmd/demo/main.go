// Command demo runs the sample workflow scenarios against the built-in
// fixtures and streams every engine event to the terminal. Decisions come
// from the deterministic playbook unless ANTHROPIC_API_KEY or OPENAI_API_KEY
// is set, in which case the matching hosted model drives the agents.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"goa.design/clue/log"

	"github.com/wealthdesk/agentflow/audit"
	"github.com/wealthdesk/agentflow/backend"
	"github.com/wealthdesk/agentflow/engine"
	"github.com/wealthdesk/agentflow/events"
	"github.com/wealthdesk/agentflow/llm"
	"github.com/wealthdesk/agentflow/model"
	"github.com/wealthdesk/agentflow/model/anthropic"
	"github.com/wealthdesk/agentflow/model/openai"
	"github.com/wealthdesk/agentflow/telemetry"
	"github.com/wealthdesk/agentflow/tools"
	"github.com/wealthdesk/agentflow/workflow"
)

// scenario is one entry of the demo catalog.
type scenario struct {
	name        string
	requestType string
	clientID    string
}

var catalog = []scenario{
	{name: "roth", requestType: "open_roth_ira", clientID: "john_smith_123"},
	{name: "traditional", requestType: "open_traditional_ira", clientID: "test_client_complete"},
	{name: "rollover", requestType: "account_rollover", clientID: "rachel_kim_452"},
}

func main() {
	var (
		scenarioName = flag.String("scenario", "all", "scenario to run: roth, traditional, rollover or all")
		clientID     = flag.String("client", "", "override the scenario's client id")
		fixturesPath = flag.String("fixtures", "", "YAML fixture file; empty uses the built-in dataset")
		auditPath    = flag.String("audit", "", "append successful account creations to this CSV file")
		timeout      = flag.Duration("timeout", 2*time.Minute, "per-workflow deadline")
		debug        = flag.Bool("debug", false, "log debug events")
	)
	flag.Parse()

	ctx := log.Context(context.Background(), log.WithFormat(log.FormatTerminal))
	if *debug {
		ctx = log.Context(ctx, log.WithDebug())
	}

	if err := run(ctx, *scenarioName, *clientID, *fixturesPath, *auditPath, *timeout); err != nil {
		log.Errorf(ctx, err, "demo failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, scenarioName, clientOverride, fixturesPath, auditPath string, timeout time.Duration) error {
	scenarios, err := selectScenarios(scenarioName)
	if err != nil {
		return err
	}

	fx := backend.DefaultFixtures()
	if fixturesPath != "" {
		f, err := os.Open(fixturesPath)
		if err != nil {
			return fmt.Errorf("open fixtures: %w", err)
		}
		fx, err = backend.LoadFixtures(f)
		f.Close()
		if err != nil {
			return err
		}
	}

	logger := telemetry.NewClueLogger()
	bus := events.New(events.Options{Policy: events.PolicyDropNonCritical})
	backends, err := backend.New(fx, backend.Options{Bus: bus})
	if err != nil {
		return err
	}
	registry, err := tools.New(tools.Options{Backends: backends, Bus: bus, Logger: logger})
	if err != nil {
		return err
	}
	adapter, err := buildAdapter(ctx, logger)
	if err != nil {
		return err
	}
	eng, err := engine.New(engine.Options{
		Adapter:   adapter,
		Registry:  registry,
		Directory: backends.CRM,
		Bus:       bus,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	var auditWriter *audit.Writer
	if auditPath != "" {
		f, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		defer f.Close()
		auditWriter = audit.NewWriter(f)
	}

	for _, sc := range scenarios {
		clientID := sc.clientID
		if clientOverride != "" {
			clientID = clientOverride
		}
		if err := runScenario(ctx, eng, auditWriter, sc, clientID, timeout); err != nil {
			return err
		}
	}

	log.Print(ctx, log.KV{K: "msg", V: "accounts on file"})
	for _, acct := range backends.Accounts.List() {
		log.Print(ctx,
			log.KV{K: "account_number", V: acct.Number},
			log.KV{K: "client_id", V: acct.ClientID},
			log.KV{K: "type", V: acct.Type},
			log.KV{K: "status", V: acct.Status},
		)
	}
	return nil
}

func runScenario(ctx context.Context, eng *engine.Engine, auditWriter *audit.Writer, sc scenario, clientID string, timeout time.Duration) error {
	log.Print(ctx, log.KV{K: "scenario", V: sc.name}, log.KV{K: "request_type", V: sc.requestType}, log.KV{K: "client_id", V: clientID})

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	run, err := eng.Start(runCtx, workflow.Request{Type: sc.requestType, ClientID: clientID, Initiator: "demo"})
	if err != nil {
		return err
	}

	auditDone := make(chan struct{})
	if auditWriter != nil {
		sub := eng.Bus().Subscribe(run.WorkflowID)
		go func() {
			defer close(auditDone)
			if err := auditWriter.Follow(sub); err != nil {
				log.Errorf(ctx, err, "audit log")
			}
		}()
	} else {
		close(auditDone)
	}

	for e := range run.Events.Events() {
		printEvent(ctx, e)
	}
	state, err := run.Wait(runCtx)
	if err != nil {
		return err
	}
	<-auditDone

	kvs := []log.Fielder{
		log.KV{K: "scenario", V: sc.name},
		log.KV{K: "status", V: string(state.Status)},
		log.KV{K: "tasks_completed", V: state.CompletedCount()},
		log.KV{K: "total_tasks", V: len(state.Tasks)},
	}
	if number, ok := state.Outcome["account_number"].(string); ok {
		kvs = append(kvs, log.KV{K: "account_number", V: number})
	}
	for _, b := range state.UnresolvedBlockers() {
		kvs = append(kvs, log.KV{K: "blocker", V: b})
	}
	log.Print(ctx, kvs...)
	return nil
}

// buildAdapter picks the decision source: a hosted model when an API key is
// configured, the deterministic playbook otherwise.
func buildAdapter(ctx context.Context, logger telemetry.Logger) (llm.Adapter, error) {
	var client model.Client
	switch {
	case os.Getenv("ANTHROPIC_API_KEY") != "":
		c, err := anthropic.NewFromAPIKey(os.Getenv("ANTHROPIC_API_KEY"), "claude-sonnet-4-20250514")
		if err != nil {
			return nil, err
		}
		client = c
		log.Print(ctx, log.KV{K: "msg", V: "decisions via Anthropic"})
	case os.Getenv("OPENAI_API_KEY") != "":
		c, err := openai.NewFromAPIKey(os.Getenv("OPENAI_API_KEY"), "gpt-4o")
		if err != nil {
			return nil, err
		}
		client = c
		log.Print(ctx, log.KV{K: "msg", V: "decisions via OpenAI"})
	default:
		log.Print(ctx, log.KV{K: "msg", V: "decisions via deterministic playbook"})
		return llm.NewPlaybook(), nil
	}

	cache, err := llm.NewMemoryCache(0, time.Hour, nil)
	if err != nil {
		return nil, err
	}
	return llm.NewModelAdapter(llm.ModelAdapterOptions{
		Client: model.RateLimited(client, 2, 4),
		Cache:  cache,
		Logger: logger,
	})
}

func selectScenarios(name string) ([]scenario, error) {
	if name == "" || name == "all" {
		return catalog, nil
	}
	for _, sc := range catalog {
		if sc.name == name {
			return []scenario{sc}, nil
		}
	}
	names := make([]string, 0, len(catalog)+1)
	for _, sc := range catalog {
		names = append(names, sc.name)
	}
	names = append(names, "all")
	return nil, fmt.Errorf("unknown scenario %q (choose one of %s)", name, strings.Join(names, ", "))
}

// printEvent renders one engine event as a terminal log line.
func printEvent(ctx context.Context, e events.Event) {
	kvs := []log.Fielder{log.KV{K: "event", V: string(e.Type)}}
	if e.Agent != "" {
		kvs = append(kvs, log.KV{K: "agent", V: e.Agent})
	}
	switch p := e.Payload.(type) {
	case events.TaskUpdatePayload:
		kvs = append(kvs, log.KV{K: "task", V: p.TaskID}, log.KV{K: "status", V: p.Status}, log.KV{K: "desc", V: p.Description})
		if p.Result != "" {
			kvs = append(kvs, log.KV{K: "result", V: p.Result})
		}
	case events.ToolExecutionPayload:
		kvs = append(kvs, log.KV{K: "tool", V: p.Tool}, log.KV{K: "kind", V: p.Result.Kind})
		if p.Result.Message != "" {
			kvs = append(kvs, log.KV{K: "message", V: p.Result.Message})
		}
	case events.RoutingPayload:
		if p.Done {
			kvs = append(kvs, log.KV{K: "done", V: p.Reason})
		} else {
			kvs = append(kvs, log.KV{K: "next", V: p.Next}, log.KV{K: "reason", V: p.Reason})
		}
	case events.LLMCallPayload:
		kvs = append(kvs, log.KV{K: "phase", V: p.Phase})
		if p.Phase == "end" {
			kvs = append(kvs, log.KV{K: "latency_ms", V: p.LatencyMS}, log.KV{K: "cached", V: p.Cached})
		}
	case events.NotificationPayload:
		kvs = append(kvs, log.KV{K: "client_id", V: p.ClientID}, log.KV{K: "type", V: p.Kind})
	case events.SuccessPayload:
		kvs = append(kvs, log.KV{K: "message", V: p.Message})
	case events.ErrorPayload:
		kvs = append(kvs, log.KV{K: "message", V: p.Message}, log.KV{K: "recoverable", V: p.Recoverable})
	case events.WorkflowCompletePayload:
		kvs = append(kvs, log.KV{K: "status", V: p.Status}, log.KV{K: "tasks_completed", V: p.TasksCompleted}, log.KV{K: "total_tasks", V: p.TotalTasks})
		for _, b := range p.Blockers {
			kvs = append(kvs, log.KV{K: "blocker", V: b})
		}
	case events.LogPayload:
		kvs = append(kvs, log.KV{K: "message", V: p.Message})
	}
	log.Print(ctx, kvs...)
}
