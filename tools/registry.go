package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wealthdesk/agentflow/backend"
	"github.com/wealthdesk/agentflow/events"
	"github.com/wealthdesk/agentflow/telemetry"
	"github.com/wealthdesk/agentflow/workflow"
)

// Registry dispatches tool invocations against the simulated backends and
// publishes one tool_execution event per invocation.
type Registry struct {
	backends *backend.Backends
	bus      *events.Bus
	log      telemetry.Logger
	metrics  telemetry.Metrics
	clock    workflow.Clock
}

// Options configures a Registry. Backends is required; everything else
// defaults to no-ops.
type Options struct {
	Backends *backend.Backends
	// Bus receives tool_execution events when set.
	Bus     *events.Bus
	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Clock   workflow.Clock
}

// New builds a Registry.
func New(opts Options) (*Registry, error) {
	if opts.Backends == nil {
		return nil, errors.New("tools: Backends is required")
	}
	r := &Registry{
		backends: opts.Backends,
		bus:      opts.Bus,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		clock:    opts.Clock,
	}
	if r.log == nil {
		r.log = telemetry.NoopLogger{}
	}
	if r.metrics == nil {
		r.metrics = telemetry.NoopMetrics{}
	}
	if r.clock == nil {
		r.clock = workflow.SystemClock()
	}
	return r, nil
}

// Invoke runs the named tool on behalf of an agent. It never returns an
// error: every outcome, including authorization and parameter problems, is
// expressed as a Result so agents apply one propagation rule.
func (r *Registry) Invoke(ctx context.Context, agent workflow.AgentID, name string, params map[string]any) Result {
	started := r.clock.Now()
	res := seal(r.dispatch(ctx, agent, name, params))
	elapsed := r.clock.Now().Sub(started)

	r.metrics.IncCounter("tool_invocations", 1, "tool", name, "kind", string(res.Kind))
	r.metrics.RecordTimer("tool_duration", elapsed, "tool", name)
	if res.OK() {
		r.log.Debug(ctx, "tool succeeded", "agent", string(agent), "tool", name)
	} else {
		r.log.Warn(ctx, "tool failed", "agent", string(agent), "tool", name,
			"kind", string(res.Kind), "err", res.Message)
	}
	r.publish(ctx, agent, name, params, res)
	return res
}

func (r *Registry) dispatch(ctx context.Context, agent workflow.AgentID, name string, params map[string]any) Result {
	if !Authorized(agent, name) {
		return Failf(KindInvalidArgument, "tool %s is not authorized for %s", name, agent)
	}
	if err := ctx.Err(); err != nil {
		return failFromError(err)
	}

	var (
		payload map[string]any
		err     error
	)
	switch name {
	case ToolGetClientInfo:
		payload, err = r.getClientInfo(params)
	case ToolCheckEligibility:
		payload, err = r.checkEligibility(params)
	case ToolGetDocument:
		payload, err = r.getDocument(params)
	case ToolValidateDocument:
		payload, err = r.validateDocument(params)
	case ToolCreateDocument:
		payload, err = r.createDocument(params)
	case ToolUpdateDocument:
		payload, err = r.updateDocument(params)
	case ToolOpenAccount:
		payload, err = r.openAccount(params)
	case ToolSendNotification:
		payload, err = r.sendNotification(ctx, params)
	default:
		return Failf(KindNotFound, "unknown tool: %s", name)
	}
	if err != nil {
		return failFromError(err)
	}
	return Ok(payload)
}

// failFromError maps backend and validation errors onto the failure taxonomy.
func failFromError(err error) Result {
	var (
		notFound *backend.NotFoundError
		conflict *backend.ConflictError
		invalid  *invalidArgumentError
	)
	switch {
	case errors.As(err, &notFound):
		return Result{Kind: KindNotFound, Message: notFound.Error()}
	case errors.As(err, &conflict):
		return Result{Kind: KindConflict, Message: conflict.Error()}
	case errors.As(err, &invalid):
		return Result{Kind: KindInvalidArgument, Message: invalid.Error()}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return Result{Kind: KindTimeout, Message: err.Error()}
	default:
		return Result{Kind: KindInternal, Message: err.Error()}
	}
}

// seal enforces the registry boundary rule: a backend error never rides
// inside a success payload. Any payload carrying an "error" field is
// re-tagged as a failure of the matching kind.
func seal(res Result) Result {
	if !res.OK() {
		return res
	}
	raw, ok := res.Payload["error"]
	if !ok || raw == nil {
		return res
	}
	msg := fmt.Sprint(raw)
	return Result{Kind: classifyError(msg), Message: msg}
}

func classifyError(msg string) Kind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "already has a"), strings.Contains(lower, "already exists"):
		return KindConflict
	case strings.Contains(lower, "not found"):
		return KindNotFound
	default:
		return KindInternal
	}
}

func (r *Registry) publish(ctx context.Context, agent workflow.AgentID, name string, params map[string]any, res Result) {
	if r.bus == nil {
		return
	}
	wid, ok := events.WorkflowIDFromContext(ctx)
	if !ok {
		return
	}
	r.bus.Publish(ctx, events.Event{
		Type:       events.TypeToolExecution,
		WorkflowID: wid,
		Agent:      string(agent),
		Payload: events.ToolExecutionPayload{
			Agent:  string(agent),
			Tool:   name,
			Params: params,
			Result: events.ToolResultPayload{
				Kind:    string(res.Kind),
				Payload: res.Payload,
				Message: res.Message,
			},
		},
	})
}

func (r *Registry) getClientInfo(params map[string]any) (map[string]any, error) {
	clientID, err := stringParam(params, "client_id")
	if err != nil {
		return nil, err
	}
	client, err := r.backends.CRM.Get(clientID)
	if err != nil {
		return nil, err
	}
	available := r.backends.Documents.List(clientID)
	docs := make(map[string]any, len(available))
	for _, docType := range available {
		if doc, err := r.backends.Documents.Get(clientID, docType); err == nil {
			docs[docType] = map[string]any(doc)
		}
	}
	return map[string]any{
		"client": map[string]any{
			"client_id":         clientID,
			"name":              client.Name,
			"age":               client.Age,
			"email":             client.Email,
			"income":            client.Income,
			"existing_accounts": client.ExistingAccounts,
		},
		"documents":           docs,
		"available_documents": available,
	}, nil
}

func (r *Registry) getDocument(params map[string]any) (map[string]any, error) {
	clientID, err := stringParam(params, "client_id")
	if err != nil {
		return nil, err
	}
	docType, err := stringParam(params, "doc_type")
	if err != nil {
		return nil, err
	}
	doc, err := r.backends.Documents.Get(clientID, docType)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"document":  map[string]any(doc),
		"doc_type":  docType,
		"client_id": clientID,
	}, nil
}

func (r *Registry) createDocument(params map[string]any) (map[string]any, error) {
	clientID, err := stringParam(params, "client_id")
	if err != nil {
		return nil, err
	}
	docType, err := stringParam(params, "doc_type")
	if err != nil {
		return nil, err
	}
	data, err := objectParam(params, "data")
	if err != nil {
		return nil, err
	}
	stored := r.backends.Documents.Upsert(clientID, docType, backend.Document(data))
	return map[string]any{
		"document":  map[string]any(stored),
		"doc_type":  backend.NormalizeDocType(docType),
		"client_id": clientID,
		"message":   fmt.Sprintf("Created %s for client %s", docType, clientID),
	}, nil
}

func (r *Registry) updateDocument(params map[string]any) (map[string]any, error) {
	clientID, err := stringParam(params, "client_id")
	if err != nil {
		return nil, err
	}
	docType, err := stringParam(params, "doc_type")
	if err != nil {
		return nil, err
	}
	data, err := objectParam(params, "data")
	if err != nil {
		return nil, err
	}
	stored, err := r.backends.Documents.Update(clientID, docType, backend.Document(data))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"document":  map[string]any(stored),
		"doc_type":  backend.NormalizeDocType(docType),
		"client_id": clientID,
		"message":   fmt.Sprintf("Updated %s for client %s", docType, clientID),
	}, nil
}

func (r *Registry) openAccount(params map[string]any) (map[string]any, error) {
	clientID, err := stringParam(params, "client_id")
	if err != nil {
		return nil, err
	}
	accountType, err := stringParam(params, "account_type")
	if err != nil {
		return nil, err
	}
	if _, err := r.backends.CRM.Get(clientID); err != nil {
		return nil, err
	}
	acct, err := r.backends.Accounts.Open(clientID, accountType)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"account_number": acct.Number,
		"status":         acct.Status,
		"created_at":     acct.CreatedAt.UTC().Format(time.RFC3339),
		"message":        fmt.Sprintf("Successfully created %s account for client %s", accountType, clientID),
	}, nil
}

func (r *Registry) sendNotification(ctx context.Context, params map[string]any) (map[string]any, error) {
	clientID, err := stringParam(params, "client_id")
	if err != nil {
		return nil, err
	}
	kind, err := stringParam(params, "type")
	if err != nil {
		// message_type is accepted as a legacy alias.
		kind, err = stringParam(params, "message_type")
		if err != nil {
			return nil, invalidArgumentf("missing required parameter %q", "type")
		}
	}
	content, err := stringParam(params, "content")
	if err != nil {
		return nil, err
	}
	if _, err := r.backends.CRM.Get(clientID); err != nil {
		return nil, err
	}
	note := r.backends.Notifier.Send(ctx, clientID, kind, content)
	return map[string]any{
		"sent":    true,
		"type":    note.Kind,
		"content": note.Content,
		"message": fmt.Sprintf("Notification sent to client %s", clientID),
	}, nil
}
