package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wealthdesk/agentflow/model"
	"github.com/wealthdesk/agentflow/telemetry"
	"github.com/wealthdesk/agentflow/workflow"
)

const (
	defaultInferTimeout = 30 * time.Second
	defaultMaxTokens    = 1024
)

// Reply-format contracts per role. The caller's prompt carries the persona
// and task context; these only pin down the JSON shape.
const plannerInstructions = `You plan financial services workflows. Reply with exactly one JSON object and no other text:
{"tasks": [{"id": "task_1", "description": "...", "owner": "operations_agent|advisor_agent", "dependencies": ["task_id"], "priority": "low|normal|high"}], "reasoning": "..."}
Task descriptions name outcomes, never tools. Owners are operations_agent for backend work and advisor_agent for client-facing work.`

const workerInstructions = `You execute one task in a financial services workflow. Reply with exactly one JSON object and no other text:
{"tool": "...", "params": {...}, "task_status": "completed|failed|pending", "message_to_client": "...", "reasoning": "..."}
Use at most one tool per reply. Omit "tool" when the task needs no backend call.`

// ModelAdapter implements Adapter on a model.Client: one completion per
// inference, the reply parsed, repaired if needed, and schema-checked. When
// the model cannot produce a usable decision the adapter substitutes a safe
// one instead of failing the turn: the playbook plan for planner roles, a
// deferring no-op for workers.
type ModelAdapter struct {
	client      model.Client
	modelID     string
	cache       Cache
	playbook    *Playbook
	timeout     time.Duration
	clock       workflow.Clock
	logger      telemetry.Logger
	maxTokens   int
	temperature float64
}

// ModelAdapterOptions configures a ModelAdapter.
type ModelAdapterOptions struct {
	// Client performs the completions. Required.
	Client model.Client
	// Model overrides the client's default model identifier.
	Model string
	// Cache stores decisions by inference fingerprint. Optional.
	Cache Cache
	// Timeout bounds each inference call. Defaults to 30 seconds.
	Timeout time.Duration
	// Clock measures latency. Defaults to the system clock.
	Clock workflow.Clock
	// Logger reports fallbacks and rejected replies. Defaults to noop.
	Logger telemetry.Logger
	// MaxTokens bounds reply length. Defaults to 1024.
	MaxTokens int
	// Temperature sets sampling temperature. Zero keeps decisions stable.
	Temperature float64
}

// NewModelAdapter validates the options and builds a ModelAdapter.
func NewModelAdapter(opts ModelAdapterOptions) (*ModelAdapter, error) {
	if opts.Client == nil {
		return nil, errors.New("llm: model client is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultInferTimeout
	}
	clock := opts.Clock
	if clock == nil {
		clock = workflow.SystemClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &ModelAdapter{
		client:      opts.Client,
		modelID:     opts.Model,
		cache:       opts.Cache,
		playbook:    NewPlaybook(),
		timeout:     timeout,
		clock:       clock,
		logger:      logger,
		maxTokens:   maxTokens,
		temperature: opts.Temperature,
	}, nil
}

// Infer implements Adapter. Cancellation of the caller's context propagates
// as an error; every other failure mode resolves to a fallback decision.
func (a *ModelAdapter) Infer(ctx context.Context, role Role, prompt string, digest Digest) (*Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	system := roleInstructions(role)
	user, err := composeUserPrompt(prompt, digest)
	if err != nil {
		return nil, fmt.Errorf("llm: encode digest: %w", err)
	}
	key := cacheKey(a.modelID, role, system, user)
	if a.cache != nil {
		if d, ok := a.cache.Get(ctx, key); ok {
			d.Cached = true
			return d, nil
		}
	}

	started := a.clock.Now()
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	resp, err := a.client.Complete(cctx, &model.Request{
		Model:       a.modelID,
		System:      system,
		Messages:    []model.Message{{Role: model.RoleUser, Content: user}},
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	})
	latency := a.clock.Now().Sub(started)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return a.fallback(ctx, role, digest, latency, fmt.Sprintf("completion failed: %v", err)), nil
	}
	d, err := ParseDecision(resp.Text)
	if err != nil {
		return a.fallback(ctx, role, digest, latency, fmt.Sprintf("unparseable reply: %v", err)), nil
	}
	if err := ValidateDecision(role, d); err != nil {
		return a.fallback(ctx, role, digest, latency, fmt.Sprintf("reply rejected: %v", err)), nil
	}
	d.Latency = latency
	if a.cache != nil {
		a.cache.Set(ctx, key, d)
	}
	return d, nil
}

// fallback substitutes a safe decision: the template plan for planner turns,
// a deferring no-op for worker turns. Fallback decisions are never cached.
func (a *ModelAdapter) fallback(ctx context.Context, role Role, digest Digest, latency time.Duration, reason string) *Decision {
	a.logger.Warn(ctx, "decision inference fell back",
		"role", string(role),
		"workflow_id", digest.WorkflowID,
		"reason", reason,
	)
	var d *Decision
	if role == RolePlanner {
		d = a.playbook.plan(digest)
	} else {
		d = &Decision{
			TaskStatus: "pending",
			Reasoning:  "No usable decision was produced for this task",
		}
	}
	d.Fallback = true
	d.FallbackReason = reason
	d.Latency = latency
	return d
}

func roleInstructions(role Role) string {
	if role == RolePlanner {
		return plannerInstructions
	}
	return workerInstructions
}

func composeUserPrompt(prompt string, digest Digest) (string, error) {
	raw, err := json.Marshal(digest)
	if err != nil {
		return "", err
	}
	return prompt + "\n\nWorkflow state:\n" + string(raw), nil
}

// cacheKey fingerprints an inference so identical prompts against identical
// state reuse the cached decision.
func cacheKey(modelID string, role Role, system, user string) string {
	h := sha256.New()
	for _, part := range []string{modelID, string(role), system, user} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
