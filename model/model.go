// Package model defines the provider-neutral LLM client contract the
// decision adapter drives, plus a token-bucket rate limiting middleware and a
// scripted client for tests and offline demos. Provider adapters live in the
// anthropic and openai subpackages.
package model

import (
	"context"
	"errors"
)

// ErrRateLimited marks provider rate-limit responses so callers can back off
// or fall back without inspecting provider-specific errors.
var ErrRateLimited = errors.New("model: rate limited")

type (
	// Role identifies a conversation role.
	Role string

	// Message is one conversation turn sent to the model.
	Message struct {
		Role    Role
		Content string
	}

	// Request is a provider-neutral completion request. System carries the
	// role prompt; Model overrides the adapter's default identifier when set.
	Request struct {
		Model       string
		System      string
		Messages    []Message
		Temperature float64
		MaxTokens   int
	}

	// TokenUsage reports provider token accounting.
	TokenUsage struct {
		InputTokens  int
		OutputTokens int
		TotalTokens  int
	}

	// Response is the completion result.
	Response struct {
		Text       string
		StopReason string
		Model      string
		Usage      TokenUsage
	}

	// Client is implemented by provider adapters and middleware.
	Client interface {
		Complete(ctx context.Context, req *Request) (*Response, error)
	}
)

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)
