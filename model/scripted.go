package model

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrNoScriptedReply is returned when no reply in the script matches a
// request.
var ErrNoScriptedReply = errors.New("model: no scripted reply matches request")

type (
	// Reply is one scripted exchange. The first reply whose Match substring
	// appears in the request text (system prompt plus messages) is served; an
	// empty Match matches every request. A non-nil Err is returned instead of
	// a response.
	Reply struct {
		Match string
		Text  string
		Err   error
	}

	// Scripted is a deterministic in-memory Client. It serves replies in
	// script order and records every request for assertions.
	Scripted struct {
		mu      sync.Mutex
		replies []Reply
		calls   []*Request
	}
)

// NewScripted builds a scripted client from replies consulted in order.
func NewScripted(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

// Complete serves the first matching reply.
func (s *Scripted) Complete(_ context.Context, req *Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)

	var b strings.Builder
	b.WriteString(req.System)
	for _, m := range req.Messages {
		b.WriteByte('\n')
		b.WriteString(m.Content)
	}
	text := b.String()

	for _, r := range s.replies {
		if r.Match != "" && !strings.Contains(text, r.Match) {
			continue
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return &Response{Text: r.Text, StopReason: "end_turn", Model: "scripted"}, nil
	}
	return nil, ErrNoScriptedReply
}

// Calls returns the requests served so far, oldest first.
func (s *Scripted) Calls() []*Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Request, len(s.calls))
	copy(out, s.calls)
	return out
}
