package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/wealthdesk/agentflow/workflow"
)

// Policy selects how the bus behaves when a subscriber's buffer is full.
type Policy string

const (
	// PolicyBlockPublisher applies back-pressure: the publisher blocks until
	// the subscriber drains or unsubscribes.
	PolicyBlockPublisher Policy = "block"
	// PolicyDropNonCritical drops non-critical events for slow subscribers.
	// Critical events still block until delivered.
	PolicyDropNonCritical Policy = "drop_non_critical"
)

const defaultBuffer = 64

type (
	// Bus fans events out to per-workflow subscribers. Publishing is
	// synchronous with respect to the publisher; subscribers consume from
	// bounded channels at their own pace. Events published for a workflow
	// with no subscribers are discarded.
	//
	// Within a workflow only the owning executor goroutine publishes, so
	// each subscriber observes events in exact publication order.
	Bus struct {
		mu       sync.RWMutex
		subs     map[string][]*Subscription
		finished map[string]struct{}

		clock  workflow.Clock
		policy Policy
		buffer int
	}

	// Options configures a Bus.
	Options struct {
		// Buffer is the per-subscriber channel capacity. Defaults to 64.
		Buffer int
		// Policy selects the back-pressure behavior. Defaults to
		// PolicyBlockPublisher.
		Policy Policy
		// Clock stamps event timestamps. Defaults to the system clock.
		Clock workflow.Clock
	}

	// Subscription is one subscriber's bounded view of a single workflow's
	// event stream. The channel closes after the workflow's terminal event
	// is delivered or when the subscriber calls Close.
	Subscription struct {
		workflowID string
		bus        *Bus

		mu     sync.Mutex
		ch     chan Event
		closed bool

		done    chan struct{}
		once    sync.Once
		dropped atomic.Uint64
	}
)

// New constructs a Bus ready for use.
func New(opts Options) *Bus {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	policy := opts.Policy
	if policy == "" {
		policy = PolicyBlockPublisher
	}
	clock := opts.Clock
	if clock == nil {
		clock = workflow.SystemClock()
	}
	return &Bus{
		subs:     make(map[string][]*Subscription),
		finished: make(map[string]struct{}),
		clock:    clock,
		policy:   policy,
		buffer:   buffer,
	}
}

// Subscribe registers a new subscriber for the given workflow's events. When
// the workflow has already terminated the returned subscription is closed and
// its channel immediately reports end-of-stream.
func (b *Bus) Subscribe(workflowID string) *Subscription {
	s := &Subscription{
		workflowID: workflowID,
		bus:        b,
		ch:         make(chan Event, b.buffer),
		done:       make(chan struct{}),
	}
	b.mu.Lock()
	if _, over := b.finished[workflowID]; over {
		b.mu.Unlock()
		s.Close()
		return s
	}
	b.subs[workflowID] = append(b.subs[workflowID], s)
	b.mu.Unlock()
	return s
}

// Publish delivers the event to every subscriber of its workflow. The
// timestamp is stamped here when the caller left it zero. Delivery follows
// the configured policy; critical events always block rather than drop. When
// the event is workflow_complete, every subscription of that workflow is
// closed once the event has been delivered.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = b.clock.Now()
	}
	b.mu.RLock()
	subs := append([]*Subscription(nil), b.subs[e.WorkflowID]...)
	b.mu.RUnlock()

	block := b.policy == PolicyBlockPublisher || e.Type.Critical()
	for _, s := range subs {
		s.deliver(ctx, e, block)
	}

	if e.Type == TypeWorkflowComplete {
		b.finish(e.WorkflowID, subs)
	}
}

// finish marks the workflow over and closes its subscriptions so subscribers
// observe end-of-stream after draining.
func (b *Bus) finish(workflowID string, subs []*Subscription) {
	b.mu.Lock()
	b.finished[workflowID] = struct{}{}
	remaining := b.subs[workflowID]
	delete(b.subs, workflowID)
	b.mu.Unlock()
	for _, s := range remaining {
		s.Close()
	}
	for _, s := range subs {
		s.Close()
	}
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[s.workflowID]
	for i, cur := range list {
		if cur == s {
			b.subs[s.workflowID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.subs[s.workflowID]) == 0 {
		delete(b.subs, s.workflowID)
	}
}

// Events returns the receive channel. It closes after the workflow's
// terminal event or after Close; buffered events remain readable until
// drained.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped reports how many non-critical events were discarded for this
// subscriber under PolicyDropNonCritical.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unregisters the subscription and closes its channel. It is
// idempotent and safe to call concurrently with Publish.
func (s *Subscription) Close() {
	s.once.Do(func() {
		// Closing done first unblocks any publisher waiting in deliver so
		// the channel close below cannot race a send.
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.bus.unsubscribe(s)
	})
}

// deliver sends one event to the subscriber. Sends are serialized by s.mu so
// the channel can be closed safely; a blocked send wakes on done when the
// subscription closes mid-delivery.
func (s *Subscription) deliver(ctx context.Context, e Event, block bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if block {
		// Buffered room always wins: a cancelled publish context must not
		// lose a critical event the subscriber still has capacity for.
		select {
		case s.ch <- e:
			return
		default:
		}
		select {
		case s.ch <- e:
		case <-s.done:
		case <-ctx.Done():
		}
		return
	}
	select {
	case s.ch <- e:
	default:
		s.dropped.Add(1)
	}
}
