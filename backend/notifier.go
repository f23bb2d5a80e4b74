package backend

import (
	"context"
	"sync"
	"time"

	"github.com/wealthdesk/agentflow/events"
	"github.com/wealthdesk/agentflow/workflow"
)

// Notification is one message sent to a client.
type Notification struct {
	ClientID  string    `json:"client_id"`
	Kind      string    `json:"type"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier simulates the client notification channel. Every send is recorded
// and, when a bus is attached, mirrored as a notification event on the
// workflow stream identified by the context.
type Notifier struct {
	mu    sync.Mutex
	clock workflow.Clock
	bus   *events.Bus
	log   []Notification
}

// NewNotifier builds a notifier. Both clock and bus may be nil; a nil bus
// disables event mirroring.
func NewNotifier(clock workflow.Clock, bus *events.Bus) *Notifier {
	if clock == nil {
		clock = workflow.SystemClock()
	}
	return &Notifier{clock: clock, bus: bus}
}

// Send records a notification for the client and publishes it on the event
// bus when one is attached.
func (n *Notifier) Send(ctx context.Context, clientID, kind, content string) Notification {
	n.mu.Lock()
	note := Notification{
		ClientID:  clientID,
		Kind:      kind,
		Content:   content,
		Timestamp: n.clock.Now(),
	}
	n.log = append(n.log, note)
	bus := n.bus
	n.mu.Unlock()

	if bus != nil {
		if wid, ok := events.WorkflowIDFromContext(ctx); ok {
			bus.Publish(ctx, events.Event{
				Type:       events.TypeNotification,
				WorkflowID: wid,
				Payload: events.NotificationPayload{
					ClientID: clientID,
					Kind:     kind,
					Content:  content,
				},
			})
		}
	}
	return note
}

// Log returns a copy of all notifications sent so far, oldest first.
func (n *Notifier) Log() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.log))
	copy(out, n.log)
	return out
}
