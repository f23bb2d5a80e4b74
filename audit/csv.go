// Package audit records successful account creations as CSV rows. The Writer
// is an event-bus observer: feed it a workflow's event stream and it appends
// one row per completed workflow whose outcome carries an account number.
package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/wealthdesk/agentflow/events"
	"github.com/wealthdesk/agentflow/workflow"
)

// header is the first row of every audit log.
var header = []string{"timestamp", "client_id", "account_type", "account_number", "workflow_id"}

// Writer appends account-creation rows to an underlying CSV stream. It is
// safe for concurrent use so streams of parallel workflows can share one log.
type Writer struct {
	mu          sync.Mutex
	csv         *csv.Writer
	wroteHeader bool
	// requests remembers each workflow's request, learned from its
	// workflow_start event, so completion rows can name the client.
	requests map[string]workflow.Request
}

// NewWriter builds a Writer over w. The header row is written lazily with the
// first observed event so an untouched log stays empty.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		csv:      csv.NewWriter(w),
		requests: make(map[string]workflow.Request),
	}
}

// Observe consumes one event. Only workflow_start and workflow_complete
// matter; everything else is ignored. A completed workflow with an account
// number in its outcome produces one row.
func (w *Writer) Observe(e events.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch payload := e.Payload.(type) {
	case events.WorkflowStartPayload:
		w.requests[e.WorkflowID] = payload.Request
		return nil
	case events.WorkflowCompletePayload:
		req := w.requests[e.WorkflowID]
		delete(w.requests, e.WorkflowID)
		if payload.Status != string(workflow.StatusCompleted) {
			return nil
		}
		number, _ := payload.Outcome["account_number"].(string)
		if number == "" {
			return nil
		}
		accountType, _ := payload.Outcome["account_type"].(string)
		return w.append([]string{
			e.Timestamp.UTC().Format(time.RFC3339),
			req.ClientID,
			accountType,
			number,
			e.WorkflowID,
		})
	}
	return nil
}

// Follow drains a subscription until its stream ends, recording as it goes.
// It blocks; run it on its own goroutine when following a live workflow.
func (w *Writer) Follow(sub *events.Subscription) error {
	for e := range sub.Events() {
		if err := w.Observe(e); err != nil {
			return err
		}
	}
	return nil
}

// append writes one row, emitting the header first when needed.
func (w *Writer) append(row []string) error {
	if !w.wroteHeader {
		if err := w.csv.Write(header); err != nil {
			return fmt.Errorf("audit: write header: %w", err)
		}
		w.wroteHeader = true
	}
	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("audit: write row: %w", err)
	}
	w.csv.Flush()
	return w.csv.Error()
}
