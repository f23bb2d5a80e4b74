package events

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishNoSubscribers(t *testing.T) {
	bus := New(Options{})
	// Publishing with no subscribers is legal; events are discarded.
	bus.Publish(context.Background(), Event{Type: TypeLog, WorkflowID: "wf1"})
}

func TestSubscriberReceivesInPublicationOrder(t *testing.T) {
	bus := New(Options{Buffer: 16})
	sub := bus.Subscribe("wf1")

	ctx := context.Background()
	bus.Publish(ctx, Event{Type: TypeWorkflowStart, WorkflowID: "wf1"})
	for i := 0; i < 5; i++ {
		bus.Publish(ctx, Event{Type: TypeTaskUpdate, WorkflowID: "wf1", Payload: TaskUpdatePayload{TaskID: fmt.Sprintf("task_%d", i)}})
	}
	bus.Publish(ctx, Event{Type: TypeWorkflowComplete, WorkflowID: "wf1", Payload: WorkflowCompletePayload{Status: "completed"}})

	var got []Event
	for e := range sub.Events() {
		got = append(got, e)
	}
	require.Len(t, got, 7)
	require.Equal(t, TypeWorkflowStart, got[0].Type)
	for i := 0; i < 5; i++ {
		require.Equal(t, fmt.Sprintf("task_%d", i), got[i+1].Payload.(TaskUpdatePayload).TaskID)
	}
	require.Equal(t, TypeWorkflowComplete, got[6].Type)
}

func TestStreamsAreIndependentPerWorkflow(t *testing.T) {
	bus := New(Options{Buffer: 8})
	sub1 := bus.Subscribe("wf1")
	sub2 := bus.Subscribe("wf2")

	ctx := context.Background()
	bus.Publish(ctx, Event{Type: TypeWorkflowStart, WorkflowID: "wf1"})
	bus.Publish(ctx, Event{Type: TypeWorkflowStart, WorkflowID: "wf2"})
	bus.Publish(ctx, Event{Type: TypeWorkflowComplete, WorkflowID: "wf1"})
	bus.Publish(ctx, Event{Type: TypeWorkflowComplete, WorkflowID: "wf2"})

	var got1, got2 []Event
	for e := range sub1.Events() {
		got1 = append(got1, e)
	}
	for e := range sub2.Events() {
		got2 = append(got2, e)
	}
	require.Len(t, got1, 2)
	require.Len(t, got2, 2)
	for _, e := range got1 {
		require.Equal(t, "wf1", e.WorkflowID)
	}
	for _, e := range got2 {
		require.Equal(t, "wf2", e.WorkflowID)
	}
}

func TestDropNonCriticalKeepsCriticalEvents(t *testing.T) {
	bus := New(Options{Buffer: 1, Policy: PolicyDropNonCritical})
	sub := bus.Subscribe("wf1")

	ctx := context.Background()
	// Fill the buffer with one critical event, then flood with logs that
	// cannot fit. Logs must be dropped, not block the publisher.
	bus.Publish(ctx, Event{Type: TypeWorkflowStart, WorkflowID: "wf1"})
	for i := 0; i < 10; i++ {
		bus.Publish(ctx, Event{Type: TypeLog, WorkflowID: "wf1", Payload: LogPayload{Message: "noise"}})
	}
	require.EqualValues(t, 10, sub.Dropped())

	// Critical events block until the subscriber drains, never drop.
	delivered := make(chan Event, 2)
	go func() {
		for e := range sub.Events() {
			delivered <- e
		}
		close(delivered)
	}()
	bus.Publish(ctx, Event{Type: TypeWorkflowComplete, WorkflowID: "wf1", Payload: WorkflowCompletePayload{Status: "completed"}})

	var types []Type
	for e := range delivered {
		types = append(types, e.Type)
	}
	require.Equal(t, []Type{TypeWorkflowStart, TypeWorkflowComplete}, types)
	require.EqualValues(t, 10, sub.Dropped())
}

func TestSubscriptionClosesOnWorkflowComplete(t *testing.T) {
	bus := New(Options{Buffer: 4})
	sub := bus.Subscribe("wf1")

	ctx := context.Background()
	bus.Publish(ctx, Event{Type: TypeWorkflowComplete, WorkflowID: "wf1"})

	e, ok := <-sub.Events()
	require.True(t, ok)
	require.Equal(t, TypeWorkflowComplete, e.Type)
	_, ok = <-sub.Events()
	require.False(t, ok, "channel should report end-of-stream after the terminal event")

	// Further publishes for the finished workflow go nowhere.
	bus.Publish(ctx, Event{Type: TypeLog, WorkflowID: "wf1"})
}

func TestSubscribeAfterWorkflowFinished(t *testing.T) {
	bus := New(Options{Buffer: 4})
	bus.Subscribe("wf1").Close()
	bus.Publish(context.Background(), Event{Type: TypeWorkflowComplete, WorkflowID: "wf1"})

	late := bus.Subscribe("wf1")
	_, ok := <-late.Events()
	require.False(t, ok, "late subscriptions observe immediate end-of-stream")
}

func TestCloseUnblocksPublisher(t *testing.T) {
	bus := New(Options{Buffer: 1})
	sub := bus.Subscribe("wf1")

	ctx := context.Background()
	bus.Publish(ctx, Event{Type: TypeTaskUpdate, WorkflowID: "wf1"})

	published := make(chan struct{})
	go func() {
		// Buffer is full and nobody drains; this blocks until Close.
		bus.Publish(ctx, Event{Type: TypeTaskUpdate, WorkflowID: "wf1"})
		close(published)
	}()

	time.Sleep(20 * time.Millisecond)
	sub.Close()

	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("publisher still blocked after subscription closed")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	bus := New(Options{})
	sub := bus.Subscribe("wf1")
	sub.Close()
	sub.Close()
	_, ok := <-sub.Events()
	require.False(t, ok)
}

func TestEventWireFormat(t *testing.T) {
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	e := Event{
		Type:       TypeToolExecution,
		WorkflowID: "wf1",
		Agent:      "operations_agent",
		Payload: ToolExecutionPayload{
			Agent:  "operations_agent",
			Tool:   "open_account",
			Params: map[string]any{"client_id": "c1", "account_type": "roth_ira"},
			Result: ToolResultPayload{Kind: "ok", Payload: map[string]any{"account_number": "ROTH_IRA-1000"}},
		},
		Timestamp: at,
	}
	raw, err := json.Marshal(e)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "tool_execution", decoded["type"])
	require.Equal(t, "wf1", decoded["workflow_id"])
	require.Equal(t, "operations_agent", decoded["agent"])
	require.EqualValues(t, at.UnixMilli(), decoded["timestamp_ms"])
	payload := decoded["payload"].(map[string]any)
	require.Equal(t, "open_account", payload["tool"])
	require.Equal(t, "ok", payload["result"].(map[string]any)["kind"])
}

func TestCriticalTypes(t *testing.T) {
	critical := []Type{TypeWorkflowStart, TypeTaskUpdate, TypeToolExecution, TypeWorkflowComplete, TypeError}
	for _, typ := range critical {
		require.True(t, typ.Critical(), "%s should be critical", typ)
	}
	droppable := []Type{TypeAgentMessage, TypeLLMCall, TypeRouting, TypeSuccess, TypeNotification, TypeLog}
	for _, typ := range droppable {
		require.False(t, typ.Critical(), "%s should be droppable", typ)
	}
}

func TestWorkflowIDContext(t *testing.T) {
	ctx := WithWorkflowID(context.Background(), "wf42")
	id, ok := WorkflowIDFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "wf42", id)
	_, ok = WorkflowIDFromContext(context.Background())
	require.False(t, ok)
}
