package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/HarborLabs/playbook/events"
	"github.com/HarborLabs/playbook/execution"
)

// newTestListener returns a listener, in-memory exporter, and TracerProvider for tests.
func newTestListener(t *testing.T) (*OTelEventListener, *tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	tracer := tp.Tracer(InstrumentationName)
	listener := NewOTelEventListener(tracer)
	return listener, exp, tp
}

// flushAndGetSpans forces span export and returns spans.
// ForceFlush ensures all ended spans are exported; we read them before Shutdown
// because InMemoryExporter.Shutdown resets the buffer.
func flushAndGetSpans(t *testing.T, tp *sdktrace.TracerProvider, exp *tracetest.InMemoryExporter) tracetest.SpanStubs {
	t.Helper()
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	spans := exp.GetSpans()
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	return spans
}

// findSpan finds a span by name in the stubs or fails.
func findSpan(t *testing.T, spans tracetest.SpanStubs, name string) tracetest.SpanStub {
	t.Helper()
	for _, s := range spans {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("span %q not found in %d spans", name, len(spans))
	return tracetest.SpanStub{}
}

// hasAttr checks if a span has an attribute with the given key and string value.
func hasAttr(span tracetest.SpanStub, key, want string) bool {
	for _, a := range span.Attributes {
		if string(a.Key) == key && a.Value.AsString() == want {
			return true
		}
	}
	return false
}

func startedEvent(executionID string) *events.Event {
	return &events.Event{
		Type:        events.EventExecutionStarted,
		Timestamp:   time.Now(),
		ExecutionID: executionID,
		WorkflowID:  "renewal-v2",
		Data:        events.ExecutionStartedData{StepCount: 3},
	}
}

func TestOTelEventListener_ExecutionLifecycle(t *testing.T) {
	listener, exp, tp := newTestListener(t)

	listener.OnEvent(startedEvent("exec-1"))
	listener.OnEvent(&events.Event{
		Type:        events.EventExecutionCompleted,
		Timestamp:   time.Now(),
		ExecutionID: "exec-1",
		WorkflowID:  "renewal-v2",
		Data: events.ExecutionCompletedData{
			Status:    execution.StatusCompleted,
			Completed: 3,
			Duration:  2 * time.Minute,
		},
	})

	spans := flushAndGetSpans(t, tp, exp)
	root := findSpan(t, spans, "playbook.execution")
	if !hasAttr(root, "execution.id", "exec-1") {
		t.Error("expected execution.id attribute")
	}
	if !hasAttr(root, "workflow.id", "renewal-v2") {
		t.Error("expected workflow.id attribute")
	}
	if !hasAttr(root, "execution.status", "completed") {
		t.Error("expected execution.status attribute")
	}
	if root.Status.Code != codes.Ok {
		t.Errorf("expected Ok status, got %v", root.Status.Code)
	}
}

func TestOTelEventListener_ExitedExecution(t *testing.T) {
	listener, exp, tp := newTestListener(t)

	listener.OnEvent(startedEvent("exec-1"))
	listener.OnEvent(&events.Event{
		Type:        events.EventExecutionExited,
		Timestamp:   time.Now(),
		ExecutionID: "exec-1",
		WorkflowID:  "renewal-v2",
		Data:        events.ExecutionExitedData{Position: 1, Saved: true},
	})

	spans := flushAndGetSpans(t, tp, exp)
	root := findSpan(t, spans, "playbook.execution")
	if !hasAttr(root, "execution.status", "exited") {
		t.Error("expected execution.status=exited attribute")
	}
}

func TestOTelEventListener_StepSpan(t *testing.T) {
	listener, exp, tp := newTestListener(t)

	listener.OnEvent(startedEvent("exec-1"))
	listener.OnEvent(&events.Event{
		Type:        events.EventStepEntered,
		Timestamp:   time.Now(),
		ExecutionID: "exec-1",
		WorkflowID:  "renewal-v2",
		Data:        events.StepEnteredData{Index: 0, Ordinal: 10, StepID: "kickoff"},
	})
	listener.OnEvent(&events.Event{
		Type:        events.EventStepCompleted,
		Timestamp:   time.Now(),
		ExecutionID: "exec-1",
		WorkflowID:  "renewal-v2",
		Data:        events.StepCompletedData{Ordinal: 10, StepID: "kickoff"},
	})

	spans := flushAndGetSpans(t, tp, exp)
	step := findSpan(t, spans, "playbook.step.kickoff")
	if !hasAttr(step, "step.id", "kickoff") {
		t.Error("expected step.id attribute")
	}
	if !hasAttr(step, "step.disposition", "completed") {
		t.Error("expected step.disposition=completed attribute")
	}
	if step.Status.Code != codes.Ok {
		t.Errorf("expected Ok status, got %v", step.Status.Code)
	}
}

func TestOTelEventListener_SkippedStepCarriesReason(t *testing.T) {
	listener, exp, tp := newTestListener(t)

	listener.OnEvent(startedEvent("exec-1"))
	listener.OnEvent(&events.Event{
		Type:        events.EventStepEntered,
		Timestamp:   time.Now(),
		ExecutionID: "exec-1",
		Data:        events.StepEnteredData{Index: 1, Ordinal: 20, StepID: "health"},
	})
	listener.OnEvent(&events.Event{
		Type:        events.EventStepSkipped,
		Timestamp:   time.Now(),
		ExecutionID: "exec-1",
		Data:        events.StepSkippedData{Ordinal: 20, StepID: "health", Reason: "no usage data"},
	})

	spans := flushAndGetSpans(t, tp, exp)
	step := findSpan(t, spans, "playbook.step.health")
	if !hasAttr(step, "step.skip_reason", "no usage data") {
		t.Error("expected step.skip_reason attribute")
	}
}

func TestOTelEventListener_OutOfOrderStepSettlement(t *testing.T) {
	listener, exp, tp := newTestListener(t)

	listener.OnEvent(startedEvent("exec-1"))
	// Settlement arrives before entry: the listener must buffer the
	// completion and apply it when the entry shows up.
	listener.OnEvent(&events.Event{
		Type:        events.EventStepCompleted,
		Timestamp:   time.Now(),
		ExecutionID: "exec-1",
		Data:        events.StepCompletedData{Ordinal: 10, StepID: "kickoff"},
	})
	listener.OnEvent(&events.Event{
		Type:        events.EventStepEntered,
		Timestamp:   time.Now(),
		ExecutionID: "exec-1",
		Data:        events.StepEnteredData{Index: 0, Ordinal: 10, StepID: "kickoff"},
	})

	spans := flushAndGetSpans(t, tp, exp)
	step := findSpan(t, spans, "playbook.step.kickoff")
	if !hasAttr(step, "step.disposition", "completed") {
		t.Error("expected buffered completion to be applied")
	}
	if step.Status.Code != codes.Ok {
		t.Errorf("expected Ok status, got %v", step.Status.Code)
	}
}

func TestOTelEventListener_SaveSpan(t *testing.T) {
	listener, exp, tp := newTestListener(t)

	listener.OnEvent(startedEvent("exec-1"))
	listener.OnEvent(&events.Event{
		Type:        events.EventSnapshotSaveStarted,
		Timestamp:   time.Now(),
		ExecutionID: "exec-1",
		Data:        events.SnapshotSaveStartedData{Version: 3},
	})
	listener.OnEvent(&events.Event{
		Type:        events.EventSnapshotSaved,
		Timestamp:   time.Now(),
		ExecutionID: "exec-1",
		Data:        events.SnapshotSavedData{Version: 3, Duration: 15 * time.Millisecond},
	})

	spans := flushAndGetSpans(t, tp, exp)
	save := findSpan(t, spans, "playbook.snapshot.save")
	if save.Status.Code != codes.Ok {
		t.Errorf("expected Ok status, got %v", save.Status.Code)
	}
}

func TestOTelEventListener_FailedSaveSpan(t *testing.T) {
	listener, exp, tp := newTestListener(t)

	listener.OnEvent(startedEvent("exec-1"))
	listener.OnEvent(&events.Event{
		Type:        events.EventSnapshotSaveStarted,
		Timestamp:   time.Now(),
		ExecutionID: "exec-1",
		Data:        events.SnapshotSaveStartedData{Version: 4},
	})
	listener.OnEvent(&events.Event{
		Type:        events.EventSnapshotSaveFailed,
		Timestamp:   time.Now(),
		ExecutionID: "exec-1",
		Data:        events.SnapshotSaveFailedData{Version: 4, Error: "store down"},
	})

	spans := flushAndGetSpans(t, tp, exp)
	save := findSpan(t, spans, "playbook.snapshot.save")
	if save.Status.Code != codes.Error {
		t.Errorf("expected Error status, got %v", save.Status.Code)
	}
	if save.Status.Description != "store down" {
		t.Errorf("expected error description, got %q", save.Status.Description)
	}
}

func TestOTelEventListener_RoutingEventsOnRootSpan(t *testing.T) {
	listener, exp, tp := newTestListener(t)

	listener.OnEvent(startedEvent("exec-1"))
	listener.OnEvent(&events.Event{
		Type:        events.EventBranchRouted,
		Timestamp:   time.Now(),
		ExecutionID: "exec-1",
		Data:        events.BranchRoutedData{StepID: "kickoff", BranchID: "scope", Source: "trigger"},
	})
	listener.OnEvent(&events.Event{
		Type:        events.EventTriggerMatched,
		Timestamp:   time.Now(),
		ExecutionID: "exec-1",
		Data:        events.TriggerMatchedData{StepID: "kickoff", Pattern: "refund", Target: "scope"},
	})
	listener.OnEvent(&events.Event{
		Type:        events.EventExecutionCompleted,
		Timestamp:   time.Now(),
		ExecutionID: "exec-1",
		Data:        events.ExecutionCompletedData{Status: execution.StatusCompleted},
	})

	spans := flushAndGetSpans(t, tp, exp)
	root := findSpan(t, spans, "playbook.execution")
	if len(root.Events) != 2 {
		t.Fatalf("expected 2 span events, got %d", len(root.Events))
	}
	if root.Events[0].Name != "branch.routed" {
		t.Errorf("expected branch.routed event, got %q", root.Events[0].Name)
	}
	if root.Events[1].Name != "trigger.matched" {
		t.Errorf("expected trigger.matched event, got %q", root.Events[1].Name)
	}
}

func TestOTelEventListener_UnknownExecutionIsNoOp(t *testing.T) {
	listener, exp, tp := newTestListener(t)

	// No started event: completion and routing events must not panic.
	listener.OnEvent(&events.Event{
		Type:        events.EventExecutionCompleted,
		Timestamp:   time.Now(),
		ExecutionID: "ghost",
		Data:        events.ExecutionCompletedData{Status: execution.StatusCompleted},
	})
	listener.OnEvent(&events.Event{
		Type:        events.EventBranchRouted,
		Timestamp:   time.Now(),
		ExecutionID: "ghost",
		Data:        events.BranchRoutedData{BranchID: "scope"},
	})

	spans := flushAndGetSpans(t, tp, exp)
	if len(spans) != 0 {
		t.Errorf("expected no spans, got %d", len(spans))
	}
}

func TestOTelEventListener_ResumeCarriesPosition(t *testing.T) {
	listener, exp, tp := newTestListener(t)

	listener.OnEvent(&events.Event{
		Type:        events.EventExecutionResumed,
		Timestamp:   time.Now(),
		ExecutionID: "exec-1",
		WorkflowID:  "renewal-v2",
		Data:        events.ExecutionResumedData{Position: 2, Version: 7},
	})
	listener.OnEvent(&events.Event{
		Type:        events.EventExecutionCompleted,
		Timestamp:   time.Now(),
		ExecutionID: "exec-1",
		Data:        events.ExecutionCompletedData{Status: execution.StatusCompleted},
	})

	spans := flushAndGetSpans(t, tp, exp)
	root := findSpan(t, spans, "playbook.execution")
	found := false
	for _, a := range root.Attributes {
		if string(a.Key) == "execution.resume_position" && a.Value.AsInt64() == 2 {
			found = true
		}
	}
	if !found {
		t.Error("expected execution.resume_position attribute")
	}
}
