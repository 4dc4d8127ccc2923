package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/HarborLabs/playbook/events"
	"github.com/HarborLabs/playbook/execution"
	"github.com/HarborLabs/playbook/types"
)

func executionEvents(executionID string) []events.Event {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	at := func(sec int) time.Time { return base.Add(time.Duration(sec) * time.Second) }

	return []events.Event{
		{
			Type: events.EventExecutionStarted, Timestamp: at(0),
			ExecutionID: executionID, WorkflowID: "renewal-v2",
			Data: events.ExecutionStartedData{StepCount: 2},
		},
		{
			Type: events.EventStepEntered, Timestamp: at(1),
			ExecutionID: executionID, WorkflowID: "renewal-v2",
			Data: events.StepEnteredData{Index: 0, Ordinal: 10, StepID: "kickoff"},
		},
		{
			Type: events.EventBranchRouted, Timestamp: at(2),
			ExecutionID: executionID, WorkflowID: "renewal-v2",
			Data: events.BranchRoutedData{StepID: "kickoff", BranchID: "scope", Source: "trigger"},
		},
		{
			Type: events.EventMessageAppended, Timestamp: at(3),
			ExecutionID: executionID, WorkflowID: "renewal-v2",
			Data: events.MessageAppendedData{Message: types.Message{Role: types.RoleUser, Content: "I want a refund"}},
		},
		{
			Type: events.EventStepCompleted, Timestamp: at(4),
			ExecutionID: executionID, WorkflowID: "renewal-v2",
			Data: events.StepCompletedData{Ordinal: 10, StepID: "kickoff"},
		},
		{
			Type: events.EventSnapshotSaveStarted, Timestamp: at(5),
			ExecutionID: executionID, WorkflowID: "renewal-v2",
			Data: events.SnapshotSaveStartedData{Version: 2},
		},
		{
			Type: events.EventSnapshotSaved, Timestamp: at(5),
			ExecutionID: executionID, WorkflowID: "renewal-v2",
			Data: events.SnapshotSavedData{Version: 2, Duration: 12 * time.Millisecond},
		},
		{
			Type: events.EventExecutionCompleted, Timestamp: at(6),
			ExecutionID: executionID, WorkflowID: "renewal-v2",
			Data: events.ExecutionCompletedData{
				Status: execution.StatusCompleted, Completed: 2, Duration: 6 * time.Second,
			},
		},
	}
}

func spanByName(spans []*Span, name string) *Span {
	for _, s := range spans {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func TestConvertExecution(t *testing.T) {
	conv := NewEventConverter(nil)

	spans, err := conv.ConvertExecution("exec-1", executionEvents("exec-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	root := spanByName(spans, "execution")
	if root == nil {
		t.Fatal("expected execution root span")
	}
	if root.Attributes["execution.id"] != "exec-1" {
		t.Errorf("expected execution.id attribute, got %v", root.Attributes["execution.id"])
	}
	if root.Attributes["workflow.id"] != "renewal-v2" {
		t.Errorf("expected workflow.id attribute, got %v", root.Attributes["workflow.id"])
	}
	if root.Attributes["execution.status"] != "completed" {
		t.Errorf("expected execution.status=completed, got %v", root.Attributes["execution.status"])
	}

	step := spanByName(spans, "step.kickoff")
	if step == nil {
		t.Fatal("expected step span")
	}
	if step.ParentSpanID != root.SpanID {
		t.Error("expected step span to be parented under root")
	}
	if step.Attributes["step.disposition"] != "completed" {
		t.Errorf("expected disposition completed, got %v", step.Attributes["step.disposition"])
	}
	// Branch route and chat message attach to the open step span as events.
	if len(step.Events) != 2 {
		t.Fatalf("expected 2 step span events, got %d", len(step.Events))
	}
	if step.Events[0].Name != "branch.routed" {
		t.Errorf("expected branch.routed event, got %q", step.Events[0].Name)
	}
	if step.Events[1].Name != "chat.user.message" {
		t.Errorf("expected chat.user.message event, got %q", step.Events[1].Name)
	}

	save := spanByName(spans, "snapshot.save")
	if save == nil {
		t.Fatal("expected snapshot.save span")
	}
	if save.Status == nil || save.Status.Code != StatusCodeOk {
		t.Error("expected Ok save status")
	}
}

func TestConvertExecutionEmptyEvents(t *testing.T) {
	conv := NewEventConverter(nil)

	spans, err := conv.ConvertExecution("exec-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spans != nil {
		t.Errorf("expected nil spans, got %d", len(spans))
	}
}

func TestConvertExecutionDeterministicIDs(t *testing.T) {
	conv := NewEventConverter(nil)

	first, err := conv.ConvertExecution("exec-1", executionEvents("exec-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := conv.ConvertExecution("exec-1", executionEvents("exec-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first[0].TraceID != second[0].TraceID {
		t.Error("expected deterministic trace IDs for the same execution")
	}
	if first[0].SpanID != second[0].SpanID {
		t.Error("expected deterministic root span IDs for the same execution")
	}
}

func TestConvertExecutionFailedSave(t *testing.T) {
	conv := NewEventConverter(nil)
	base := time.Now()

	evts := []events.Event{
		{
			Type: events.EventExecutionStarted, Timestamp: base,
			ExecutionID: "exec-1", WorkflowID: "renewal-v2",
			Data: events.ExecutionStartedData{StepCount: 1},
		},
		{
			Type: events.EventSnapshotSaveStarted, Timestamp: base.Add(time.Second),
			ExecutionID: "exec-1",
			Data:        events.SnapshotSaveStartedData{Version: 5},
		},
		{
			Type: events.EventSnapshotSaveFailed, Timestamp: base.Add(2 * time.Second),
			ExecutionID: "exec-1",
			Data:        events.SnapshotSaveFailedData{Version: 5, Error: "store down"},
		},
	}

	spans, err := conv.ConvertExecution("exec-1", evts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	save := spanByName(spans, "snapshot.save")
	if save == nil {
		t.Fatal("expected snapshot.save span")
	}
	if save.Status == nil || save.Status.Code != StatusCodeError {
		t.Error("expected Error save status")
	}
	if save.Status.Message != "store down" {
		t.Errorf("expected error message, got %q", save.Status.Message)
	}
}

func TestConvertExecutionArtifactSpan(t *testing.T) {
	conv := NewEventConverter(nil)
	base := time.Now()

	evts := []events.Event{
		{
			Type: events.EventExecutionStarted, Timestamp: base,
			ExecutionID: "exec-1", WorkflowID: "renewal-v2",
			Data: events.ExecutionStartedData{StepCount: 1},
		},
		{
			Type: events.EventArtifactGenerated, Timestamp: base.Add(time.Second),
			ExecutionID: "exec-1",
			Data: events.ArtifactGeneratedData{
				Ordinal:  30,
				Artifact: types.Artifact{ID: "art-1", Title: "Renewal Plan", Type: types.ArtifactDocument},
			},
		},
	}

	spans, err := conv.ConvertExecution("exec-1", evts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	art := spanByName(spans, "artifact.generated")
	if art == nil {
		t.Fatal("expected artifact span")
	}
	if art.Attributes["artifact.type"] != "document" {
		t.Errorf("expected artifact.type=document, got %v", art.Attributes["artifact.type"])
	}
	if art.Kind != SpanKindProducer {
		t.Errorf("expected producer kind, got %v", art.Kind)
	}
}

func TestConvertExecutionWithParent(t *testing.T) {
	conv := NewEventConverter(nil)
	tc := &TraceContext{
		Traceparent: "00-0123456789abcdef0123456789abcdef-0123456789abcdef-01",
	}

	spans, err := conv.ConvertExecutionWithParent("exec-1", executionEvents("exec-1"), tc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	root := spanByName(spans, "execution")
	if root == nil {
		t.Fatal("expected execution root span")
	}
	if root.TraceID != "0123456789abcdef0123456789abcdef" {
		t.Errorf("expected inherited trace ID, got %q", root.TraceID)
	}
	if root.ParentSpanID != "0123456789abcdef" {
		t.Errorf("expected inherited parent span ID, got %q", root.ParentSpanID)
	}
}

func TestConvertExecutionWithParentInvalidFallsBack(t *testing.T) {
	conv := NewEventConverter(nil)
	tc := &TraceContext{Traceparent: "garbage"}

	spans, err := conv.ConvertExecutionWithParent("exec-1", executionEvents("exec-1"), tc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	root := spanByName(spans, "execution")
	if root == nil {
		t.Fatal("expected execution root span")
	}
	if root.ParentSpanID != "" {
		t.Errorf("expected no parent span, got %q", root.ParentSpanID)
	}
}

func TestResourceWithWorkflowID(t *testing.T) {
	r := ResourceWithWorkflowID("renewal-v2")
	if r.Attributes["workflow.id"] != "renewal-v2" {
		t.Errorf("expected workflow.id attribute, got %v", r.Attributes["workflow.id"])
	}
	if r.Attributes["service.name"] != "playbook" {
		t.Errorf("expected service.name=playbook, got %v", r.Attributes["service.name"])
	}
}

// mockHTTPClient captures OTLP export requests.
type mockHTTPClient struct {
	lastBody   []byte
	statusCode int
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.lastBody, _ = io.ReadAll(req.Body)
	code := m.statusCode
	if code == 0 {
		code = http.StatusOK
	}
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func TestOTLPExporterExport(t *testing.T) {
	client := &mockHTTPClient{}
	exporter := NewOTLPExporter("http://collector:4318/v1/traces", WithHTTPClient(client))

	conv := NewEventConverter(nil)
	spans, err := conv.ConvertExecution("exec-1", executionEvents("exec-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := exporter.Export(context.Background(), spans); err != nil {
		t.Fatalf("unexpected export error: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(client.lastBody, &payload); err != nil {
		t.Fatalf("invalid OTLP payload: %v", err)
	}
	if _, ok := payload["resourceSpans"]; !ok {
		t.Error("expected resourceSpans in OTLP payload")
	}
	if !strings.Contains(string(client.lastBody), "playbook-telemetry") {
		t.Error("expected playbook-telemetry scope in payload")
	}
}

func TestOTLPExporterExportEmpty(t *testing.T) {
	client := &mockHTTPClient{}
	exporter := NewOTLPExporter("http://collector:4318/v1/traces", WithHTTPClient(client))

	if err := exporter.Export(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.lastBody != nil {
		t.Error("expected no request for empty span batch")
	}
}

func TestOTLPExporterExportFailure(t *testing.T) {
	client := &mockHTTPClient{statusCode: http.StatusInternalServerError}
	exporter := NewOTLPExporter("http://collector:4318/v1/traces", WithHTTPClient(client))

	spans := []*Span{{TraceID: "t", SpanID: "s", Name: "execution"}}
	if err := exporter.Export(context.Background(), spans); err == nil {
		t.Error("expected error on 500 response")
	}
}

func TestOTLPExporterQueueFlushesAtBatchSize(t *testing.T) {
	client := &mockHTTPClient{}
	exporter := NewOTLPExporter("http://collector:4318/v1/traces",
		WithHTTPClient(client), WithBatchSize(2))

	ctx := context.Background()
	if err := exporter.Queue(ctx, &Span{TraceID: "t", SpanID: "s1", Name: "step.kickoff"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.lastBody != nil {
		t.Fatal("expected no export before the batch fills")
	}

	if err := exporter.Queue(ctx, &Span{TraceID: "t", SpanID: "s2", Name: "step.wrap-up"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.lastBody == nil {
		t.Fatal("expected export once the batch filled")
	}

	// The queue drained; Shutdown has nothing left to send.
	client.lastBody = nil
	if err := exporter.Shutdown(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.lastBody != nil {
		t.Error("expected no export on shutdown with an empty queue")
	}
}
