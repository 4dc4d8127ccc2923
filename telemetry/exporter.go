// Package telemetry provides OpenTelemetry export for execution event streams.
// This enables exporting recorded executions as distributed traces to
// observability platforms.
package telemetry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/HarborLabs/playbook/events"
	"github.com/HarborLabs/playbook/version"
)

// Exporter exports execution spans to an observability backend.
type Exporter interface {
	// Export sends spans to the backend.
	Export(ctx context.Context, spans []*Span) error

	// Shutdown performs cleanup and flushes any pending data.
	Shutdown(ctx context.Context) error
}

// Span represents a trace span in OpenTelemetry format.
type Span struct {
	// TraceID is the unique identifier for the trace (16 bytes, hex-encoded).
	TraceID string `json:"traceId"`
	// SpanID is the unique identifier for this span (8 bytes, hex-encoded).
	SpanID string `json:"spanId"`
	// ParentSpanID is the ID of the parent span (empty for root spans).
	ParentSpanID string `json:"parentSpanId,omitempty"`
	// Name is the operation name.
	Name string `json:"name"`
	// Kind is the span kind (client, server, producer, consumer, internal).
	Kind SpanKind `json:"kind"`
	// StartTime is when the span started.
	StartTime time.Time `json:"startTimeUnixNano"`
	// EndTime is when the span ended.
	EndTime time.Time `json:"endTimeUnixNano"`
	// Attributes are key-value pairs associated with the span.
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	// Status is the span status.
	Status *SpanStatus `json:"status,omitempty"`
	// Events are timestamped events within the span.
	Events []*SpanEvent `json:"events,omitempty"`
}

// SpanKind represents the type of span.
type SpanKind int

// Span kinds.
const (
	SpanKindUnspecified SpanKind = 0
	SpanKindInternal    SpanKind = 1
	SpanKindServer      SpanKind = 2
	SpanKindClient      SpanKind = 3
	SpanKindProducer    SpanKind = 4
	SpanKindConsumer    SpanKind = 5
)

// SpanStatus represents the status of a span.
type SpanStatus struct {
	// Code is the status code (0=Unset, 1=Ok, 2=Error).
	Code StatusCode `json:"code"`
	// Message is the status message.
	Message string `json:"message,omitempty"`
}

// StatusCode represents the status of a span.
type StatusCode int

// Status codes.
const (
	StatusCodeUnset StatusCode = 0
	StatusCodeOk    StatusCode = 1
	StatusCodeError StatusCode = 2
)

// SpanEvent represents an event within a span.
type SpanEvent struct {
	// Name is the event name.
	Name string `json:"name"`
	// Time is when the event occurred.
	Time time.Time `json:"timeUnixNano"`
	// Attributes are key-value pairs associated with the event.
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Resource represents the entity producing telemetry.
type Resource struct {
	// Attributes are key-value pairs describing the resource.
	Attributes map[string]interface{} `json:"attributes"`
}

// DefaultResource returns a default resource for playbook.
func DefaultResource() *Resource {
	return &Resource{
		Attributes: map[string]interface{}{
			"service.name":    "playbook",
			"service.version": version.GetVersion(),
			"telemetry.sdk":   "playbook-telemetry",
		},
	}
}

// ResourceWithWorkflowID returns a default resource with the workflow.id attribute set.
func ResourceWithWorkflowID(workflowID string) *Resource {
	r := DefaultResource()
	r.Attributes["workflow.id"] = workflowID
	return r
}

// EventConverter converts engine events to OTLP spans.
type EventConverter struct {
	// Resource is the resource to attach to spans.
	Resource *Resource
}

// NewEventConverter creates a new event converter.
func NewEventConverter(resource *Resource) *EventConverter {
	if resource == nil {
		resource = DefaultResource()
	}
	return &EventConverter{Resource: resource}
}

// ConvertExecution converts an execution's events to spans.
// The execution becomes the root span, with steps and snapshot writes as
// child spans.
func (c *EventConverter) ConvertExecution(
	executionID string, execEvents []events.Event,
) ([]*Span, error) {
	if len(execEvents) == 0 {
		return nil, nil
	}
	traceID := generateTraceID(executionID)
	return c.buildTrace(executionID, execEvents, traceID, "")
}

// ConvertExecutionWithParent converts an execution's events to spans, using the
// provided trace context as the parent trace instead of generating a fresh one
// from the execution ID. If traceCtx is nil or has an empty Traceparent, it
// falls back to ConvertExecution behavior.
func (c *EventConverter) ConvertExecutionWithParent(
	executionID string, execEvents []events.Event, traceCtx *TraceContext,
) ([]*Span, error) {
	if traceCtx == nil || traceCtx.Traceparent == "" {
		return c.ConvertExecution(executionID, execEvents)
	}

	parentTraceID, parentSpanID, ok := parseTraceparent(traceCtx.Traceparent)
	if !ok {
		return c.ConvertExecution(executionID, execEvents)
	}

	if len(execEvents) == 0 {
		return nil, nil
	}

	return c.buildTrace(executionID, execEvents, parentTraceID, parentSpanID)
}

// buildTrace creates the root execution span and converts all events into
// child spans. parentSpanID is set on the root span when propagating an
// inbound trace context.
func (c *EventConverter) buildTrace(
	executionID string, execEvents []events.Event, traceID, parentSpanID string,
) ([]*Span, error) {
	rootSpanID := generateSpanID(executionID + ":root")

	var startTime, endTime time.Time
	for _, evt := range execEvents {
		if startTime.IsZero() || evt.Timestamp.Before(startTime) {
			startTime = evt.Timestamp
		}
		if endTime.IsZero() || evt.Timestamp.After(endTime) {
			endTime = evt.Timestamp
		}
	}

	rootSpan := &Span{
		TraceID:      traceID,
		SpanID:       rootSpanID,
		ParentSpanID: parentSpanID,
		Name:         "execution",
		Kind:         SpanKindServer,
		StartTime:    startTime,
		EndTime:      endTime,
		Attributes: map[string]interface{}{
			"execution.id": executionID,
		},
		Status: &SpanStatus{Code: StatusCodeOk},
	}
	if len(execEvents) > 0 && execEvents[0].WorkflowID != "" {
		rootSpan.Attributes["workflow.id"] = execEvents[0].WorkflowID
	}

	spans := []*Span{rootSpan}
	spanStack := make(map[string]*Span)
	spanStack["root"] = rootSpan

	for i := range execEvents {
		span := c.convertEvent(traceID, rootSpanID, &execEvents[i], spanStack)
		if span != nil {
			spans = append(spans, span)
		}
	}

	// Steps still open when the stream ends are flushed as-is.
	for key, span := range spanStack {
		if key != "root" && key != "step.current" {
			spans = append(spans, span)
		}
	}

	return spans, nil
}

// convertEvent converts a single event to a span or updates an existing span.
func (c *EventConverter) convertEvent(
	traceID, rootSpanID string, evt *events.Event, spanStack map[string]*Span,
) *Span {
	//nolint:exhaustive // Only handling span-producing events, others are ignored via default
	switch evt.Type {
	case events.EventExecutionCompleted:
		c.completeRootSpan(evt, spanStack)
		return nil
	case events.EventExecutionExited:
		c.exitRootSpan(evt, spanStack)
		return nil
	case events.EventStepEntered:
		return c.createStepSpan(traceID, rootSpanID, evt, spanStack)
	case events.EventStepCompleted, events.EventStepSkipped, events.EventStepSnoozed:
		return c.completeStepSpan(evt, spanStack)
	case events.EventBranchRouted:
		c.handleBranchRouted(evt, spanStack)
		return nil
	case events.EventTriggerMatched:
		c.handleTriggerMatched(evt, spanStack)
		return nil
	case events.EventMessageAppended:
		c.handleMessageAppended(evt, spanStack)
		return nil
	case events.EventArtifactGenerated:
		return c.createArtifactSpan(traceID, rootSpanID, evt)
	case events.EventSnapshotSaveStarted:
		return c.createSaveSpan(traceID, rootSpanID, evt, spanStack)
	case events.EventSnapshotSaved, events.EventSnapshotSaveFailed:
		return c.completeSaveSpan(evt, spanStack)
	default:
		return nil
	}
}

func (c *EventConverter) completeRootSpan(evt *events.Event, spanStack map[string]*Span) {
	data, ok := evt.Data.(events.ExecutionCompletedData)
	if !ok {
		return
	}
	root := spanStack["root"]
	if root == nil {
		return
	}
	root.Attributes["execution.status"] = string(data.Status)
	root.Attributes["execution.steps_completed"] = data.Completed
	root.Attributes["execution.steps_skipped"] = data.Skipped
	root.Attributes["execution.steps_snoozed"] = data.Snoozed
	root.Attributes["execution.duration_ms"] = data.Duration.Milliseconds()
}

func (c *EventConverter) exitRootSpan(evt *events.Event, spanStack map[string]*Span) {
	data, ok := evt.Data.(events.ExecutionExitedData)
	if !ok {
		return
	}
	root := spanStack["root"]
	if root == nil {
		return
	}
	root.Attributes["execution.status"] = "exited"
	root.Attributes["execution.exit_position"] = data.Position
	root.Attributes["execution.exit_saved"] = data.Saved
}

func (c *EventConverter) createStepSpan(
	traceID, rootSpanID string, evt *events.Event, spanStack map[string]*Span,
) *Span {
	data, ok := evt.Data.(events.StepEnteredData)
	if !ok {
		return nil
	}

	spanID := generateSpanID(fmt.Sprintf("%s:step:%s:%d", evt.ExecutionID, data.StepID, evt.Timestamp.UnixNano()))
	span := &Span{
		TraceID:      traceID,
		SpanID:       spanID,
		ParentSpanID: rootSpanID,
		Name:         "step." + data.StepID,
		Kind:         SpanKindInternal,
		StartTime:    evt.Timestamp,
		EndTime:      evt.Timestamp, // Updated on settlement
		Attributes: map[string]interface{}{
			"step.id":      data.StepID,
			"step.ordinal": data.Ordinal,
			"step.index":   data.Index,
		},
	}
	spanStack[stepKey(data.Ordinal)] = span
	spanStack["step.current"] = span
	return nil // Don't return until settled
}

func (c *EventConverter) completeStepSpan(evt *events.Event, spanStack map[string]*Span) *Span {
	var (
		ordinal     int
		disposition string
	)
	switch data := evt.Data.(type) {
	case events.StepCompletedData:
		ordinal, disposition = data.Ordinal, "completed"
	case events.StepSkippedData:
		ordinal, disposition = data.Ordinal, "skipped"
	case events.StepSnoozedData:
		ordinal, disposition = data.Ordinal, "snoozed"
	default:
		return nil
	}

	key := stepKey(ordinal)
	span, ok := spanStack[key]
	if !ok {
		return nil
	}
	delete(spanStack, key)
	if spanStack["step.current"] == span {
		delete(spanStack, "step.current")
	}

	span.EndTime = evt.Timestamp
	span.Attributes["step.disposition"] = disposition
	if data, ok := evt.Data.(events.StepSkippedData); ok {
		span.Attributes["step.skip_reason"] = data.Reason
	}
	span.Status = &SpanStatus{Code: StatusCodeOk}
	return span
}

func (c *EventConverter) handleBranchRouted(evt *events.Event, spanStack map[string]*Span) {
	data, ok := evt.Data.(events.BranchRoutedData)
	if !ok {
		return
	}
	c.addStepEvent(spanStack, &SpanEvent{
		Name: "branch.routed",
		Time: evt.Timestamp,
		Attributes: map[string]interface{}{
			"branch.id":     data.BranchID,
			"branch.source": data.Source,
		},
	})
}

func (c *EventConverter) handleTriggerMatched(evt *events.Event, spanStack map[string]*Span) {
	data, ok := evt.Data.(events.TriggerMatchedData)
	if !ok {
		return
	}
	c.addStepEvent(spanStack, &SpanEvent{
		Name: "trigger.matched",
		Time: evt.Timestamp,
		Attributes: map[string]interface{}{
			"trigger.pattern": data.Pattern,
			"trigger.target":  data.Target,
		},
	})
}

func (c *EventConverter) handleMessageAppended(evt *events.Event, spanStack map[string]*Span) {
	data, ok := evt.Data.(events.MessageAppendedData)
	if !ok {
		return
	}
	c.addStepEvent(spanStack, &SpanEvent{
		Name: "chat." + string(data.Message.Role) + ".message",
		Time: evt.Timestamp,
		Attributes: map[string]interface{}{
			"chat.message.content": data.Message.Content,
		},
	})
}

// addStepEvent attaches an event to the currently open step span, falling
// back to the root span when no step is open.
func (c *EventConverter) addStepEvent(spanStack map[string]*Span, spanEvent *SpanEvent) {
	if span, ok := spanStack["step.current"]; ok {
		span.Events = append(span.Events, spanEvent)
		return
	}
	if root, ok := spanStack["root"]; ok {
		root.Events = append(root.Events, spanEvent)
	}
}

func (c *EventConverter) createArtifactSpan(
	traceID, rootSpanID string, evt *events.Event,
) *Span {
	data, ok := evt.Data.(events.ArtifactGeneratedData)
	if !ok {
		return nil
	}

	spanID := generateSpanID(evt.ExecutionID + ":artifact:" + data.Artifact.ID)
	return &Span{
		TraceID:      traceID,
		SpanID:       spanID,
		ParentSpanID: rootSpanID,
		Name:         "artifact.generated",
		Kind:         SpanKindProducer,
		StartTime:    evt.Timestamp,
		EndTime:      evt.Timestamp,
		Attributes: map[string]interface{}{
			"artifact.id":      data.Artifact.ID,
			"artifact.type":    string(data.Artifact.Type),
			"artifact.title":   data.Artifact.Title,
			"artifact.ordinal": data.Ordinal,
		},
		Status: &SpanStatus{Code: StatusCodeOk},
	}
}

func (c *EventConverter) createSaveSpan(
	traceID, rootSpanID string, evt *events.Event, spanStack map[string]*Span,
) *Span {
	data, ok := evt.Data.(events.SnapshotSaveStartedData)
	if !ok {
		return nil
	}

	spanID := generateSpanID(fmt.Sprintf("%s:save:%d", evt.ExecutionID, data.Version))
	span := &Span{
		TraceID:      traceID,
		SpanID:       spanID,
		ParentSpanID: rootSpanID,
		Name:         "snapshot.save",
		Kind:         SpanKindClient,
		StartTime:    evt.Timestamp,
		EndTime:      evt.Timestamp,
		Attributes: map[string]interface{}{
			"snapshot.version": data.Version,
		},
	}
	spanStack[saveKey(data.Version)] = span
	return nil
}

func (c *EventConverter) completeSaveSpan(evt *events.Event, spanStack map[string]*Span) *Span {
	var version int64
	switch data := evt.Data.(type) {
	case events.SnapshotSavedData:
		version = data.Version
	case events.SnapshotSaveFailedData:
		version = data.Version
	default:
		return nil
	}

	key := saveKey(version)
	span, ok := spanStack[key]
	if !ok {
		return nil
	}
	delete(spanStack, key)

	span.EndTime = evt.Timestamp

	switch data := evt.Data.(type) {
	case events.SnapshotSavedData:
		span.Attributes["snapshot.duration_ms"] = data.Duration.Milliseconds()
		span.Status = &SpanStatus{Code: StatusCodeOk}
	case events.SnapshotSaveFailedData:
		span.Status = &SpanStatus{
			Code:    StatusCodeError,
			Message: data.Error,
		}
	}

	return span
}

func stepKey(ordinal int) string {
	return fmt.Sprintf("step:%d", ordinal)
}

func saveKey(version int64) string {
	return fmt.Sprintf("save:%d", version)
}

// parseTraceparent extracts trace ID and span ID from a W3C traceparent header.
// Format: version-trace_id-parent_id-trace_flags (e.g., 00-<32 hex>-<16 hex>-<2 hex>).
func parseTraceparent(tp string) (traceID, spanID string, ok bool) {
	if !traceparentRe.MatchString(tp) {
		return "", "", false
	}
	// 00-<32 hex traceID>-<16 hex spanID>-<2 hex flags>
	traceID = tp[3:35]
	spanID = tp[36:52]
	return traceID, spanID, true
}

// generateTraceID generates a 16-byte trace ID from a string.
func generateTraceID(s string) string {
	// Use first 16 bytes of SHA256 hash
	hash := sha256Sum(s)
	return hex.EncodeToString(hash[:16])
}

// generateSpanID generates an 8-byte span ID from a string.
func generateSpanID(s string) string {
	// Use first 8 bytes of SHA256 hash
	hash := sha256Sum(s)
	return hex.EncodeToString(hash[:8])
}

// sha256Sum computes SHA256 hash of a string.
func sha256Sum(s string) [32]byte {
	return sha256.Sum256([]byte(s))
}
