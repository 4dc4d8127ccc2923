package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/HarborLabs/playbook/events"
)

// spanEntry tracks an in-flight span and its context.
type spanEntry struct {
	span trace.Span
	ctx  context.Context //nolint:containedctx // needed to parent child spans
}

// executionState tracks the root span for an execution.
type executionState struct {
	span trace.Span
	ctx  context.Context //nolint:containedctx // needed to parent child spans
}

// pendingEnd buffers a span completion that arrived before the corresponding start.
// An async EventBus dispatches each Publish() in a separate goroutine, so
// completion events can race ahead of start events.
type pendingEnd struct {
	errMsg string // empty means success
	attrs  []attribute.KeyValue
}

// OTelEventListener converts engine events into OTel spans in real time.
// It implements the events.Listener function signature via its OnEvent method.
// It is safe for concurrent use and tolerates out-of-order event delivery.
type OTelEventListener struct {
	tracer trace.Tracer

	mu          sync.Mutex
	executions  map[string]*executionState // executionID → root span + ctx
	inflight    map[string]*spanEntry      // "step:<execID>:<ordinal>" → span + ctx
	pendingEnds map[string]*pendingEnd     // buffered completions for out-of-order delivery
}

// NewOTelEventListener creates a listener that creates OTel spans from engine events.
func NewOTelEventListener(tracer trace.Tracer) *OTelEventListener {
	return &OTelEventListener{
		tracer:      tracer,
		executions:  make(map[string]*executionState),
		inflight:    make(map[string]*spanEntry),
		pendingEnds: make(map[string]*pendingEnd),
	}
}

// OnEvent handles a single engine event and creates/completes OTel spans accordingly.
// It is safe for concurrent use and can be passed to EventBus.SubscribeAll.
func (l *OTelEventListener) OnEvent(evt *events.Event) {
	//nolint:exhaustive // Only handling span-producing events
	switch evt.Type {
	case events.EventExecutionStarted, events.EventExecutionResumed:
		l.startExecution(evt)
	case events.EventExecutionCompleted:
		l.completeExecution(evt)
	case events.EventExecutionExited:
		l.exitExecution(evt)
	case events.EventStepEntered:
		l.startStep(evt)
	case events.EventStepCompleted:
		l.settleStep(evt)
	case events.EventStepSkipped:
		l.settleStep(evt)
	case events.EventStepSnoozed:
		l.settleStep(evt)
	case events.EventBranchRouted:
		l.handleBranchRouted(evt)
	case events.EventTriggerMatched:
		l.handleTriggerMatched(evt)
	case events.EventSnapshotSaveStarted:
		l.startSave(evt)
	case events.EventSnapshotSaved:
		l.completeSave(evt)
	case events.EventSnapshotSaveFailed:
		l.failSave(evt)
	}
}

// executionCtx returns the context for the execution (to parent child spans).
// Falls back to context.Background() if the execution is unknown.
func (l *OTelEventListener) executionCtx(executionID string) context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	if es, ok := l.executions[executionID]; ok {
		return es.ctx
	}
	return context.Background()
}

// startSpan starts a span parented under the execution root and stores it in
// inflight. If a completion was already buffered (out-of-order delivery), the
// span is immediately ended.
func (l *OTelEventListener) startSpan(
	executionID, key, name string, kind trace.SpanKind, attrs ...attribute.KeyValue,
) {
	parentCtx := l.executionCtx(executionID)
	ctx, span := l.tracer.Start(parentCtx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
	l.mu.Lock()
	pe, havePending := l.pendingEnds[key]
	if havePending {
		delete(l.pendingEnds, key)
	} else {
		l.inflight[key] = &spanEntry{span: span, ctx: ctx}
	}
	l.mu.Unlock()

	if havePending {
		span.SetAttributes(pe.attrs...)
		if pe.errMsg != "" {
			span.SetStatus(codes.Error, pe.errMsg)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// endSpan ends an inflight span and removes it from the map.
// If the span hasn't started yet (out-of-order delivery), the completion is
// buffered and will be applied when startSpan creates the span.
func (l *OTelEventListener) endSpan(key string, attrs ...attribute.KeyValue) {
	l.mu.Lock()
	entry, ok := l.inflight[key]
	if ok {
		delete(l.inflight, key)
	} else {
		l.pendingEnds[key] = &pendingEnd{attrs: attrs}
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	entry.span.SetAttributes(attrs...)
	entry.span.SetStatus(codes.Ok, "")
	entry.span.End()
}

// failSpan ends an inflight span with an error status.
// If the span hasn't started yet (out-of-order delivery), the failure is
// buffered and will be applied when startSpan creates the span.
func (l *OTelEventListener) failSpan(key, errMsg string, attrs ...attribute.KeyValue) {
	l.mu.Lock()
	entry, ok := l.inflight[key]
	if ok {
		delete(l.inflight, key)
	} else {
		l.pendingEnds[key] = &pendingEnd{errMsg: errMsg, attrs: attrs}
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	entry.span.SetAttributes(attrs...)
	entry.span.SetStatus(codes.Error, errMsg)
	entry.span.End()
}

// asPtr extracts event data as a pointer, handling both value and pointer types.
func asPtr[T any](data any) (*T, bool) {
	if p, ok := data.(*T); ok {
		return p, true
	}
	if v, ok := data.(T); ok {
		return &v, true
	}
	return nil, false
}

// --- Execution ---

func (l *OTelEventListener) startExecution(evt *events.Event) {
	ctx, span := l.tracer.Start(context.Background(), "playbook.execution",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("execution.id", evt.ExecutionID),
			attribute.String("workflow.id", evt.WorkflowID),
		),
	)
	if data, ok := asPtr[events.ExecutionResumedData](evt.Data); ok {
		span.SetAttributes(
			attribute.Int("execution.resume_position", data.Position),
			attribute.Int64("execution.resume_version", data.Version),
		)
	}
	l.mu.Lock()
	l.executions[evt.ExecutionID] = &executionState{span: span, ctx: ctx}
	l.mu.Unlock()
}

func (l *OTelEventListener) completeExecution(evt *events.Event) {
	l.mu.Lock()
	es, ok := l.executions[evt.ExecutionID]
	if ok {
		delete(l.executions, evt.ExecutionID)
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	if data, ok := asPtr[events.ExecutionCompletedData](evt.Data); ok {
		es.span.SetAttributes(
			attribute.String("execution.status", string(data.Status)),
			attribute.Int("execution.steps_completed", data.Completed),
			attribute.Int("execution.steps_skipped", data.Skipped),
			attribute.Int("execution.steps_snoozed", data.Snoozed),
			attribute.Int64("execution.duration_ms", data.Duration.Milliseconds()),
		)
	}
	es.span.SetStatus(codes.Ok, "")
	es.span.End()
}

func (l *OTelEventListener) exitExecution(evt *events.Event) {
	l.mu.Lock()
	es, ok := l.executions[evt.ExecutionID]
	if ok {
		delete(l.executions, evt.ExecutionID)
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	if data, ok := asPtr[events.ExecutionExitedData](evt.Data); ok {
		es.span.SetAttributes(
			attribute.String("execution.status", "exited"),
			attribute.Int("execution.exit_position", data.Position),
			attribute.Bool("execution.exit_saved", data.Saved),
		)
	}
	es.span.End()
}

// --- Step ---

func (l *OTelEventListener) startStep(evt *events.Event) {
	data, ok := asPtr[events.StepEnteredData](evt.Data)
	if !ok {
		return
	}
	l.startSpan(evt.ExecutionID, stepSpanKey(evt.ExecutionID, data.Ordinal),
		"playbook.step."+data.StepID,
		trace.SpanKindInternal,
		attribute.String("step.id", data.StepID),
		attribute.Int("step.ordinal", data.Ordinal),
		attribute.Int("step.index", data.Index),
	)
}

func (l *OTelEventListener) settleStep(evt *events.Event) {
	switch data := evt.Data.(type) {
	case events.StepCompletedData:
		l.endSpan(stepSpanKey(evt.ExecutionID, data.Ordinal),
			attribute.String("step.disposition", "completed"),
		)
	case events.StepSkippedData:
		l.endSpan(stepSpanKey(evt.ExecutionID, data.Ordinal),
			attribute.String("step.disposition", "skipped"),
			attribute.String("step.skip_reason", data.Reason),
		)
	case events.StepSnoozedData:
		l.endSpan(stepSpanKey(evt.ExecutionID, data.Ordinal),
			attribute.String("step.disposition", "snoozed"),
		)
	}
}

// --- Routing ---

// handleBranchRouted attaches a span event to the execution root span.
func (l *OTelEventListener) handleBranchRouted(evt *events.Event) {
	data, ok := asPtr[events.BranchRoutedData](evt.Data)
	if !ok {
		return
	}
	l.mu.Lock()
	es, ok := l.executions[evt.ExecutionID]
	l.mu.Unlock()
	if !ok {
		return
	}
	es.span.AddEvent("branch.routed", trace.WithAttributes(
		attribute.String("step.id", data.StepID),
		attribute.String("branch.id", data.BranchID),
		attribute.String("branch.source", data.Source),
	))
}

func (l *OTelEventListener) handleTriggerMatched(evt *events.Event) {
	data, ok := asPtr[events.TriggerMatchedData](evt.Data)
	if !ok {
		return
	}
	l.mu.Lock()
	es, ok := l.executions[evt.ExecutionID]
	l.mu.Unlock()
	if !ok {
		return
	}
	es.span.AddEvent("trigger.matched", trace.WithAttributes(
		attribute.String("trigger.pattern", data.Pattern),
		attribute.String("trigger.target", data.Target),
	))
}

// --- Snapshot saves ---

func (l *OTelEventListener) startSave(evt *events.Event) {
	data, ok := asPtr[events.SnapshotSaveStartedData](evt.Data)
	if !ok {
		return
	}
	l.startSpan(evt.ExecutionID, saveSpanKey(evt.ExecutionID, data.Version),
		"playbook.snapshot.save",
		trace.SpanKindClient,
		attribute.Int64("snapshot.version", data.Version),
	)
}

func (l *OTelEventListener) completeSave(evt *events.Event) {
	data, ok := asPtr[events.SnapshotSavedData](evt.Data)
	if !ok {
		return
	}
	l.endSpan(saveSpanKey(evt.ExecutionID, data.Version),
		attribute.Int64("snapshot.duration_ms", data.Duration.Milliseconds()),
	)
}

func (l *OTelEventListener) failSave(evt *events.Event) {
	data, ok := asPtr[events.SnapshotSaveFailedData](evt.Data)
	if !ok {
		return
	}
	l.failSpan(saveSpanKey(evt.ExecutionID, data.Version), data.Error)
}

func stepSpanKey(executionID string, ordinal int) string {
	return fmt.Sprintf("step:%s:%d", executionID, ordinal)
}

func saveSpanKey(executionID string, version int64) string {
	return fmt.Sprintf("save:%s:%d", executionID, version)
}
