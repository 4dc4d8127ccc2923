package events

import (
	"time"

	"github.com/HarborLabs/playbook/execution"
	"github.com/HarborLabs/playbook/types"
)

// Emitter publishes engine events with shared execution metadata. A nil
// Emitter (or one without a bus) is safe to use; every method is a no-op.
type Emitter struct {
	bus         *Bus
	executionID string
	workflowID  string
	now         func() time.Time
}

// NewEmitter creates an event emitter for one execution.
func NewEmitter(bus *Bus, executionID, workflowID string) *Emitter {
	return &Emitter{
		bus:         bus,
		executionID: executionID,
		workflowID:  workflowID,
		now:         time.Now,
	}
}

// WithTimeFunc overrides the event timestamp source for deterministic tests.
func (e *Emitter) WithTimeFunc(fn func() time.Time) *Emitter {
	e.now = fn
	return e
}

// emit publishes an event with shared context fields.
func (e *Emitter) emit(eventType EventType, data EventData) {
	if e == nil || e.bus == nil {
		return
	}

	e.bus.Publish(&Event{
		Type:        eventType,
		Timestamp:   e.now(),
		ExecutionID: e.executionID,
		WorkflowID:  e.workflowID,
		Data:        data,
	})
}

// ExecutionStarted emits the execution.started event.
func (e *Emitter) ExecutionStarted(stepCount int) {
	e.emit(EventExecutionStarted, ExecutionStartedData{StepCount: stepCount})
}

// ExecutionResumed emits the execution.resumed event.
func (e *Emitter) ExecutionResumed(position int, version int64, woken []int, messages int) {
	e.emit(EventExecutionResumed, ExecutionResumedData{
		Position:    position,
		Version:     version,
		WokenSteps:  woken,
		MessageLoad: messages,
	})
}

// ExecutionCompleted emits the execution.completed event.
func (e *Emitter) ExecutionCompleted(status execution.Status, completed, skipped, snoozed int, duration time.Duration) {
	e.emit(EventExecutionCompleted, ExecutionCompletedData{
		Status:    status,
		Completed: completed,
		Skipped:   skipped,
		Snoozed:   snoozed,
		Duration:  duration,
	})
}

// ExecutionExited emits the execution.exited event.
func (e *Emitter) ExecutionExited(position int, saved bool) {
	e.emit(EventExecutionExited, ExecutionExitedData{Position: position, Saved: saved})
}

// StepEntered emits the step.entered event.
func (e *Emitter) StepEntered(index, ordinal int, stepID string) {
	e.emit(EventStepEntered, StepEnteredData{Index: index, Ordinal: ordinal, StepID: stepID})
}

// StepCompleted emits the step.completed event.
func (e *Emitter) StepCompleted(ordinal int, stepID string) {
	e.emit(EventStepCompleted, StepCompletedData{Ordinal: ordinal, StepID: stepID})
}

// StepSkipped emits the step.skipped event.
func (e *Emitter) StepSkipped(ordinal int, stepID, reason string) {
	e.emit(EventStepSkipped, StepSkippedData{Ordinal: ordinal, StepID: stepID, Reason: reason})
}

// StepSnoozed emits the step.snoozed event.
func (e *Emitter) StepSnoozed(ordinal int, stepID string, until time.Time) {
	e.emit(EventStepSnoozed, StepSnoozedData{Ordinal: ordinal, StepID: stepID, Until: until})
}

// BranchRouted emits the branch.routed event.
func (e *Emitter) BranchRouted(stepID, branchID, source string) {
	e.emit(EventBranchRouted, BranchRoutedData{StepID: stepID, BranchID: branchID, Source: source})
}

// TriggerMatched emits the trigger.matched event.
func (e *Emitter) TriggerMatched(stepID, pattern, target string) {
	e.emit(EventTriggerMatched, TriggerMatchedData{StepID: stepID, Pattern: pattern, Target: target})
}

// MessageAppended emits the message.appended event.
func (e *Emitter) MessageAppended(msg types.Message) {
	e.emit(EventMessageAppended, MessageAppendedData{Message: msg})
}

// ActionUnknown emits the action.unknown event.
func (e *Emitter) ActionUnknown(action, stepID string) {
	e.emit(EventActionUnknown, ActionUnknownData{Action: action, StepID: stepID})
}

// ArtifactGenerated emits the artifact.generated event.
func (e *Emitter) ArtifactGenerated(ordinal int, artifact types.Artifact) {
	e.emit(EventArtifactGenerated, ArtifactGeneratedData{Ordinal: ordinal, Artifact: artifact})
}

// SnapshotSaveStarted emits the snapshot.save.started event.
func (e *Emitter) SnapshotSaveStarted(version int64) {
	e.emit(EventSnapshotSaveStarted, SnapshotSaveStartedData{Version: version})
}

// SnapshotSaved emits the snapshot.saved event.
func (e *Emitter) SnapshotSaved(version int64, duration time.Duration) {
	e.emit(EventSnapshotSaved, SnapshotSavedData{Version: version, Duration: duration})
}

// SnapshotSaveFailed emits the snapshot.save.failed event.
func (e *Emitter) SnapshotSaveFailed(version int64, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	e.emit(EventSnapshotSaveFailed, SnapshotSaveFailedData{Version: version, Error: msg})
}

// SnapshotLoaded emits the snapshot.loaded event.
func (e *Emitter) SnapshotLoaded(version int64, stale bool) {
	e.emit(EventSnapshotLoaded, SnapshotLoadedData{Version: version, Stale: stale})
}
