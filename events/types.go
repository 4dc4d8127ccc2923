package events

import (
	"time"

	"github.com/HarborLabs/playbook/execution"
	"github.com/HarborLabs/playbook/types"
)

// EventType identifies the type of event emitted by the engine.
type EventType string

const (
	// EventExecutionStarted marks a fresh execution entering its workflow.
	EventExecutionStarted EventType = "execution.started"
	// EventExecutionResumed marks an execution restored from a snapshot.
	EventExecutionResumed EventType = "execution.resumed"
	// EventExecutionCompleted marks an execution reaching a terminal status.
	EventExecutionCompleted EventType = "execution.completed"
	// EventExecutionExited marks an explicit exit before completion.
	EventExecutionExited EventType = "execution.exited"

	// EventStepEntered marks navigation onto a step.
	EventStepEntered EventType = "step.entered"
	// EventStepCompleted marks a step completion.
	EventStepCompleted EventType = "step.completed"
	// EventStepSkipped marks a step skipped with a reason.
	EventStepSkipped EventType = "step.skipped"
	// EventStepSnoozed marks a step snoozed until a wake-up time.
	EventStepSnoozed EventType = "step.snoozed"

	// EventBranchRouted marks the chat interpreter activating a branch.
	EventBranchRouted EventType = "branch.routed"
	// EventTriggerMatched marks a free-text trigger rule winning.
	EventTriggerMatched EventType = "trigger.matched"
	// EventMessageAppended marks a transcript entry being added.
	EventMessageAppended EventType = "message.appended"
	// EventActionUnknown marks an unrecognized action name being ignored.
	EventActionUnknown EventType = "action.unknown"

	// EventArtifactGenerated marks an artifact emission.
	EventArtifactGenerated EventType = "artifact.generated"

	// EventSnapshotSaveStarted marks a snapshot write beginning.
	EventSnapshotSaveStarted EventType = "snapshot.save.started"
	// EventSnapshotSaved marks a snapshot write acknowledged by the store.
	EventSnapshotSaved EventType = "snapshot.saved"
	// EventSnapshotSaveFailed marks a snapshot write failure; the in-memory
	// state stays authoritative.
	EventSnapshotSaveFailed EventType = "snapshot.save.failed"
	// EventSnapshotLoaded marks a snapshot restore.
	EventSnapshotLoaded EventType = "snapshot.loaded"
)

// Event is a single engine event delivered to listeners.
type Event struct {
	Type        EventType
	Timestamp   time.Time
	ExecutionID string
	WorkflowID  string
	Data        EventData
}

// EventData is implemented by all event payloads.
type EventData interface {
	isEventData()
}

// ExecutionStartedData carries the payload for execution.started.
type ExecutionStartedData struct {
	StepCount int
}

// ExecutionResumedData carries the payload for execution.resumed.
type ExecutionResumedData struct {
	Position    int
	Version     int64
	WokenSteps  []int
	MessageLoad int
}

// ExecutionCompletedData carries the payload for execution.completed.
type ExecutionCompletedData struct {
	Status       execution.Status
	Completed    int
	Skipped      int
	Snoozed      int
	Duration     time.Duration
	ArtifactsCut int
}

// ExecutionExitedData carries the payload for execution.exited.
type ExecutionExitedData struct {
	Position int
	Saved    bool
}

// StepEnteredData carries the payload for step.entered.
type StepEnteredData struct {
	Index   int
	Ordinal int
	StepID  string
}

// StepCompletedData carries the payload for step.completed.
type StepCompletedData struct {
	Ordinal int
	StepID  string
}

// StepSkippedData carries the payload for step.skipped.
type StepSkippedData struct {
	Ordinal int
	StepID  string
	Reason  string
}

// StepSnoozedData carries the payload for step.snoozed.
type StepSnoozedData struct {
	Ordinal int
	StepID  string
	Until   time.Time
}

// BranchRoutedData carries the payload for branch.routed.
type BranchRoutedData struct {
	StepID   string
	BranchID string
	Source   string // "trigger", "button", "component", "auto_advance", "captured", "entry"
}

// TriggerMatchedData carries the payload for trigger.matched.
type TriggerMatchedData struct {
	StepID  string
	Pattern string
	Target  string
}

// MessageAppendedData carries the payload for message.appended.
type MessageAppendedData struct {
	Message types.Message
}

// ActionUnknownData carries the payload for action.unknown.
type ActionUnknownData struct {
	Action string
	StepID string
}

// ArtifactGeneratedData carries the payload for artifact.generated.
type ArtifactGeneratedData struct {
	Ordinal  int
	Artifact types.Artifact
}

// SnapshotSaveStartedData carries the payload for snapshot.save.started.
type SnapshotSaveStartedData struct {
	Version int64
}

// SnapshotSavedData carries the payload for snapshot.saved.
type SnapshotSavedData struct {
	Version  int64
	Duration time.Duration
}

// SnapshotSaveFailedData carries the payload for snapshot.save.failed.
type SnapshotSaveFailedData struct {
	Version int64
	Error   string
}

// SnapshotLoadedData carries the payload for snapshot.loaded.
type SnapshotLoadedData struct {
	Version int64
	Stale   bool
}

func (ExecutionStartedData) isEventData() {}
func (ExecutionResumedData) isEventData() {}
func (ExecutionCompletedData) isEventData() {}
func (ExecutionExitedData) isEventData() {}
func (StepEnteredData) isEventData() {}
func (StepCompletedData) isEventData() {}
func (StepSkippedData) isEventData() {}
func (StepSnoozedData) isEventData() {}
func (BranchRoutedData) isEventData() {}
func (TriggerMatchedData) isEventData() {}
func (MessageAppendedData) isEventData() {}
func (ActionUnknownData) isEventData() {}
func (ArtifactGeneratedData) isEventData() {}
func (SnapshotSaveStartedData) isEventData() {}
func (SnapshotSavedData) isEventData() {}
func (SnapshotSaveFailedData) isEventData() {}
func (SnapshotLoadedData) isEventData() {}
