// Package prometheus provides Prometheus metrics exporters for playbook executions.
package prometheus

import (
	"github.com/HarborLabs/playbook/events"
)

// Status constants for metric labels.
const (
	statusFresh = "fresh"
	statusStale = "stale"
)

// MetricsListener records engine events as Prometheus metrics.
// It implements the events.Listener signature and should be registered
// with an EventBus using SubscribeAll.
type MetricsListener struct{}

// NewMetricsListener creates a new MetricsListener.
func NewMetricsListener() *MetricsListener {
	return &MetricsListener{}
}

// Handle processes an event and records relevant metrics.
// This method is designed to be used with EventBus.SubscribeAll.
func (l *MetricsListener) Handle(event *events.Event) {
	//exhaustive:ignore
	switch event.Type {
	case events.EventExecutionStarted:
		RecordExecutionStart()
	case events.EventExecutionResumed:
		RecordExecutionStart()
	case events.EventExecutionCompleted:
		l.handleExecutionCompleted(event)
	case events.EventExecutionExited:
		RecordExecutionEnd(event.WorkflowID, "exited", 0)
	case events.EventStepEntered:
		RecordStepEntry(event.WorkflowID)
	case events.EventStepCompleted:
		RecordStepSettled(event.WorkflowID, "completed")
	case events.EventStepSkipped:
		RecordStepSettled(event.WorkflowID, "skipped")
	case events.EventStepSnoozed:
		RecordStepSettled(event.WorkflowID, "snoozed")
	case events.EventBranchRouted:
		l.handleBranchRouted(event)
	case events.EventTriggerMatched:
		RecordTriggerMatch(event.WorkflowID)
	case events.EventMessageAppended:
		l.handleMessageAppended(event)
	case events.EventActionUnknown:
		RecordUnknownAction(event.WorkflowID)
	case events.EventArtifactGenerated:
		l.handleArtifactGenerated(event)
	case events.EventSnapshotSaved:
		l.handleSnapshotSaved(event)
	case events.EventSnapshotSaveFailed:
		RecordSaveFailure(event.WorkflowID)
	case events.EventSnapshotLoaded:
		l.handleSnapshotLoaded(event)
	default:
		// Ignore events that don't have metrics
	}
}

func (l *MetricsListener) handleExecutionCompleted(event *events.Event) {
	if data, ok := event.Data.(events.ExecutionCompletedData); ok {
		RecordExecutionEnd(event.WorkflowID, string(data.Status), data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleBranchRouted(event *events.Event) {
	if data, ok := event.Data.(events.BranchRoutedData); ok {
		RecordBranchRoute(event.WorkflowID, data.Source)
	}
}

func (l *MetricsListener) handleMessageAppended(event *events.Event) {
	if data, ok := event.Data.(events.MessageAppendedData); ok {
		RecordMessage(event.WorkflowID, string(data.Message.Role))
	}
}

func (l *MetricsListener) handleArtifactGenerated(event *events.Event) {
	if data, ok := event.Data.(events.ArtifactGeneratedData); ok {
		RecordArtifact(event.WorkflowID, string(data.Artifact.Type))
	}
}

func (l *MetricsListener) handleSnapshotSaved(event *events.Event) {
	if data, ok := event.Data.(events.SnapshotSavedData); ok {
		RecordSaveSuccess(event.WorkflowID, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleSnapshotLoaded(event *events.Event) {
	if data, ok := event.Data.(events.SnapshotLoadedData); ok {
		result := statusFresh
		if data.Stale {
			result = statusStale
		}
		RecordSnapshotLoad(event.WorkflowID, result)
	}
}

// Listener returns an events.Listener function that can be registered with an EventBus.
func (l *MetricsListener) Listener() events.Listener {
	return l.Handle
}
