package events

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HarborLabs/playbook/execution"
)

func TestEmitterStampsContext(t *testing.T) {
	bus := NewBus()
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	var got *Event
	bus.SubscribeAll(func(e *Event) { got = e })

	emitter := NewEmitter(bus, "exec-1", "renewal-v2").WithTimeFunc(func() time.Time { return fixed })
	emitter.StepCompleted(10, "kickoff")

	require.NotNil(t, got)
	assert.Equal(t, EventStepCompleted, got.Type)
	assert.Equal(t, "exec-1", got.ExecutionID)
	assert.Equal(t, "renewal-v2", got.WorkflowID)
	assert.Equal(t, fixed, got.Timestamp)
	assert.Equal(t, StepCompletedData{Ordinal: 10, StepID: "kickoff"}, got.Data)
}

func TestEmitterNilSafe(t *testing.T) {
	var emitter *Emitter
	assert.NotPanics(t, func() {
		emitter.ExecutionStarted(3)
		emitter.StepSkipped(20, "health", "no data yet")
	})
}

func TestEmitterEventTypes(t *testing.T) {
	bus := NewBus()

	var types []EventType
	bus.SubscribeAll(func(e *Event) { types = append(types, e.Type) })

	emitter := NewEmitter(bus, "exec-1", "renewal-v2")
	emitter.ExecutionStarted(3)
	emitter.ExecutionResumed(1, 7, []int{20}, 4)
	emitter.StepEntered(1, 20, "health")
	emitter.BranchRouted("health", "scope", "trigger")
	emitter.TriggerMatched("health", "refund", "scope")
	emitter.ActionUnknown("teleport", "health")
	emitter.SnapshotSaveStarted(8)
	emitter.SnapshotSaveFailed(8, errors.New("connection refused"))
	emitter.ExecutionCompleted(execution.StatusCompleted, 3, 0, 0, time.Minute)

	assert.Equal(t, []EventType{
		EventExecutionStarted,
		EventExecutionResumed,
		EventStepEntered,
		EventBranchRouted,
		EventTriggerMatched,
		EventActionUnknown,
		EventSnapshotSaveStarted,
		EventSnapshotSaveFailed,
		EventExecutionCompleted,
	}, types)
}

func TestEmitterSaveFailedPayload(t *testing.T) {
	bus := NewBus()

	var got *Event
	bus.Subscribe(EventSnapshotSaveFailed, func(e *Event) { got = e })

	NewEmitter(bus, "exec-1", "renewal-v2").SnapshotSaveFailed(12, errors.New("timeout"))

	require.NotNil(t, got)
	data, ok := got.Data.(SnapshotSaveFailedData)
	require.True(t, ok)
	assert.Equal(t, int64(12), data.Version)
	assert.Equal(t, "timeout", data.Error)
}
