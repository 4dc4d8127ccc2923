package execution

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HarborLabs/playbook/types"
)

func fixedTime() time.Time {
	return time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
}

func populatedState(t *testing.T) *State {
	t.Helper()

	s := NewState("renewal-planning", fixedTime())
	s.Status = StatusInProgress
	s.Position = 2
	s.Visited[1] = true
	s.Visited[2] = true
	s.Completed[0] = true
	s.Completed[2] = true
	s.Skipped[1] = "not applicable"
	s.Snoozed[3] = fixedTime().Add(48 * time.Hour)
	s.SetStepValue(0, "account", types.String("acme"))
	s.SetStepValue(0, "arr", types.Number(120000))
	s.AppendMessage(types.NewAssistantMessage("intro", "Welcome", fixedTime()))
	s.AppendMessage(types.NewUserMessage("let's go", fixedTime().Add(time.Minute)))
	s.ActiveBranch = "scope"
	s.AppendArtifact(types.Artifact{
		ID:                "art-1",
		Title:             "Plan",
		Type:              types.ArtifactDocument,
		Content:           json.RawMessage(`{"sections":2}`),
		ProducedByOrdinal: 2,
		CreatedAt:         fixedTime(),
	})
	s.Touch(fixedTime().Add(2 * time.Minute))
	return s
}

func TestNewState(t *testing.T) {
	s := NewState("renewal-planning", fixedTime())

	assert.NotEmpty(t, s.ExecutionID)
	assert.Equal(t, StatusNotStarted, s.Status)
	assert.Equal(t, 0, s.Position)
	assert.True(t, s.Visited[0], "first step starts visited")
	assert.Zero(t, s.Version)
}

func TestTouchBumpsVersion(t *testing.T) {
	s := NewState("wf", fixedTime())
	s.Touch(fixedTime().Add(time.Second))
	s.Touch(fixedTime().Add(2 * time.Second))

	assert.Equal(t, int64(2), s.Version)
	assert.Equal(t, fixedTime().Add(2*time.Second), s.UpdatedAt)
}

func TestIsTerminalStep(t *testing.T) {
	s := populatedState(t)

	assert.True(t, s.IsTerminalStep(0), "completed")
	assert.True(t, s.IsTerminalStep(1), "skipped")
	assert.True(t, s.IsTerminalStep(3), "snoozed")
	assert.False(t, s.IsTerminalStep(4))
	assert.True(t, s.HasPendingTasks())
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := populatedState(t)
	snap := s.Snapshot(fixedTime().Add(3 * time.Minute))

	// Sets become sorted arrays.
	assert.Equal(t, []int{0, 2}, snap.Completed)
	require.Len(t, snap.Skipped, 1)
	assert.Equal(t, SkippedStep{Ordinal: 1, Reason: "not applicable"}, snap.Skipped[0])
	assert.Equal(t, fixedTime().Add(3*time.Minute), snap.SavedAt)

	restored := FromSnapshot(snap)

	assert.Equal(t, s.ExecutionID, restored.ExecutionID)
	assert.Equal(t, s.Position, restored.Position)
	assert.Equal(t, s.Status, restored.Status)
	assert.Equal(t, s.Completed, restored.Completed)
	assert.Equal(t, s.Skipped, restored.Skipped)
	assert.Equal(t, s.Snoozed, restored.Snoozed)
	assert.Equal(t, s.ActiveBranch, restored.ActiveBranch)
	assert.Equal(t, s.Version, restored.Version)
	require.Len(t, restored.Transcript, 2)
	assert.Equal(t, s.Transcript[0].Content, restored.Transcript[0].Content)
	assert.True(t, s.StepValue(0, "account").Equal(restored.StepValue(0, "account")))
}

func TestSnapshotSurvivesJSON(t *testing.T) {
	s := populatedState(t)
	snap := s.Snapshot(fixedTime())

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))

	restored := FromSnapshot(&decoded)
	assert.Equal(t, s.Completed, restored.Completed)
	assert.Equal(t, s.Skipped, restored.Skipped)
	require.Len(t, restored.Transcript, 2)
	assert.Equal(t, types.RoleUser, restored.Transcript[1].Role)
	arr, ok := restored.StepValue(0, "arr").AsNumber()
	require.True(t, ok)
	assert.Equal(t, 120000.0, arr)
}

func TestCloneIsDeep(t *testing.T) {
	s := populatedState(t)
	c := s.Clone()

	s.Completed[7] = true
	s.SetStepValue(0, "account", types.String("other"))
	s.Transcript[0].Content = "mutated"

	assert.False(t, c.Completed[7])
	got, _ := c.StepValue(0, "account").AsString()
	assert.Equal(t, "acme", got)
	assert.Equal(t, "Welcome", c.Transcript[0].Content)
}

func TestWakeSnoozed(t *testing.T) {
	s := NewState("wf", fixedTime())
	s.Snoozed[1] = fixedTime().Add(time.Hour)
	s.Snoozed[2] = fixedTime().Add(72 * time.Hour)

	woken := s.WakeSnoozed(fixedTime().Add(2 * time.Hour))

	assert.Equal(t, []int{1}, woken)
	_, stillSnoozed := s.Snoozed[2]
	assert.True(t, stillSnoozed)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusInProgress.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCompletedPendingTasks.Terminal())
}
