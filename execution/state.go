// Package execution holds the mutable session state of a single workflow
// run and its serializable snapshot projection.
//
// A State is owned by exactly one active session. It is created on first
// entry to a workflow, mutated only through engine operations, and archived
// on completion or explicit exit. Cross-session consistency is the snapshot
// store's concern, not this package's.
package execution

import (
	"time"

	"github.com/google/uuid"

	"github.com/HarborLabs/playbook/types"
)

// Status is the lifecycle state of a workflow execution.
type Status string

// Status values. CompletedWithPendingTasks means every step reached a
// terminal state but at least one was skipped or snoozed rather than
// completed.
const (
	StatusNotStarted            Status = "not_started"
	StatusInProgress            Status = "in_progress"
	StatusCompleted             Status = "completed"
	StatusCompletedPendingTasks Status = "completed_with_pending_tasks"
)

// Terminal reports whether the status ends the session.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCompletedPendingTasks
}

// State is the mutable session state of one workflow execution. Step
// membership sets are keyed by step ordinal; Position is an index into the
// definition's step list.
type State struct {
	ExecutionID string
	WorkflowID  string

	Position int
	Status   Status

	// Visited is the breadcrumb set: step indexes the user has reached.
	Visited map[int]bool

	// Completed, Skipped, and Snoozed are mutually exclusive per-ordinal
	// terminal states. Skipped maps ordinal to the required reason;
	// Snoozed maps ordinal to the wake-up time.
	Completed map[int]bool
	Skipped   map[int]string
	Snoozed   map[int]time.Time

	// StepData holds schema-validated values keyed by ordinal, then by
	// declared field name.
	StepData map[int]map[string]types.Value

	// Artifacts are append-only per producing ordinal.
	Artifacts map[int][]types.Artifact

	Transcript   []types.Message
	ActiveBranch string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Version increments on every mutation and rides along in snapshots
	// for optimistic staleness checks.
	Version int64
}

// NewState creates a fresh execution state positioned at the first step.
func NewState(workflowID string, now time.Time) *State {
	return &State{
		ExecutionID: uuid.NewString(),
		WorkflowID:  workflowID,
		Status:      StatusNotStarted,
		Visited:     map[int]bool{0: true},
		Completed:   map[int]bool{},
		Skipped:     map[int]string{},
		Snoozed:     map[int]time.Time{},
		StepData:    map[int]map[string]types.Value{},
		Artifacts:   map[int][]types.Artifact{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Touch records a mutation: bumps the version and the update timestamp.
func (s *State) Touch(now time.Time) {
	s.Version++
	s.UpdatedAt = now
}

// IsTerminalStep reports whether the ordinal has reached any terminal state.
func (s *State) IsTerminalStep(ordinal int) bool {
	if s.Completed[ordinal] {
		return true
	}
	if _, ok := s.Skipped[ordinal]; ok {
		return true
	}
	_, ok := s.Snoozed[ordinal]
	return ok
}

// HasPendingTasks reports whether any step was skipped or snoozed.
func (s *State) HasPendingTasks() bool {
	return len(s.Skipped) > 0 || len(s.Snoozed) > 0
}

// SetStepValue writes a value into the step data map for the given ordinal.
func (s *State) SetStepValue(ordinal int, key string, value types.Value) {
	fields := s.StepData[ordinal]
	if fields == nil {
		fields = make(map[string]types.Value)
		s.StepData[ordinal] = fields
	}
	fields[key] = value
}

// StepValue reads a value from the step data map, returning null when absent.
func (s *State) StepValue(ordinal int, key string) types.Value {
	return s.StepData[ordinal][key]
}

// AppendMessage appends a transcript entry.
func (s *State) AppendMessage(m types.Message) {
	s.Transcript = append(s.Transcript, m)
}

// AppendArtifact appends an artifact under its producing ordinal.
func (s *State) AppendArtifact(a types.Artifact) {
	s.Artifacts[a.ProducedByOrdinal] = append(s.Artifacts[a.ProducedByOrdinal], a)
}

// ClearArtifacts drops the artifacts shown for the given ordinal. The
// artifacts were forwarded to the sink on emission; this only affects the
// session's display state.
func (s *State) ClearArtifacts(ordinal int) {
	delete(s.Artifacts, ordinal)
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	c := &State{
		ExecutionID:  s.ExecutionID,
		WorkflowID:   s.WorkflowID,
		Position:     s.Position,
		Status:       s.Status,
		ActiveBranch: s.ActiveBranch,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		Version:      s.Version,
		Visited:      make(map[int]bool, len(s.Visited)),
		Completed:    make(map[int]bool, len(s.Completed)),
		Skipped:      make(map[int]string, len(s.Skipped)),
		Snoozed:      make(map[int]time.Time, len(s.Snoozed)),
		StepData:     make(map[int]map[string]types.Value, len(s.StepData)),
		Artifacts:    make(map[int][]types.Artifact, len(s.Artifacts)),
	}
	for k, v := range s.Visited {
		c.Visited[k] = v
	}
	for k, v := range s.Completed {
		c.Completed[k] = v
	}
	for k, v := range s.Skipped {
		c.Skipped[k] = v
	}
	for k, v := range s.Snoozed {
		c.Snoozed[k] = v
	}
	for ord, fields := range s.StepData {
		fc := make(map[string]types.Value, len(fields))
		for k, v := range fields {
			fc[k] = v.Clone()
		}
		c.StepData[ord] = fc
	}
	for ord, arts := range s.Artifacts {
		ac := make([]types.Artifact, len(arts))
		for i, a := range arts {
			ac[i] = a.Clone()
		}
		c.Artifacts[ord] = ac
	}
	if s.Transcript != nil {
		c.Transcript = make([]types.Message, len(s.Transcript))
		for i, m := range s.Transcript {
			c.Transcript[i] = m.Clone()
		}
	}
	return c
}
