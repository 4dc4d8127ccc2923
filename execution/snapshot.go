package execution

import (
	"slices"
	"time"

	"github.com/HarborLabs/playbook/types"
)

// Snapshot is the serializable projection of a State used for persistence.
// Sets become sorted arrays; everything else carries over field for field.
// SavedAt is stamped when the snapshot is taken, UpdatedAt mirrors the
// state's last mutation, and Version supports optimistic staleness checks.
type Snapshot struct {
	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id"`

	Position int    `json:"position"`
	Status   Status `json:"status"`

	Visited   []int         `json:"visited,omitempty"`
	Completed []int         `json:"completed,omitempty"`
	Skipped   []SkippedStep `json:"skipped,omitempty"`
	Snoozed   []SnoozedStep `json:"snoozed,omitempty"`

	StepData  map[int]map[string]types.Value `json:"step_data,omitempty"`
	Artifacts map[int][]types.Artifact       `json:"artifacts,omitempty"`

	Transcript   []types.Message `json:"transcript,omitempty"`
	ActiveBranch string          `json:"active_branch,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	SavedAt   time.Time `json:"saved_at"`
	Version   int64     `json:"version"`
}

// SkippedStep records a skipped ordinal with its required reason.
type SkippedStep struct {
	Ordinal int    `json:"ordinal"`
	Reason  string `json:"reason"`
}

// SnoozedStep records a snoozed ordinal with its wake-up time.
type SnoozedStep struct {
	Ordinal int       `json:"ordinal"`
	Until   time.Time `json:"until"`
}

// Snapshot projects the state into its serializable form, stamping SavedAt
// with the given time.
func (s *State) Snapshot(now time.Time) *Snapshot {
	snap := &Snapshot{
		ExecutionID:  s.ExecutionID,
		WorkflowID:   s.WorkflowID,
		Position:     s.Position,
		Status:       s.Status,
		Visited:      sortedKeys(s.Visited),
		Completed:    sortedKeys(s.Completed),
		ActiveBranch: s.ActiveBranch,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		SavedAt:      now,
		Version:      s.Version,
	}

	for _, ord := range sortedKeys(s.Skipped) {
		snap.Skipped = append(snap.Skipped, SkippedStep{Ordinal: ord, Reason: s.Skipped[ord]})
	}
	for _, ord := range sortedKeys(s.Snoozed) {
		snap.Snoozed = append(snap.Snoozed, SnoozedStep{Ordinal: ord, Until: s.Snoozed[ord]})
	}

	if len(s.StepData) > 0 {
		snap.StepData = make(map[int]map[string]types.Value, len(s.StepData))
		for ord, fields := range s.StepData {
			fc := make(map[string]types.Value, len(fields))
			for k, v := range fields {
				fc[k] = v.Clone()
			}
			snap.StepData[ord] = fc
		}
	}
	if len(s.Artifacts) > 0 {
		snap.Artifacts = make(map[int][]types.Artifact, len(s.Artifacts))
		for ord, arts := range s.Artifacts {
			ac := make([]types.Artifact, len(arts))
			for i, a := range arts {
				ac[i] = a.Clone()
			}
			snap.Artifacts[ord] = ac
		}
	}
	if len(s.Transcript) > 0 {
		snap.Transcript = make([]types.Message, len(s.Transcript))
		for i, m := range s.Transcript {
			snap.Transcript[i] = m.Clone()
		}
	}

	return snap
}

// FromSnapshot reconstructs a live State from its serialized form,
// rebuilding the membership sets from their sorted-array representation.
func FromSnapshot(snap *Snapshot) *State {
	s := &State{
		ExecutionID:  snap.ExecutionID,
		WorkflowID:   snap.WorkflowID,
		Position:     snap.Position,
		Status:       snap.Status,
		ActiveBranch: snap.ActiveBranch,
		CreatedAt:    snap.CreatedAt,
		UpdatedAt:    snap.UpdatedAt,
		Version:      snap.Version,
		Visited:      make(map[int]bool, len(snap.Visited)),
		Completed:    make(map[int]bool, len(snap.Completed)),
		Skipped:      make(map[int]string, len(snap.Skipped)),
		Snoozed:      make(map[int]time.Time, len(snap.Snoozed)),
		StepData:     make(map[int]map[string]types.Value),
		Artifacts:    make(map[int][]types.Artifact),
	}

	for _, idx := range snap.Visited {
		s.Visited[idx] = true
	}
	// The current position is always revisitable after a restore.
	s.Visited[snap.Position] = true

	for _, ord := range snap.Completed {
		s.Completed[ord] = true
	}
	for _, sk := range snap.Skipped {
		s.Skipped[sk.Ordinal] = sk.Reason
	}
	for _, sn := range snap.Snoozed {
		s.Snoozed[sn.Ordinal] = sn.Until
	}

	for ord, fields := range snap.StepData {
		fc := make(map[string]types.Value, len(fields))
		for k, v := range fields {
			fc[k] = v.Clone()
		}
		s.StepData[ord] = fc
	}
	for ord, arts := range snap.Artifacts {
		ac := make([]types.Artifact, len(arts))
		for i, a := range arts {
			ac[i] = a.Clone()
		}
		s.Artifacts[ord] = ac
	}
	if len(snap.Transcript) > 0 {
		s.Transcript = make([]types.Message, len(snap.Transcript))
		for i, m := range snap.Transcript {
			s.Transcript[i] = m.Clone()
		}
	}

	return s
}

// WakeSnoozed removes snoozed entries whose wake-up time has passed.
// Called on session resume so a snoozed step becomes actionable again.
func (s *State) WakeSnoozed(now time.Time) []int {
	var woken []int
	for ord, until := range s.Snoozed {
		if !until.After(now) {
			delete(s.Snoozed, ord)
			woken = append(woken, ord)
		}
	}
	slices.Sort(woken)
	return woken
}

func sortedKeys[V any](m map[int]V) []int {
	if len(m) == 0 {
		return nil
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Clone returns a deep copy of the snapshot.
func (snap *Snapshot) Clone() *Snapshot {
	c := *snap
	c.Visited = slices.Clone(snap.Visited)
	c.Completed = slices.Clone(snap.Completed)
	c.Skipped = slices.Clone(snap.Skipped)
	c.Snoozed = slices.Clone(snap.Snoozed)
	if snap.StepData != nil {
		c.StepData = make(map[int]map[string]types.Value, len(snap.StepData))
		for ord, fields := range snap.StepData {
			fc := make(map[string]types.Value, len(fields))
			for k, v := range fields {
				fc[k] = v.Clone()
			}
			c.StepData[ord] = fc
		}
	}
	if snap.Artifacts != nil {
		c.Artifacts = make(map[int][]types.Artifact, len(snap.Artifacts))
		for ord, arts := range snap.Artifacts {
			ac := make([]types.Artifact, len(arts))
			for i, a := range arts {
				ac[i] = a.Clone()
			}
			c.Artifacts[ord] = ac
		}
	}
	if snap.Transcript != nil {
		c.Transcript = make([]types.Message, len(snap.Transcript))
		for i, m := range snap.Transcript {
			c.Transcript[i] = m.Clone()
		}
	}
	return &c
}
