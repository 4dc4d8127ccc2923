package types

import (
	"encoding/json"
	"time"
)

// ArtifactType identifies what kind of generated output an artifact holds.
type ArtifactType string

// ArtifactType values.
const (
	ArtifactDashboard ArtifactType = "dashboard"
	ArtifactDocument  ArtifactType = "document"
	ArtifactChecklist ArtifactType = "checklist"
	ArtifactEmail     ArtifactType = "email"
	ArtifactChart     ArtifactType = "chart"
)

// Artifact is a generated, displayable output attached to the step that
// produced it. Artifacts are append-only: once emitted they are never
// mutated, only superseded by a new artifact with a new ID.
type Artifact struct {
	ID                string          `json:"id"`
	Title             string          `json:"title"`
	Type              ArtifactType    `json:"type"`
	Content           json.RawMessage `json:"content,omitempty"`
	ProducedByOrdinal int             `json:"produced_by_ordinal"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Clone returns a deep copy of the artifact.
func (a Artifact) Clone() Artifact {
	c := a
	if a.Content != nil {
		c.Content = make(json.RawMessage, len(a.Content))
		copy(c.Content, a.Content)
	}
	return c
}
