package engine

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/HarborLabs/playbook/definition"
	"github.com/HarborLabs/playbook/types"
)

// EmitArtifact materializes an artifact spec against the current step,
// appends it to the execution state, and forwards it once to the artifact
// sink. Each emission gets a fresh ID; an artifact is never mutated after
// emission, only superseded.
func (e *Engine) EmitArtifact(spec definition.ArtifactSpec) (types.Artifact, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkActive(); err != nil {
		return types.Artifact{}, err
	}

	artifact := e.emitArtifact(e.def.StepAt(e.state.Position).Ordinal, spec)
	e.afterMutation()
	return artifact, nil
}

// Artifacts returns the artifacts emitted by the step with the given
// ordinal, oldest first.
func (e *Engine) Artifacts(ordinal int) []types.Artifact {
	e.mu.Lock()
	defer e.mu.Unlock()

	stored := e.state.Artifacts[ordinal]
	out := make([]types.Artifact, len(stored))
	for i, a := range stored {
		out[i] = a.Clone()
	}
	return out
}

// emitArtifact builds and records one artifact. Caller holds e.mu.
func (e *Engine) emitArtifact(ordinal int, spec definition.ArtifactSpec) types.Artifact {
	var content json.RawMessage
	if len(spec.Content) > 0 {
		// Spec content comes from a validated definition; it marshals.
		data, err := json.Marshal(spec.Content)
		if err != nil {
			content = json.RawMessage(fmt.Sprintf("{%q:%q}", "error", err.Error()))
		} else {
			content = data
		}
	}

	artifact := types.Artifact{
		ID:                uuid.NewString(),
		Title:             spec.Title,
		Type:              types.ArtifactType(spec.Type),
		Content:           content,
		ProducedByOrdinal: ordinal,
		CreatedAt:         e.now(),
	}

	e.state.AppendArtifact(artifact)
	if e.sink != nil {
		e.sink(ordinal, artifact.Clone())
	}
	e.emitter.ArtifactGenerated(ordinal, artifact)
	return artifact
}
