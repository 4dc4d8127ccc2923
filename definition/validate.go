package definition

import (
	"fmt"
	"slices"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationResult holds errors and warnings from workflow validation.
// Errors block workflow start; warnings do not.
type ValidationResult struct {
	Errors   []string // Blocking: dangling refs, duplicate ordinals, bad patterns
	Warnings []string // Non-blocking: unknown actions, unreachable branches
}

// HasErrors returns true if there are blocking validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Validate checks a workflow definition and compiles its trigger patterns.
// Every branch ID referenced by next/next_on_text/triggers/buttons/auto_advance
// must resolve within the same step's branch map; violations are load-time
// errors, never runtime ones.
func Validate(w *Workflow) *ValidationResult {
	r := &ValidationResult{}

	if w.ID == "" {
		r.Errors = append(r.Errors, "workflow.id must be non-empty")
	}
	if len(w.Steps) == 0 {
		r.Errors = append(r.Errors, "workflow.steps must be non-empty")
		return r
	}

	validateOrdinals(w, r)
	for _, step := range w.Steps {
		validateStep(step, r)
	}

	return r
}

// validateOrdinals checks that ordinals are unique and strictly increasing
// and that step IDs are unique.
func validateOrdinals(w *Workflow, r *ValidationResult) {
	seenIDs := make(map[string]bool, len(w.Steps))
	prev := -1
	for i, step := range w.Steps {
		if step.ID == "" {
			r.Errors = append(r.Errors, fmt.Sprintf("steps[%d].id must be non-empty", i))
		} else if seenIDs[step.ID] {
			r.Errors = append(r.Errors, fmt.Sprintf("duplicate step id %q", step.ID))
		}
		seenIDs[step.ID] = true

		if step.Ordinal <= prev {
			r.Errors = append(r.Errors, fmt.Sprintf(
				"steps[%d].ordinal %d is not strictly increasing (previous %d)",
				i, step.Ordinal, prev))
		}
		prev = step.Ordinal
	}
}

func validateStep(step *Step, r *ValidationResult) {
	validateSchema(step, r)
	validateArtifactSpecs(step, r)
	if step.Chat != nil {
		validateChat(step.ID, step.Chat, r)
	}
}

// validateSchema compiles the step's JSON Schema so malformed schemas surface
// at load time rather than on first submission.
func validateSchema(step *Step, r *ValidationResult) {
	if step.Schema == "" {
		return
	}
	if _, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(step.Schema)); err != nil {
		r.Errors = append(r.Errors, fmt.Sprintf(
			"steps[%q].schema is not a valid JSON Schema: %v", step.ID, err))
	}
}

func validateArtifactSpecs(step *Step, r *ValidationResult) {
	seen := make(map[string]bool, len(step.Artifacts))
	for _, spec := range step.Artifacts {
		if spec.ID == "" {
			r.Errors = append(r.Errors, fmt.Sprintf(
				"steps[%q] has an artifact spec with an empty id", step.ID))
			continue
		}
		if seen[spec.ID] {
			r.Errors = append(r.Errors, fmt.Sprintf(
				"steps[%q] has duplicate artifact spec id %q", step.ID, spec.ID))
		}
		seen[spec.ID] = true
	}
}

func validateChat(stepID string, chat *Chat, r *ValidationResult) {
	if len(chat.Branches) == 0 {
		r.Errors = append(r.Errors, fmt.Sprintf("steps[%q].chat.branches must be non-empty", stepID))
		return
	}

	if chat.Entry == "" {
		r.Errors = append(r.Errors, fmt.Sprintf("steps[%q].chat.entry must be set", stepID))
	} else if chat.Branches[chat.Entry] == nil {
		r.Errors = append(r.Errors, fmt.Sprintf(
			"steps[%q].chat.entry %q does not reference a branch", stepID, chat.Entry))
	}

	for id, branch := range chat.Branches {
		validateBranch(stepID, id, branch, chat, r)
	}

	for _, id := range unreachableBranches(chat) {
		r.Warnings = append(r.Warnings, fmt.Sprintf(
			"steps[%q].chat.branches[%q] is unreachable from the entry branch", stepID, id))
	}
}

func validateBranch(stepID, id string, branch *Branch, chat *Chat, r *ValidationResult) {
	ref := func(field, target string) {
		if target != "" && chat.Branches[target] == nil {
			r.Errors = append(r.Errors, fmt.Sprintf(
				"steps[%q].chat.branches[%q].%s target %q does not exist",
				stepID, id, field, target))
		}
	}

	ref("next", branch.Next)
	ref("next_on_text", branch.NextOnText)
	if branch.AutoAdvance.Enabled {
		if branch.AutoAdvance.Target == "" && branch.Next == "" {
			r.Errors = append(r.Errors, fmt.Sprintf(
				"steps[%q].chat.branches[%q].auto_advance is true but the branch has no next target",
				stepID, id))
		}
		ref("auto_advance", branch.AutoAdvance.Target)
	}

	for i := range branch.Triggers {
		tr := &branch.Triggers[i]
		ref(fmt.Sprintf("triggers[%d]", i), tr.Target)
		if tr.Target == "" {
			r.Errors = append(r.Errors, fmt.Sprintf(
				"steps[%q].chat.branches[%q].triggers[%d] has no target", stepID, id, i))
		}
		if err := tr.Compile(); err != nil {
			r.Errors = append(r.Errors, fmt.Sprintf(
				"steps[%q].chat.branches[%q].triggers[%d]: %v", stepID, id, i, err))
		}
	}

	for i, btn := range branch.Buttons {
		ref(fmt.Sprintf("buttons[%d]", i), btn.Target)
		if btn.Label == "" {
			r.Warnings = append(r.Warnings, fmt.Sprintf(
				"steps[%q].chat.branches[%q].buttons[%d] has an empty label", stepID, id, i))
		}
	}

	for _, action := range branch.Actions {
		if !action.Known() {
			r.Warnings = append(r.Warnings, fmt.Sprintf(
				"steps[%q].chat.branches[%q] declares unknown action %q", stepID, id, action))
		}
	}
}

// unreachableBranches walks the graph from the entry branch and returns the
// IDs of branches no edge reaches, sorted for deterministic output.
func unreachableBranches(chat *Chat) []string {
	if chat.Entry == "" || chat.Branches[chat.Entry] == nil {
		return nil
	}

	visited := make(map[string]bool, len(chat.Branches))
	var walk func(id string)
	walk = func(id string) {
		if visited[id] || chat.Branches[id] == nil {
			return
		}
		visited[id] = true
		b := chat.Branches[id]
		walk(b.Next)
		walk(b.NextOnText)
		if b.AutoAdvance.Target != "" {
			walk(b.AutoAdvance.Target)
		}
		for _, tr := range b.Triggers {
			walk(tr.Target)
		}
		for _, btn := range b.Buttons {
			walk(btn.Target)
		}
	}
	walk(chat.Entry)

	var unreachable []string
	for id := range chat.Branches {
		if !visited[id] {
			unreachable = append(unreachable, id)
		}
	}
	slices.Sort(unreachable)
	return unreachable
}
