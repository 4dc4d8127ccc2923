package definition

import (
	"strings"
	"testing"
)

func renewalWorkflow() *Workflow {
	return &Workflow{
		ID:    "renewal-planning",
		Title: "Renewal Planning",
		Steps: []*Step{
			{
				ID:      "kickoff",
				Ordinal: 0,
				Title:   "Kickoff",
				Chat: &Chat{
					Entry:        "intro",
					DefaultReply: "Sorry, I didn't catch that.",
					Branches: map[string]*Branch{
						"intro": {
							Response: "Ready to plan this renewal?",
							Buttons: []Button{
								{Label: "Yes", Target: "scope"},
								{Label: "Not now", Target: "later"},
							},
							Triggers: []Trigger{
								{Pattern: "refund", Target: "scope"},
								{Pattern: "re.*", Target: "later"},
							},
						},
						"scope": {Response: "Let's look at the account.", Actions: []Action{ActionNextSlide}},
						"later": {Response: "No problem, come back any time."},
					},
				},
			},
			{
				ID:        "health",
				Ordinal:   1,
				Title:     "Account Health",
				Component: "metrics_panel",
			},
			{
				ID:        "plan",
				Ordinal:   2,
				Title:     "Build the Plan",
				Component: "renewal_form",
				Artifacts: []ArtifactSpec{
					{ID: "plan-doc", Title: "Renewal plan", Type: "document"},
				},
			},
		},
	}
}

func hasError(r *ValidationResult, substr string) bool {
	for _, e := range r.Errors {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func hasWarning(r *ValidationResult, substr string) bool {
	for _, w := range r.Warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestValidateAcceptsWellFormedWorkflow(t *testing.T) {
	r := Validate(renewalWorkflow())
	if r.HasErrors() {
		t.Fatalf("unexpected errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", r.Warnings)
	}
}

func TestValidateEmptyWorkflow(t *testing.T) {
	r := Validate(&Workflow{ID: "empty"})
	if !hasError(r, "steps must be non-empty") {
		t.Errorf("missing steps error not reported: %v", r.Errors)
	}
}

func TestValidateDuplicateOrdinal(t *testing.T) {
	w := renewalWorkflow()
	w.Steps[1].Ordinal = 0

	r := Validate(w)
	if !hasError(r, "not strictly increasing") {
		t.Errorf("duplicate ordinal not reported: %v", r.Errors)
	}
}

func TestValidateDanglingBranchReference(t *testing.T) {
	w := renewalWorkflow()
	w.Steps[0].Chat.Branches["intro"].Next = "missing"

	r := Validate(w)
	if !hasError(r, `target "missing" does not exist`) {
		t.Errorf("dangling reference not reported: %v", r.Errors)
	}
}

func TestValidateDanglingTriggerTarget(t *testing.T) {
	w := renewalWorkflow()
	w.Steps[0].Chat.Branches["intro"].Triggers[0].Target = "gone"

	r := Validate(w)
	if !hasError(r, `target "gone" does not exist`) {
		t.Errorf("dangling trigger target not reported: %v", r.Errors)
	}
}

func TestValidateBadTriggerPattern(t *testing.T) {
	w := renewalWorkflow()
	w.Steps[0].Chat.Branches["intro"].Triggers[0].Pattern = "refund["

	r := Validate(w)
	if !hasError(r, "invalid trigger pattern") {
		t.Errorf("bad pattern not reported at load time: %v", r.Errors)
	}
}

func TestValidateBadEntry(t *testing.T) {
	w := renewalWorkflow()
	w.Steps[0].Chat.Entry = "nope"

	r := Validate(w)
	if !hasError(r, `chat.entry "nope"`) {
		t.Errorf("bad entry not reported: %v", r.Errors)
	}
}

func TestValidateAutoAdvanceWithoutTarget(t *testing.T) {
	w := renewalWorkflow()
	w.Steps[0].Chat.Branches["later"].AutoAdvance = AutoAdvance{Enabled: true}

	r := Validate(w)
	if !hasError(r, "auto_advance is true but the branch has no next target") {
		t.Errorf("auto_advance without target not reported: %v", r.Errors)
	}
}

func TestValidateUnknownActionWarns(t *testing.T) {
	w := renewalWorkflow()
	w.Steps[0].Chat.Branches["scope"].Actions = []Action{"nextSilde"}

	r := Validate(w)
	if r.HasErrors() {
		t.Fatalf("unknown action should not be an error: %v", r.Errors)
	}
	if !hasWarning(r, `unknown action "nextSilde"`) {
		t.Errorf("unknown action not warned: %v", r.Warnings)
	}
}

func TestValidateUnreachableBranchWarns(t *testing.T) {
	w := renewalWorkflow()
	w.Steps[0].Chat.Branches["orphan"] = &Branch{Response: "nobody routes here"}

	r := Validate(w)
	if r.HasErrors() {
		t.Fatalf("unreachable branch should not be an error: %v", r.Errors)
	}
	if !hasWarning(r, `branches["orphan"] is unreachable`) {
		t.Errorf("unreachable branch not warned: %v", r.Warnings)
	}
}

func TestValidateBadSchema(t *testing.T) {
	w := renewalWorkflow()
	w.Steps[2].Schema = `{"type": "objekt"}`

	r := Validate(w)
	if !hasError(r, "not a valid JSON Schema") {
		t.Errorf("bad schema not reported: %v", r.Errors)
	}
}
