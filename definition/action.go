package definition

// Action is a symbolic engine operation a branch can declare. Actions execute
// synchronously in declared order; unknown names are logged and ignored so an
// authoring typo never crashes a session.
type Action string

// The fixed action vocabulary.
const (
	ActionNextSlide       Action = "nextSlide"
	ActionPreviousSlide   Action = "previousSlide"
	ActionCompleteStep    Action = "completeStep"
	ActionEnterStep       Action = "enterStep"
	ActionShowArtifact    Action = "showArtifact"
	ActionRemoveArtifact  Action = "removeArtifact"
	ActionExitWorkflow    Action = "exitWorkflow"
	ActionAdvanceSequence Action = "advanceSequence"
	ActionResetChat       Action = "resetChat"
)

// knownActions is the closed vocabulary checked at definition load.
var knownActions = map[Action]bool{
	ActionNextSlide:       true,
	ActionPreviousSlide:   true,
	ActionCompleteStep:    true,
	ActionEnterStep:       true,
	ActionShowArtifact:    true,
	ActionRemoveArtifact:  true,
	ActionExitWorkflow:    true,
	ActionAdvanceSequence: true,
	ActionResetChat:       true,
}

// Known reports whether the action is part of the vocabulary.
func (a Action) Known() bool { return knownActions[a] }
