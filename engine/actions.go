package engine

import (
	"context"

	"github.com/HarborLabs/playbook/definition"
	"github.com/HarborLabs/playbook/logger"
)

// runAction executes one symbolic action from a branch. Actions run
// synchronously in declared order with no rollback; each is individually
// idempotent (position moves clamp at the workflow bounds). An unknown name
// is logged and ignored, never fatal. Caller holds e.mu.
func (e *Engine) runAction(step *definition.Step, branch *definition.Branch, action definition.Action) {
	switch action {
	case definition.ActionNextSlide:
		e.moveClamped(e.state.Position + 1)

	case definition.ActionPreviousSlide:
		e.moveClamped(e.state.Position - 1)

	case definition.ActionCompleteStep:
		e.completeCurrent()

	case definition.ActionEnterStep:
		e.enterStep(e.state.Position)

	case definition.ActionShowArtifact:
		for _, spec := range step.Artifacts {
			e.emitArtifact(step.Ordinal, spec)
		}

	case definition.ActionRemoveArtifact:
		e.state.ClearArtifacts(step.Ordinal)

	case definition.ActionExitWorkflow:
		if err := e.exit(context.Background()); err != nil {
			logger.SaveFailed(e.state.ExecutionID, err, "during", "exitWorkflow")
		}

	case definition.ActionAdvanceSequence:
		if branch.Next != "" {
			e.navigateToBranch(step, branch.Next, "", "sequence")
		}

	case definition.ActionResetChat:
		e.resetChat(step)

	default:
		logger.ActionWarn(e.state.ExecutionID, string(action), "step_id", step.ID)
		e.emitter.ActionUnknown(string(action), step.ID)
	}
}

// moveClamped moves the position, clamping at the workflow bounds so a
// nextSlide on the final step stays put instead of failing. Caller holds e.mu.
func (e *Engine) moveClamped(index int) {
	if index < 0 {
		index = 0
	}
	if last := e.def.StepCount() - 1; index > last {
		index = last
	}
	if index == e.state.Position {
		return
	}
	e.cancelTimers()
	e.state.Position = index
	e.enterStep(index)
}

// completeCurrent completes the step at the current position without the
// public method's lock. Caller holds e.mu.
func (e *Engine) completeCurrent() {
	ordinal := e.def.StepAt(e.state.Position).Ordinal
	if e.state.Completed[ordinal] {
		return
	}

	e.state.Completed[ordinal] = true
	delete(e.state.Skipped, ordinal)
	delete(e.state.Snoozed, ordinal)
	e.emitter.StepCompleted(ordinal, e.def.StepAt(e.state.Position).ID)
	e.settleAfterTerminal(ordinal)
}

// resetChat replays the step's chat from its entry branch. The transcript
// keeps its history; only the branch pointer restarts. Caller holds e.mu.
func (e *Engine) resetChat(step *definition.Step) {
	if step.Chat == nil {
		return
	}
	e.cancelTimers()
	e.state.ActiveBranch = ""
	if step.Chat.Greeting != "" {
		e.appendAssistantMessage("", step.Chat.Greeting, nil)
	}
	e.navigateToBranch(step, step.Chat.Entry, "", "entry")
}
