package engine

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/HarborLabs/playbook/definition"
	"github.com/HarborLabs/playbook/logger"
	"github.com/HarborLabs/playbook/types"
)

// HandleUserMessage routes free-text input through the current step's chat
// graph.
//
// Precedence: the active branch's captured-input target first, then the
// active branch's ordered trigger rules (first case-insensitive match wins,
// declaration order is the tie-break), then the step's default reply. The
// default reply does not change the active branch.
//
// A new user message cancels any pending auto-advance timer so a stale
// callback never fires over fresh input.
func (e *Engine) HandleUserMessage(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkActive(); err != nil {
		return err
	}

	e.cancelTimers()

	msg := types.NewUserMessage(text, e.now())
	e.state.AppendMessage(msg)
	e.emitter.MessageAppended(msg)

	step := e.def.StepAt(e.state.Position)
	if step.Chat == nil {
		e.afterMutation()
		return nil
	}

	active := step.Chat.Branches[e.state.ActiveBranch]

	// Captured-input mode: route directly, highest precedence.
	if active != nil && active.NextOnText != "" {
		e.navigateToBranch(step, active.NextOnText, text, "captured")
		e.afterMutation()
		return nil
	}

	if active != nil {
		for i := range active.Triggers {
			trigger := &active.Triggers[i]
			matched, err := trigger.Match(text)
			if err != nil {
				// Validation compiles patterns at load; an error here
				// means a hand-built definition. Log and move on.
				logger.RoutingWarn(e.state.ExecutionID, e.state.ActiveBranch, err,
					"pattern", trigger.Pattern)
				continue
			}
			if matched {
				logger.TriggerMatch(e.state.ExecutionID, trigger.Pattern, trigger.Target)
				e.emitter.TriggerMatched(step.ID, trigger.Pattern, trigger.Target)
				e.navigateToBranch(step, trigger.Target, text, "trigger")
				e.afterMutation()
				return nil
			}
		}
	}

	if step.Chat.DefaultReply != "" {
		e.appendAssistantMessage("", step.Chat.DefaultReply, nil)
	}
	e.afterMutation()
	return nil
}

// SelectButton routes a quick-reply click on the active branch. The label is
// recorded as a user transcript entry. An unknown label is a routing
// warning, not an error; the session continues unchanged.
func (e *Engine) SelectButton(label string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkActive(); err != nil {
		return err
	}

	step := e.def.StepAt(e.state.Position)
	if step.Chat == nil {
		return nil
	}
	active := step.Chat.Branches[e.state.ActiveBranch]
	if active == nil {
		return nil
	}

	for _, btn := range active.Buttons {
		if btn.Label != label {
			continue
		}
		e.cancelTimers()
		msg := types.NewUserMessage(label, e.now())
		e.state.AppendMessage(msg)
		e.emitter.MessageAppended(msg)
		e.navigateToBranch(step, btn.Target, label, "button")
		e.afterMutation()
		return nil
	}

	logger.RoutingWarn(e.state.ExecutionID, e.state.ActiveBranch, ErrBranchNotFound,
		"button", label)
	return nil
}

// SubmitComponentValue stores a component submission into the step's data
// map after validating it against the step's declared schema, then routes
// through the active branch's next target. A branch without a next target
// re-invokes the current branch so its response (and inline form) redisplays.
func (e *Engine) SubmitComponentValue(values map[string]types.Value) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkActive(); err != nil {
		return err
	}

	step := e.def.StepAt(e.state.Position)
	if err := validateAgainstSchema(step.Schema, values); err != nil {
		return err
	}

	for key, value := range values {
		e.state.SetStepValue(step.Ordinal, key, value)
	}

	if step.Chat != nil && e.state.ActiveBranch != "" {
		active := step.Chat.Branches[e.state.ActiveBranch]
		switch {
		case active == nil:
			// Stale pointer from an older definition revision.
			logger.RoutingWarn(e.state.ExecutionID, e.state.ActiveBranch, ErrBranchNotFound)
		case active.Next != "":
			e.navigateToBranch(step, active.Next, "", "component")
		default:
			e.navigateToBranch(step, e.state.ActiveBranch, "", "component")
		}
	}

	e.afterMutation()
	return nil
}

// validateAgainstSchema checks submitted values against a step's JSON
// Schema. An empty schema accepts everything.
func validateAgainstSchema(schema string, values map[string]types.Value) error {
	if schema == "" {
		return nil
	}

	doc := make(map[string]any, len(values))
	for key, value := range values {
		doc[key] = value.ToGo()
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if !result.Valid() {
		return fmt.Errorf("%w: %s", ErrSchemaViolation, result.Errors()[0])
	}
	return nil
}

// NavigateToBranch activates a branch of the current step's chat graph by
// ID. A dangling reference is logged and ignored.
func (e *Engine) NavigateToBranch(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkActive(); err != nil {
		return err
	}

	e.cancelTimers()
	e.navigateToBranch(e.def.StepAt(e.state.Position), id, "", "direct")
	e.afterMutation()
	return nil
}

// navigateToBranch is the single routing path for triggers, buttons,
// component submissions, auto-advance, and entry. It appends the branch's
// response (after its predelay when declared), stores captured input,
// executes declared actions in order, and arms the auto-advance timer.
// Caller holds e.mu.
func (e *Engine) navigateToBranch(step *definition.Step, id, input, source string) {
	chat := step.Chat
	if chat == nil {
		return
	}
	branch, ok := chat.Branches[id]
	if !ok {
		logger.RoutingWarn(e.state.ExecutionID, id, ErrBranchNotFound, "step_id", step.ID)
		return
	}

	previous := chat.Branches[e.state.ActiveBranch]
	e.state.ActiveBranch = id
	logger.BranchRoute(e.state.ExecutionID, step.ID, id, "source", source)
	e.emitter.BranchRouted(step.ID, id, source)

	// The branch that asked the question is where storeAs naturally lives,
	// so captured input honors the previous branch's key as well as the
	// target's.
	if input != "" {
		if previous != nil && previous.StoreAs != "" {
			e.state.SetStepValue(step.Ordinal, previous.StoreAs, types.String(input))
		}
		if branch.StoreAs != "" {
			e.state.SetStepValue(step.Ordinal, branch.StoreAs, types.String(input))
		}
	}

	if branch.Response != "" {
		if predelay := branch.Predelay(); predelay > 0 {
			e.predelayTimer = e.scheduler.AfterFunc(predelay, func() {
				e.deliverDelayedResponse(step, id, branch)
			})
		} else {
			e.appendAssistantMessage(id, branch.Response, branch)
		}
	}

	for _, action := range branch.Actions {
		e.runAction(step, branch, action)
		if e.exited || e.state.Status.Terminal() {
			return
		}
	}

	if branch.AutoAdvance.Enabled {
		e.armAutoAdvance(step, branch)
	}
}

// deliverDelayedResponse appends a predelayed branch response, unless the
// session moved on while the timer was pending.
func (e *Engine) deliverDelayedResponse(step *definition.Step, id string, branch *definition.Branch) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.exited || e.state.Status.Terminal() {
		return
	}
	if e.def.StepAt(e.state.Position) != step || e.state.ActiveBranch != id {
		return
	}
	e.predelayTimer = nil
	e.appendAssistantMessage(id, branch.Response, branch)
	e.afterMutation()
}

// armAutoAdvance schedules the branch's timed navigation. The timer is
// canceled by any new user message or navigation. Caller holds e.mu.
func (e *Engine) armAutoAdvance(step *definition.Step, branch *definition.Branch) {
	target := branch.AutoAdvance.Target
	if target == "" {
		target = branch.Next
	}
	if target == "" {
		logger.RoutingWarn(e.state.ExecutionID, e.state.ActiveBranch, ErrBranchNotFound,
			"reason", "auto_advance without target")
		return
	}

	from := e.state.ActiveBranch
	e.autoAdvanceTimer = e.scheduler.AfterFunc(branch.Delay(), func() {
		e.fireAutoAdvance(step, from, target)
	})
}

// fireAutoAdvance runs when an auto-advance timer elapses uncanceled.
func (e *Engine) fireAutoAdvance(step *definition.Step, from, target string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.exited || e.state.Status.Terminal() {
		return
	}
	// The session moved on; this callback is stale.
	if e.def.StepAt(e.state.Position) != step || e.state.ActiveBranch != from {
		return
	}

	e.autoAdvanceTimer = nil
	e.navigateToBranch(step, target, "", "auto_advance")
	e.afterMutation()
}

// appendAssistantMessage appends a branch response to the transcript,
// carrying the branch's inline component and quick-reply labels.
// Caller holds e.mu.
func (e *Engine) appendAssistantMessage(branchID, content string, branch *definition.Branch) {
	msg := types.NewAssistantMessage(branchID, content, e.now())
	if branch != nil {
		msg.Component = branch.Component
		msg.Buttons = branch.ButtonLabels()
	}
	e.state.AppendMessage(msg)
	e.emitter.MessageAppended(msg)
}
