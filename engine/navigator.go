package engine

import (
	"fmt"
	"time"

	"github.com/HarborLabs/playbook/execution"
	"github.com/HarborLabs/playbook/logger"
)

// GoTo navigates to the step at the given position index.
//
// Breadcrumb semantics: a step is reachable when it is completed or skipped,
// when it is the immediately-next step, or when it was previously visited.
// Anything else is rejected with ErrStepNotReachable, which prevents jumping
// ahead into unvalidated steps while allowing free backward review.
//
// GoTo never implicitly completes the step being left.
func (e *Engine) GoTo(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkActive(); err != nil {
		return err
	}
	if index < 0 || index >= e.def.StepCount() {
		return fmt.Errorf("%w: index %d of %d steps", ErrOutOfRange, index, e.def.StepCount())
	}
	if !e.reachable(index) {
		return fmt.Errorf("%w: index %d", ErrStepNotReachable, index)
	}

	e.cancelTimers()
	e.state.Position = index
	e.enterStep(index)
	e.afterMutation()
	return nil
}

// reachable implements the breadcrumb rule. Caller holds e.mu.
func (e *Engine) reachable(index int) bool {
	if e.state.Visited[index] {
		return true
	}
	if index == e.state.Position+1 {
		return true
	}
	ordinal := e.def.StepAt(index).Ordinal
	return e.state.IsTerminalStep(ordinal)
}

// enterStep marks the index visited and plays the step's chat greeting and
// entry branch on first visit. Caller holds e.mu.
func (e *Engine) enterStep(index int) {
	step := e.def.StepAt(index)
	firstVisit := !e.state.Visited[index]
	e.state.Visited[index] = true
	e.emitter.StepEntered(index, step.Ordinal, step.ID)

	if firstVisit && step.Chat != nil {
		if step.Chat.Greeting != "" {
			e.appendAssistantMessage("", step.Chat.Greeting, nil)
		}
		e.state.ActiveBranch = ""
		e.navigateToBranch(step, step.Chat.Entry, "", "entry")
	}
}

// Complete marks the step with the given ordinal completed.
//
// Completing an already-completed step is a no-op: the completed set is
// unchanged and the position does not advance again. A completed step sheds
// any skip or snooze entry. When the completed step is the current one, the
// position auto-advances; when every step has reached a terminal state, the
// workflow completes.
func (e *Engine) Complete(ordinal int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkActive(); err != nil {
		return err
	}
	step := e.def.StepByOrdinal(ordinal)
	if step == nil {
		return fmt.Errorf("%w: ordinal %d", ErrOutOfRange, ordinal)
	}
	if e.state.Completed[ordinal] {
		return nil
	}

	e.state.Completed[ordinal] = true
	delete(e.state.Skipped, ordinal)
	delete(e.state.Snoozed, ordinal)
	e.emitter.StepCompleted(ordinal, step.ID)

	e.settleAfterTerminal(ordinal)
	e.afterMutation()
	return nil
}

// Skip marks the step skipped for this session with a required reason.
// Skip, snooze, and complete are mutually exclusive per ordinal; the newest
// terminal state wins.
func (e *Engine) Skip(ordinal int, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkActive(); err != nil {
		return err
	}
	step := e.def.StepByOrdinal(ordinal)
	if step == nil {
		return fmt.Errorf("%w: ordinal %d", ErrOutOfRange, ordinal)
	}
	if reason == "" {
		return ErrEmptySkipReason
	}

	delete(e.state.Completed, ordinal)
	delete(e.state.Snoozed, ordinal)
	e.state.Skipped[ordinal] = reason
	e.emitter.StepSkipped(ordinal, step.ID, reason)

	e.settleAfterTerminal(ordinal)
	e.afterMutation()
	return nil
}

// Snooze defers the step until the given wake-up time. On resume, snoozed
// entries whose time has passed are removed and the step becomes actionable
// again.
func (e *Engine) Snooze(ordinal int, until time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkActive(); err != nil {
		return err
	}
	step := e.def.StepByOrdinal(ordinal)
	if step == nil {
		return fmt.Errorf("%w: ordinal %d", ErrOutOfRange, ordinal)
	}

	delete(e.state.Completed, ordinal)
	delete(e.state.Skipped, ordinal)
	e.state.Snoozed[ordinal] = until
	e.emitter.StepSnoozed(ordinal, step.ID, until)

	e.settleAfterTerminal(ordinal)
	e.afterMutation()
	return nil
}

// settleAfterTerminal advances or completes the workflow after a step
// reached a terminal state. Caller holds e.mu.
func (e *Engine) settleAfterTerminal(ordinal int) {
	if e.allStepsTerminal() {
		e.completeWorkflow()
		return
	}

	// Advancing only applies when the settled step is the current one.
	if e.def.StepAt(e.state.Position).Ordinal != ordinal {
		return
	}
	next := e.state.Position + 1
	if next >= e.def.StepCount() {
		return
	}
	e.cancelTimers()
	e.state.Position = next
	e.enterStep(next)
}

// allStepsTerminal reports whether every step completed, was skipped, or is
// snoozed. Caller holds e.mu.
func (e *Engine) allStepsTerminal() bool {
	for _, step := range e.def.Steps {
		if !e.state.IsTerminalStep(step.Ordinal) {
			return false
		}
	}
	return true
}

// completeWorkflow finalizes the execution status. A run where every step
// was genuinely completed finishes as Completed; skipped or snoozed steps
// downgrade it to CompletedWithPendingTasks. Caller holds e.mu.
func (e *Engine) completeWorkflow() {
	e.cancelTimers()

	status := execution.StatusCompleted
	if e.state.HasPendingTasks() {
		status = execution.StatusCompletedPendingTasks
	}
	e.state.Status = status

	e.emitter.ExecutionCompleted(status,
		len(e.state.Completed), len(e.state.Skipped), len(e.state.Snoozed),
		e.now().Sub(e.state.CreatedAt))

	logger.Info("workflow completed",
		"execution_id", e.state.ExecutionID,
		"workflow_id", e.state.WorkflowID,
		"status", string(status),
	)
}

// Progress returns the fraction of steps in a terminal state, in [0, 1].
func (e *Engine) Progress() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := e.def.StepCount()
	if total == 0 {
		return 0
	}
	terminal := 0
	for _, step := range e.def.Steps {
		if e.state.IsTerminalStep(step.Ordinal) {
			terminal++
		}
	}
	return float64(terminal) / float64(total)
}
