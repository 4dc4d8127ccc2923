package engine

import "errors"

// Navigation errors are recoverable: the operation is rejected and state is
// unchanged.
var (
	// ErrOutOfRange is returned for a step index or ordinal outside the
	// workflow definition.
	ErrOutOfRange = errors.New("step out of range")

	// ErrStepNotReachable is returned when navigating to a step that is not
	// completed, skipped, previously visited, or the immediately-next step.
	ErrStepNotReachable = errors.New("step not reachable")

	// ErrEmptySkipReason is returned when a skip carries no reason.
	ErrEmptySkipReason = errors.New("skip reason must be non-empty")

	// ErrExecutionFinished is returned for mutations after the execution
	// reached a terminal status or exited.
	ErrExecutionFinished = errors.New("execution finished")
)

// ErrDefinitionInvalid is returned when a workflow definition fails
// validation. Fatal at load time: the workflow must not start.
var ErrDefinitionInvalid = errors.New("workflow definition invalid")

// ErrBranchNotFound reports a dangling branch reference discovered at
// runtime. It is logged and the routing operation becomes a no-op; it is
// never returned to the user session.
var ErrBranchNotFound = errors.New("branch not found")

// ErrSchemaViolation is returned when a component value submission fails the
// step's declared schema.
var ErrSchemaViolation = errors.New("step data rejected by schema")
