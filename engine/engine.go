// Package engine drives a single workflow execution: step navigation,
// chat branch routing, action execution, artifact emission, and snapshot
// scheduling. One Engine owns one execution.State; all operations are
// serialized through the engine's mutex so timer callbacks never race user
// input.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/HarborLabs/playbook/definition"
	"github.com/HarborLabs/playbook/events"
	"github.com/HarborLabs/playbook/execution"
	"github.com/HarborLabs/playbook/logger"
	"github.com/HarborLabs/playbook/registry"
	"github.com/HarborLabs/playbook/types"
)

// Persister schedules snapshot writes. *autosave.Saver implements it; a nil
// persister disables persistence (useful in tests).
type Persister interface {
	Schedule(snap *execution.Snapshot) error
	SaveImmediate(ctx context.Context, snap *execution.Snapshot) error
}

// ArtifactSink receives each emitted artifact exactly once, keyed by the
// ordinal of the step that produced it.
type ArtifactSink func(ordinal int, artifact types.Artifact)

// Engine interprets a workflow definition against one execution's state.
type Engine struct {
	mu sync.Mutex

	def        *definition.Workflow
	state      *execution.State
	components registry.Resolver
	persister  Persister
	sink       ArtifactSink
	bus        *events.Bus
	emitter    *events.Emitter
	scheduler  Scheduler

	// TimeFunc injection keeps timestamps deterministic in tests.
	now func() time.Time

	autoAdvanceTimer Timer
	predelayTimer    Timer
	exited           bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithComponents sets the step component resolver.
func WithComponents(r registry.Resolver) Option {
	return func(e *Engine) { e.components = r }
}

// WithPersister wires snapshot scheduling to a persistence adapter.
func WithPersister(p Persister) Option {
	return func(e *Engine) { e.persister = p }
}

// WithArtifactSink forwards emitted artifacts to an external consumer.
func WithArtifactSink(sink ArtifactSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithEventBus publishes engine events onto the given bus.
func WithEventBus(bus *events.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithScheduler overrides the timer scheduler (tests use a manual one).
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) { e.scheduler = s }
}

// WithTimeFunc overrides the engine's time source.
func WithTimeFunc(fn func() time.Time) Option {
	return func(e *Engine) { e.now = fn }
}

// New validates the definition and creates an engine with a fresh execution
// state positioned at the first step. A definition with validation errors is
// rejected with ErrDefinitionInvalid.
func New(def *definition.Workflow, opts ...Option) (*Engine, error) {
	e := &Engine{
		def:       def,
		scheduler: NewScheduler(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	result := definition.Validate(def)
	if result.HasErrors() {
		logger.DefinitionRejected(def.ID, len(result.Errors), "first_error", result.Errors[0])
		return nil, fmt.Errorf("%w: %s", ErrDefinitionInvalid, result.Errors[0])
	}
	for _, warning := range result.Warnings {
		logger.Warn("workflow definition warning", "workflow_id", def.ID, "warning", warning)
	}

	e.state = execution.NewState(def.ID, e.now())
	e.emitter = events.NewEmitter(e.bus, e.state.ExecutionID, def.ID).WithTimeFunc(e.now)
	return e, nil
}

// Resume validates the definition and reconstructs an engine from a stored
// snapshot. Snoozed steps whose wake-up time has passed become actionable
// again.
func Resume(def *definition.Workflow, snap *execution.Snapshot, opts ...Option) (*Engine, error) {
	e := &Engine{
		def:       def,
		scheduler: NewScheduler(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	result := definition.Validate(def)
	if result.HasErrors() {
		logger.DefinitionRejected(def.ID, len(result.Errors), "first_error", result.Errors[0])
		return nil, fmt.Errorf("%w: %s", ErrDefinitionInvalid, result.Errors[0])
	}

	e.state = execution.FromSnapshot(snap)
	if e.state.Position < 0 || e.state.Position >= def.StepCount() {
		return nil, fmt.Errorf("%w: snapshot position %d", ErrOutOfRange, e.state.Position)
	}

	e.emitter = events.NewEmitter(e.bus, e.state.ExecutionID, def.ID).WithTimeFunc(e.now)

	woken := e.state.WakeSnoozed(e.now())
	e.emitter.ExecutionResumed(e.state.Position, e.state.Version, woken, len(e.state.Transcript))
	if len(woken) > 0 {
		e.afterMutation()
	}
	return e, nil
}

// Start moves a fresh execution into progress and enters the first step.
// Starting an already-started execution is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status != execution.StatusNotStarted {
		return
	}

	e.state.Status = execution.StatusInProgress
	e.emitter.ExecutionStarted(e.def.StepCount())
	e.enterStep(e.state.Position)
	e.afterMutation()
}

// Exit force-saves the execution and stops the session. Pending timers are
// canceled; further mutations are rejected with ErrExecutionFinished.
func (e *Engine) Exit(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exit(ctx)
}

// exit is the lock-held implementation shared with the exitWorkflow action.
func (e *Engine) exit(ctx context.Context) error {
	if e.exited {
		return nil
	}
	e.exited = true
	e.cancelTimers()

	saved := true
	var err error
	if e.persister != nil {
		if err = e.persister.SaveImmediate(ctx, e.state.Snapshot(e.now())); err != nil {
			saved = false
		}
	}
	e.emitter.ExecutionExited(e.state.Position, saved)
	return err
}

// ExecutionID returns the execution's unique ID.
func (e *Engine) ExecutionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ExecutionID
}

// Status returns the execution's lifecycle status.
func (e *Engine) Status() execution.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Status
}

// State returns a deep copy of the execution state for rendering. The
// engine's own copy stays authoritative.
func (e *Engine) State() *execution.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Snapshot projects the current state into its serializable form.
func (e *Engine) Snapshot() *execution.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Snapshot(e.now())
}

// CurrentStep returns the definition step at the current position.
func (e *Engine) CurrentStep() *definition.Step {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.def.StepAt(e.state.Position)
}

// ResolveComponent resolves the current step's component binding, falling
// back to the generic informational view when the name has no registration.
func (e *Engine) ResolveComponent() registry.Component {
	e.mu.Lock()
	name := e.def.StepAt(e.state.Position).Component
	e.mu.Unlock()
	return registry.ResolveOrFallback(e.components, name)
}

// checkActive rejects mutations on a finished session. Caller holds e.mu.
func (e *Engine) checkActive() error {
	if e.exited || e.state.Status.Terminal() {
		return ErrExecutionFinished
	}
	return nil
}

// afterMutation stamps the mutation and schedules a debounced snapshot
// write. Saves never block the session; failures surface through the
// persister's status, not here. Caller holds e.mu.
func (e *Engine) afterMutation() {
	now := e.now()
	e.state.Touch(now)
	if e.persister == nil {
		return
	}
	if err := e.persister.Schedule(e.state.Snapshot(now)); err != nil {
		logger.SaveFailed(e.state.ExecutionID, err, "version", e.state.Version)
	}
}
