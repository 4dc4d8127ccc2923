// Package memory provides an in-memory workflow repository, useful for
// tests and programmatically constructed definitions.
package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/HarborLabs/playbook/definition"
	"github.com/HarborLabs/playbook/persistence"
)

// Compile-time interface check
var _ persistence.WorkflowRepository = (*Repository)(nil)

// Repository stores workflow definitions in memory.
type Repository struct {
	mu        sync.RWMutex
	workflows map[string]*definition.Workflow
}

// NewRepository creates an empty in-memory workflow repository.
func NewRepository() *Repository {
	return &Repository{
		workflows: make(map[string]*definition.Workflow),
	}
}

// SaveWorkflow validates and stores a workflow definition. An existing
// definition with the same ID is replaced.
func (r *Repository) SaveWorkflow(wf *definition.Workflow) error {
	if wf == nil {
		return persistence.ErrNilWorkflow
	}
	if wf.ID == "" {
		return persistence.ErrEmptyWorkflowID
	}
	if result := definition.Validate(wf); result.HasErrors() {
		return fmt.Errorf("%w: %s", persistence.ErrWorkflowInvalid, result.Errors[0])
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[wf.ID] = wf
	return nil
}

// LoadWorkflow returns a workflow definition by ID.
func (r *Repository) LoadWorkflow(id string) (*definition.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, ok := r.workflows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", persistence.ErrWorkflowNotFound, id)
	}
	return wf, nil
}

// ListWorkflows returns the stored workflow IDs in sorted order.
func (r *Repository) ListWorkflows() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.workflows))
	for id := range r.workflows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteWorkflow removes a workflow definition by ID.
func (r *Repository) DeleteWorkflow(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workflows[id]; !ok {
		return fmt.Errorf("%w: %s", persistence.ErrWorkflowNotFound, id)
	}
	delete(r.workflows, id)
	return nil
}
