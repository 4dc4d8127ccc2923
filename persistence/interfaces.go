// Package persistence provides abstract access to workflow definitions.
//
// It implements the repository pattern to decouple the engine from where
// definitions live (YAML files on disk, memory, a future registry service).
// Definitions are validated on load; a definition with blocking errors is
// never handed to callers.
package persistence

import (
	"errors"

	"github.com/HarborLabs/playbook/definition"
)

// WorkflowRepository provides abstract access to workflow definitions.
type WorkflowRepository interface {
	// LoadWorkflow loads a validated workflow definition by ID.
	LoadWorkflow(id string) (*definition.Workflow, error)

	// ListWorkflows returns all available workflow IDs.
	ListWorkflows() ([]string, error)
}

// Sentinel errors for repository operations.
var (
	// ErrWorkflowNotFound is returned when a requested workflow is not found.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowInvalid is returned when a stored definition fails
	// validation. Such a workflow must never start.
	ErrWorkflowInvalid = errors.New("workflow definition invalid")

	// ErrNilWorkflow is returned when a nil definition is saved.
	ErrNilWorkflow = errors.New("workflow cannot be nil")

	// ErrEmptyWorkflowID is returned when a definition has no ID.
	ErrEmptyWorkflowID = errors.New("workflow ID cannot be empty")
)
