// Package snapshotstore provides durable storage for execution snapshots.
package snapshotstore

import (
	"context"
	"errors"

	"github.com/HarborLabs/playbook/execution"
)

// Store defines the interface for persistent execution snapshot storage.
type Store interface {
	// Load retrieves a snapshot by execution ID.
	Load(ctx context.Context, executionID string) (*execution.Snapshot, error)

	// Save persists a snapshot. An existing snapshot for the same
	// execution is replaced.
	Save(ctx context.Context, snap *execution.Snapshot) error

	// Delete removes a snapshot by execution ID.
	// Returns ErrNotFound if no snapshot exists.
	Delete(ctx context.Context, executionID string) error

	// List returns execution IDs matching the given criteria.
	List(ctx context.Context, opts ListOptions) ([]string, error)
}

// ListOptions provides filtering and pagination options for listing executions.
type ListOptions struct {
	// WorkflowID filters executions by the workflow definition they run.
	// If empty, all executions are returned (subject to pagination).
	WorkflowID string

	// Limit is the maximum number of execution IDs to return.
	// If 0, a default limit of 100 is applied.
	Limit int

	// Offset is the number of executions to skip (for pagination).
	Offset int

	// SortOrder specifies sort direction by last update: "asc" or "desc".
	// If empty, defaults to "desc" (most recently updated first).
	SortOrder string
}

// defaultListLimit caps List results when no limit is given.
const defaultListLimit = 100

// ErrNotFound is returned when no snapshot exists for an execution ID.
var ErrNotFound = errors.New("snapshot not found")

// ErrInvalidID is returned when an invalid execution ID is provided.
var ErrInvalidID = errors.New("invalid execution ID")

// ErrInvalidSnapshot is returned when a snapshot is nil or malformed.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// ErrStaleSnapshot is returned by version-checking writers when the stored
// snapshot carries a newer version than the one being written.
var ErrStaleSnapshot = errors.New("stale snapshot")
