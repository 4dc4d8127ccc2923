package snapshotstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/HarborLabs/playbook/execution"
)

// MemoryStore provides an in-memory implementation of the Store interface.
// It is thread-safe and suitable for development, testing, and single-instance
// deployments. For distributed systems, use RedisStore or PostgresStore.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*execution.Snapshot

	// Index for efficient workflow-based lookups
	workflowIndex map[string][]string // workflowID -> []executionID
}

// NewMemoryStore creates a new in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots:     make(map[string]*execution.Snapshot),
		workflowIndex: make(map[string][]string),
	}
}

// Load retrieves a snapshot by execution ID.
// Returns a deep copy to prevent external mutations.
func (s *MemoryStore) Load(ctx context.Context, executionID string) (*execution.Snapshot, error) {
	if executionID == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, exists := s.snapshots[executionID]
	if !exists {
		return nil, ErrNotFound
	}

	return snap.Clone(), nil
}

// Save persists a snapshot. An existing snapshot for the same execution is
// replaced regardless of version; staleness policy lives above the store.
func (s *MemoryStore) Save(ctx context.Context, snap *execution.Snapshot) error {
	if snap == nil {
		return ErrInvalidSnapshot
	}
	if snap.ExecutionID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a deep copy to prevent external mutations
	s.snapshots[snap.ExecutionID] = snap.Clone()

	if snap.WorkflowID != "" {
		s.updateWorkflowIndex(snap.WorkflowID, snap.ExecutionID)
	}

	return nil
}

// Delete removes a snapshot by execution ID.
func (s *MemoryStore) Delete(ctx context.Context, executionID string) error {
	if executionID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, exists := s.snapshots[executionID]
	if !exists {
		return ErrNotFound
	}

	if snap.WorkflowID != "" {
		s.removeFromWorkflowIndex(snap.WorkflowID, executionID)
	}

	delete(s.snapshots, executionID)

	return nil
}

// List returns execution IDs matching the given criteria, sorted by the
// snapshot's last update time.
func (s *MemoryStore) List(ctx context.Context, opts ListOptions) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	if opts.WorkflowID != "" {
		indexed, exists := s.workflowIndex[opts.WorkflowID]
		if !exists {
			return []string{}, nil
		}
		ids = make([]string, len(indexed))
		copy(ids, indexed)
	} else {
		ids = make([]string, 0, len(s.snapshots))
		for id := range s.snapshots {
			ids = append(ids, id)
		}
	}

	s.sortByUpdatedAt(ids, opts.SortOrder)

	return applyPagination(ids, opts.Offset, opts.Limit), nil
}

// updateWorkflowIndex adds an execution ID to the workflow's index.
// Must be called with mutex locked.
func (s *MemoryStore) updateWorkflowIndex(workflowID, executionID string) {
	execs, exists := s.workflowIndex[workflowID]
	if !exists {
		s.workflowIndex[workflowID] = []string{executionID}
		return
	}

	for _, id := range execs {
		if id == executionID {
			return
		}
	}

	s.workflowIndex[workflowID] = append(execs, executionID)
}

// removeFromWorkflowIndex removes an execution ID from the workflow's index.
// Must be called with mutex locked.
func (s *MemoryStore) removeFromWorkflowIndex(workflowID, executionID string) {
	execs, exists := s.workflowIndex[workflowID]
	if !exists {
		return
	}

	filtered := make([]string, 0, len(execs))
	for _, id := range execs {
		if id != executionID {
			filtered = append(filtered, id)
		}
	}

	if len(filtered) == 0 {
		delete(s.workflowIndex, workflowID)
	} else {
		s.workflowIndex[workflowID] = filtered
	}
}

// sortByUpdatedAt sorts execution IDs by snapshot update time.
// Must be called with read lock held.
func (s *MemoryStore) sortByUpdatedAt(ids []string, sortOrder string) {
	ascending := strings.EqualFold(sortOrder, "asc")

	sort.Slice(ids, func(i, j int) bool {
		snap1, exists1 := s.snapshots[ids[i]]
		snap2, exists2 := s.snapshots[ids[j]]
		if !exists1 || !exists2 {
			return false
		}

		less := snap1.UpdatedAt.Before(snap2.UpdatedAt)
		if ascending {
			return less
		}
		return !less
	})
}

// applyPagination applies offset and limit to the execution ID list.
func applyPagination(ids []string, offset, limit int) []string {
	if limit == 0 {
		limit = defaultListLimit
	}

	if offset >= len(ids) {
		return []string{}
	}

	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}

	return ids[offset:end]
}
