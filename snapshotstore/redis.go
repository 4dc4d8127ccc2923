package snapshotstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HarborLabs/playbook/execution"
)

// defaultTTL is the default lifetime for stored snapshots. Abandoned
// executions age out of Redis after this long without a save.
const defaultTTL = 30 * 24 * time.Hour

// RedisStore provides a Redis-backed implementation of the Store interface.
// It uses JSON serialization for snapshot storage and supports automatic
// TTL-based cleanup. Suitable for distributed systems and production
// deployments.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the time-to-live for stored snapshots.
// After this duration without a save, executions are automatically deleted.
// Default is 30 days. Set to 0 for no expiration.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for Redis keys.
// Default is "playbook".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a new Redis-backed snapshot store.
//
// Example:
//
//	store := NewRedisStore(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithTTL(7 * 24 * time.Hour),
//	    WithPrefix("myapp"),
//	)
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		ttl:    defaultTTL,
		prefix: "playbook",
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Load retrieves a snapshot by execution ID from Redis.
func (s *RedisStore) Load(ctx context.Context, executionID string) (*execution.Snapshot, error) {
	if executionID == "" {
		return nil, ErrInvalidID
	}

	key := s.snapshotKey(executionID)
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var snap execution.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// Save persists a snapshot to Redis with TTL.
// Uses a pipeline to batch the SET and workflow index update into a single
// round-trip.
func (s *RedisStore) Save(ctx context.Context, snap *execution.Snapshot) error {
	if snap == nil {
		return ErrInvalidSnapshot
	}
	if snap.ExecutionID == "" {
		return ErrInvalidID
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := s.snapshotKey(snap.ExecutionID)
	pipe := s.client.Pipeline()
	pipe.Set(ctx, key, data, s.ttl)

	if snap.WorkflowID != "" {
		indexKey := s.workflowIndexKey(snap.WorkflowID)
		pipe.SAdd(ctx, indexKey, snap.ExecutionID)
		if s.ttl > 0 {
			pipe.Expire(ctx, indexKey, s.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}

	return nil
}

// Delete removes a snapshot from Redis.
// Uses a pipeline to batch the DEL and workflow index cleanup.
func (s *RedisStore) Delete(ctx context.Context, executionID string) error {
	if executionID == "" {
		return ErrInvalidID
	}

	// Load first to find the workflow for index cleanup
	snap, err := s.Load(ctx, executionID)
	if err != nil {
		return err
	}

	key := s.snapshotKey(executionID)
	pipe := s.client.Pipeline()
	delCmd := pipe.Del(ctx, key)

	if snap.WorkflowID != "" {
		indexKey := s.workflowIndexKey(snap.WorkflowID)
		pipe.SRem(ctx, indexKey, executionID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}

	if delCmd.Val() == 0 {
		return ErrNotFound
	}

	return nil
}

// List returns execution IDs matching the given criteria, sorted by the
// snapshot's last update time.
func (s *RedisStore) List(ctx context.Context, opts ListOptions) ([]string, error) {
	ids, err := s.fetchExecutionIDs(ctx, opts.WorkflowID)
	if err != nil {
		return nil, err
	}

	if err := s.sortByUpdatedAt(ctx, ids, opts.SortOrder); err != nil {
		return nil, fmt.Errorf("failed to sort executions: %w", err)
	}

	return applyPagination(ids, opts.Offset, opts.Limit), nil
}

// fetchExecutionIDs retrieves execution IDs for a workflow or all executions.
func (s *RedisStore) fetchExecutionIDs(ctx context.Context, workflowID string) ([]string, error) {
	if workflowID != "" {
		return s.fetchWorkflowExecutions(ctx, workflowID)
	}
	return s.scanAllExecutions(ctx)
}

// fetchWorkflowExecutions gets executions for a workflow from the index set.
func (s *RedisStore) fetchWorkflowExecutions(ctx context.Context, workflowID string) ([]string, error) {
	indexKey := s.workflowIndexKey(workflowID)
	members, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}
	return members, nil
}

// scanAllExecutions scans all snapshot keys in Redis.
func (s *RedisStore) scanAllExecutions(ctx context.Context) ([]string, error) {
	var ids []string
	pattern := s.snapshotKey("*")
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		id := s.extractIDFromKey(iter.Val())
		if id != "" {
			ids = append(ids, id)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}
	return ids, nil
}

// snapshotKey generates the Redis key for an execution snapshot.
func (s *RedisStore) snapshotKey(executionID string) string {
	return fmt.Sprintf("%s:execution:%s", s.prefix, executionID)
}

// workflowIndexKey generates the Redis key for a workflow's execution index.
func (s *RedisStore) workflowIndexKey(workflowID string) string {
	return fmt.Sprintf("%s:workflow:%s:executions", s.prefix, workflowID)
}

// extractIDFromKey extracts the execution ID from a Redis key.
func (s *RedisStore) extractIDFromKey(key string) string {
	prefix := s.snapshotKey("")
	if strings.HasPrefix(key, prefix) {
		return strings.TrimPrefix(key, prefix)
	}
	return ""
}

// sortByUpdatedAt sorts execution IDs using pipelined GET to fetch all
// snapshots in a single round-trip, then sorts in memory.
func (s *RedisStore) sortByUpdatedAt(ctx context.Context, ids []string, sortOrder string) error {
	if len(ids) == 0 {
		return nil
	}

	snaps, err := s.pipelinedLoadSnapshots(ctx, ids)
	if err != nil {
		return err
	}

	ascending := strings.EqualFold(sortOrder, "asc")
	sort.Slice(snaps, func(i, j int) bool {
		less := snaps[i].snap.UpdatedAt.Before(snaps[j].snap.UpdatedAt)
		if ascending {
			return less
		}
		return !less
	})

	// Keys may expire between SCAN and GET; the sorted result is
	// shorter then, and trailing ids keep their original values.
	for i, sn := range snaps {
		ids[i] = sn.id
	}

	return nil
}

// snapshotWithID pairs an execution ID with its loaded snapshot for sorting.
type snapshotWithID struct {
	id   string
	snap *execution.Snapshot
}

// pipelinedLoadSnapshots fetches multiple snapshots using a single pipelined GET.
func (s *RedisStore) pipelinedLoadSnapshots(ctx context.Context, ids []string) ([]snapshotWithID, error) {
	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.snapshotKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis pipeline failed: %w", err)
	}

	snaps := make([]snapshotWithID, 0, len(ids))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("redis get failed: %w", err)
		}
		var snap execution.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		snaps = append(snaps, snapshotWithID{id: ids[i], snap: &snap})
	}
	return snaps, nil
}
