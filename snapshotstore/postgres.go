package snapshotstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	// Registers the "postgres" driver with database/sql.
	_ "github.com/lib/pq"

	"github.com/HarborLabs/playbook/execution"
)

// PostgresStore provides a PostgreSQL-backed implementation of the Store
// interface. Snapshots are stored as JSONB rows keyed by execution ID; the
// workflow ID, version, and update time are lifted into columns for indexed
// listing.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a snapshot store backed by an existing database
// handle. The caller owns the handle's lifecycle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgresStore opens a connection with the given DSN, verifies it with a
// ping, and ensures the snapshot table exists.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// EnsureSchema creates the snapshot table and its indexes if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS playbook_snapshots (
	execution_id TEXT PRIMARY KEY,
	workflow_id  TEXT NOT NULL,
	version      BIGINT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	snapshot     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS playbook_snapshots_workflow_idx
	ON playbook_snapshots (workflow_id, updated_at DESC);`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// Load retrieves a snapshot by execution ID.
func (s *PostgresStore) Load(ctx context.Context, executionID string) (*execution.Snapshot, error) {
	if executionID == "" {
		return nil, ErrInvalidID
	}

	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM playbook_snapshots WHERE execution_id = $1`,
		executionID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres select failed: %w", err)
	}

	var snap execution.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// Save upserts a snapshot. The write is rejected with ErrStaleSnapshot when
// the stored row already carries a newer version.
func (s *PostgresStore) Save(ctx context.Context, snap *execution.Snapshot) error {
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

	res, err := s.db.ExecContext(ctx, `
INSERT INTO playbook_snapshots (execution_id, workflow_id, version, updated_at, snapshot)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (execution_id) DO UPDATE
	SET workflow_id = EXCLUDED.workflow_id,
	    version     = EXCLUDED.version,
	    updated_at  = EXCLUDED.updated_at,
	    snapshot    = EXCLUDED.snapshot
	WHERE playbook_snapshots.version <= EXCLUDED.version`,
		snap.ExecutionID, snap.WorkflowID, snap.Version, snap.UpdatedAt, data,
	)
	if err != nil {
		return fmt.Errorf("postgres upsert failed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres rows affected failed: %w", err)
	}
	if affected == 0 {
		return ErrStaleSnapshot
	}

	return nil
}

// Delete removes a snapshot by execution ID.
func (s *PostgresStore) Delete(ctx context.Context, executionID string) error {
	if executionID == "" {
		return ErrInvalidID
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM playbook_snapshots WHERE execution_id = $1`,
		executionID,
	)
	if err != nil {
		return fmt.Errorf("postgres delete failed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres rows affected failed: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// List returns execution IDs matching the given criteria, sorted by update
// time in the database.
func (s *PostgresStore) List(ctx context.Context, opts ListOptions) ([]string, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = defaultListLimit
	}

	direction := "DESC"
	if strings.EqualFold(opts.SortOrder, "asc") {
		direction = "ASC"
	}

	query := `SELECT execution_id FROM playbook_snapshots`
	args := []any{}
	if opts.WorkflowID != "" {
		query += ` WHERE workflow_id = $1`
		args = append(args, opts.WorkflowID)
	}
	query += fmt.Sprintf(` ORDER BY updated_at %s LIMIT $%d OFFSET $%d`,
		direction, len(args)+1, len(args)+2)
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres select failed: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres scan failed: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres rows failed: %w", err)
	}

	return ids, nil
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
