package snapshotstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupPostgresStore connects to the database named by PLAYBOOK_POSTGRES_DSN.
// Tests are skipped when the variable is unset, so the suite stays runnable
// without a database.
func setupPostgresStore(t *testing.T) *PostgresStore {
	dsn := os.Getenv("PLAYBOOK_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PLAYBOOK_POSTGRES_DSN not set")
	}

	store, err := OpenPostgresStore(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPostgresStore_SaveAndLoad(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	snap := testSnapshot("pg-exec-1", "renewal-v2", 1, time.Now().UTC())
	require.NoError(t, store.Save(ctx, snap))
	t.Cleanup(func() { _ = store.Delete(ctx, "pg-exec-1") })

	loaded, err := store.Load(ctx, "pg-exec-1")
	require.NoError(t, err)
	assert.Equal(t, "renewal-v2", loaded.WorkflowID)
	assert.Equal(t, int64(1), loaded.Version)
	assert.Equal(t, []int{10}, loaded.Completed)
}

func TestPostgresStore_StaleWriteRejected(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.Save(ctx, testSnapshot("pg-exec-2", "renewal-v2", 5, now)))
	t.Cleanup(func() { _ = store.Delete(ctx, "pg-exec-2") })

	err := store.Save(ctx, testSnapshot("pg-exec-2", "renewal-v2", 3, now))
	assert.ErrorIs(t, err, ErrStaleSnapshot)

	loaded, err := store.Load(ctx, "pg-exec-2")
	require.NoError(t, err)
	assert.Equal(t, int64(5), loaded.Version)
}

func TestPostgresStore_DeleteNotFound(t *testing.T) {
	store := setupPostgresStore(t)

	assert.ErrorIs(t, store.Delete(context.Background(), "pg-missing"), ErrNotFound)
}

func TestPostgresStore_ListByWorkflow(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Save(ctx, testSnapshot("pg-list-1", "pg-list-wf", 1, now.Add(-time.Minute))))
	require.NoError(t, store.Save(ctx, testSnapshot("pg-list-2", "pg-list-wf", 1, now)))
	t.Cleanup(func() {
		_ = store.Delete(ctx, "pg-list-1")
		_ = store.Delete(ctx, "pg-list-2")
	})

	ids, err := store.List(ctx, ListOptions{WorkflowID: "pg-list-wf"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pg-list-2", "pg-list-1"}, ids)

	ids, err = store.List(ctx, ListOptions{WorkflowID: "pg-list-wf", SortOrder: "asc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pg-list-1", "pg-list-2"}, ids)
}
