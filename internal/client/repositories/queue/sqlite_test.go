package queue

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/client/models"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE sync_queue (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  type TEXT NOT NULL,
  data BLOB NOT NULL,
  timestamp TIMESTAMP NOT NULL,
  processed INTEGER NOT NULL DEFAULT 0,
  attempts INTEGER NOT NULL DEFAULT 0
);
`)
	require.NoError(t, err)

	return db
}

func TestEnqueue_Pending_FIFO(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	id1, err := r.Enqueue(ctx, models.OpAdd, map[string]string{"id": "a"})
	require.NoError(t, err)
	id2, err := r.Enqueue(ctx, models.OpDelete, map[string]string{"id": "b"})
	require.NoError(t, err)
	require.Less(t, id1, id2)

	items, err := r.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, id1, items[0].ID)
	assert.Equal(t, models.OpAdd, items[0].Type)
	assert.Equal(t, id2, items[1].ID)
	assert.JSONEq(t, `{"id":"b"}`, string(items[1].Data))
	assert.Equal(t, 0, items[0].Attempts)
	assert.False(t, items[0].Processed)
}

func TestMarkProcessed_RemovesFromPending(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	id, err := r.Enqueue(ctx, models.OpAdd, nil)
	require.NoError(t, err)

	require.NoError(t, r.MarkProcessed(ctx, id))

	items, err := r.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	all, err := r.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Processed)

	assert.ErrorIs(t, r.MarkProcessed(ctx, 9999), common.ErrNotFound)
}

func TestIncrementAttempts_CountsOnlyWhileUnprocessed(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	id, err := r.Enqueue(ctx, models.OpUpdate, nil)
	require.NoError(t, err)

	n, err := r.IncrementAttempts(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = r.IncrementAttempts(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, r.MarkProcessed(ctx, id))

	// processed items no longer accumulate attempts
	n, err = r.IncrementAttempts(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = r.IncrementAttempts(ctx, 9999)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCleanupProcessed_RemovesOnlyOldProcessedItems(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	oldTS := time.Now().UTC().Add(-8 * 24 * time.Hour)
	_, err := db.Exec(`INSERT INTO sync_queue (type, data, timestamp, processed, attempts)
		VALUES ('ADD', 'null', ?, 1, 3)`, oldTS)
	require.NoError(t, err)

	freshID, err := r.Enqueue(ctx, models.OpAdd, nil)
	require.NoError(t, err)
	require.NoError(t, r.MarkProcessed(ctx, freshID))

	pendingID, err := r.Enqueue(ctx, models.OpDelete, nil)
	require.NoError(t, err)

	removed, err := r.CleanupProcessed(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	all, err := r.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, freshID, all[0].ID)
	assert.Equal(t, pendingID, all[1].ID)
}
