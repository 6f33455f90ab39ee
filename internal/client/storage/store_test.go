package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/shopkeeper/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "shop.db")
	s, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_SharesHandlePerDSN(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "shop.db")
	ctx := context.Background()

	s1, err := Open(ctx, dsn)
	require.NoError(t, err)
	s2, err := Open(ctx, dsn)
	require.NoError(t, err)
	assert.Same(t, s1, s2, "second open must reuse the first handle")

	require.NoError(t, s1.Close())

	s3, err := Open(ctx, dsn)
	require.NoError(t, err)
	assert.NotSame(t, s1, s3, "open after close must create a fresh handle")
	require.NoError(t, s3.Close())
}

func TestSettings_RoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	var missing string
	ok, err := s.GetSetting(ctx, "last_sync_time", &missing)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetSetting(ctx, "last_sync_time", "2026-01-02T03:04:05Z"))

	var got string
	ok, err = s.GetSetting(ctx, "last_sync_time", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2026-01-02T03:04:05Z", got)
}

func TestSnapshot_ExportClearImportRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	p1, err := s.Products().Add(ctx, "Chair", "wooden", []byte("img"), nil, nil)
	require.NoError(t, err)
	p2, err := s.Products().Add(ctx, "Table", "", nil, nil, nil)
	require.NoError(t, err)
	_, err = s.Products().MarkSynced(ctx, p2.ID, "srv-2")
	require.NoError(t, err)

	_, err = s.Queue().Enqueue(ctx, models.OpAdd, map[string]string{"id": p1.ID})
	require.NoError(t, err)
	require.NoError(t, s.SetSetting(ctx, "auth_token", "tok"))

	snap, err := s.ExportSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Products, 2)
	require.Len(t, snap.Queue, 1)

	require.NoError(t, s.ClearAll(ctx))
	all, err := s.Products().GetAll(ctx)
	require.NoError(t, err)
	require.Empty(t, all)

	require.NoError(t, s.ImportSnapshot(ctx, snap))

	restored, err := s.Products().GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, restored, 2)

	byID := map[string]models.Product{}
	for _, p := range restored {
		byID[p.ID] = p
	}
	require.Contains(t, byID, p1.ID)
	require.Contains(t, byID, p2.ID)
	assert.False(t, byID[p1.ID].Synced)
	assert.True(t, byID[p1.ID].Local)
	assert.True(t, byID[p2.ID].Synced)
	require.NotNil(t, byID[p2.ID].ServerID)
	assert.Equal(t, "srv-2", *byID[p2.ID].ServerID)

	items, err := s.Queue().All(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.OpAdd, items[0].Type)

	var tok string
	ok, err := s.GetSetting(ctx, "auth_token", &tok)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", tok)
}
