package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/client/events"
	"github.com/dmitrijs2005/shopkeeper/internal/client/models"
	"github.com/dmitrijs2005/shopkeeper/internal/client/storage"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI implements API with scriptable behaviour and call counters.
type fakeAPI struct {
	mu          sync.Mutex
	online      bool
	createErr   error
	createCalls int
	nextID      int
	deleted     []string
	updated     []string
	list        []models.StoryRecord
	listErr     error
	createGate  chan struct{} // when set, CreateStory blocks until released
}

func newFakeAPI() *fakeAPI { return &fakeAPI{online: true} }

func (f *fakeAPI) Online() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *fakeAPI) SetOnline(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = v
}

func (f *fakeAPI) Ping(ctx context.Context) error {
	if !f.Online() {
		return errors.New("unreachable")
	}
	return nil
}

func (f *fakeAPI) ListStories(ctx context.Context) (*models.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &models.Envelope{Message: "ok", Data: models.Payload{ListStory: f.list}}, nil
}

func (f *fakeAPI) CreateStory(ctx context.Context, name, description string, photo []byte, lat, lon *float64) (string, error) {
	f.mu.Lock()
	f.createCalls++
	gate := f.createGate
	err := f.createErr
	f.nextID++
	id := fmt.Sprintf("srv-%d", f.nextID)
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (f *fakeAPI) UpdateStory(ctx context.Context, serverID string, patch models.ProductPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, serverID)
	return nil
}

func (f *fakeAPI) DeleteStory(ctx context.Context, serverID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, serverID)
	return nil
}

func (f *fakeAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newSyncer(t *testing.T, api API) (*Syncer, *storage.Store) {
	t.Helper()
	s, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "shop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return New(s, api, events.NewRegistry(), testLogger()), s
}

func TestAddProduct_OfflineCommitsLocallyAndQueues(t *testing.T) {
	api := newFakeAPI()
	api.SetOnline(false)
	sy, store := newSyncer(t, api)
	ctx := context.Background()

	p, err := sy.AddProduct(ctx, "Chair", "wooden", []byte("img"), nil, nil)
	require.NoError(t, err, "optimistic write path must never reject while offline")

	all, err := store.Products().GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, p.ID, all[0].ID)
	assert.False(t, all[0].Synced)
	assert.True(t, all[0].Local)

	pending, err := store.Queue().Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.OpAdd, pending[0].Type)
	assert.False(t, pending[0].Processed)

	assert.Zero(t, api.calls(), "nothing may reach the network while offline")
}

func TestSyncNow_ReconcilesQueueAfterReconnect(t *testing.T) {
	api := newFakeAPI()
	api.SetOnline(false)
	sy, store := newSyncer(t, api)
	ctx := context.Background()

	p, err := sy.AddProduct(ctx, "Chair", "wooden", nil, nil, nil)
	require.NoError(t, err)

	// reconnect
	api.SetOnline(true)
	require.NoError(t, sy.SyncNow(ctx))

	pending, err := store.Queue().Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending, "queue must drain after one pass")

	synced, err := store.Products().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, synced.Synced)
	require.NotNil(t, synced.ServerID)
	assert.Equal(t, "srv-1", *synced.ServerID)

	var last string
	ok, err := store.GetSetting(ctx, SettingLastSyncTime, &last)
	require.NoError(t, err)
	assert.True(t, ok, "last sync time must be stamped")
}

func TestSyncNow_BoundedRetryAbandonsAfterThreeAttempts(t *testing.T) {
	api := newFakeAPI()
	api.createErr = errors.New("server rejects everything")
	sy, store := newSyncer(t, api)
	ctx := context.Background()

	p, err := store.Products().Add(ctx, "Chair", "", nil, nil, nil)
	require.NoError(t, err)
	id, err := store.Queue().Enqueue(ctx, models.OpAdd, addPayload{LocalID: p.ID})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, sy.SyncNow(ctx), "item failures must not fail the pass")
	}

	items, err := store.Queue().All(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Processed, "item must be abandoned after 3 attempts")
	assert.Equal(t, 3, items[0].Attempts)
	assert.Equal(t, id, items[0].ID)

	// the abandoned item gets no further replay attempts
	callsBefore := api.calls()
	require.NoError(t, sy.SyncNow(ctx))
	items, err = store.Queue().All(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, items[0].Attempts)
	// the unsynced-sweep still runs, so only that one extra call is allowed
	assert.LessOrEqual(t, api.calls()-callsBefore, 1)
}

func TestSyncNow_SecondTriggerWhileBusyIsNoOp(t *testing.T) {
	api := newFakeAPI()
	api.createGate = make(chan struct{})
	sy, store := newSyncer(t, api)
	ctx := context.Background()

	_, err := store.Products().Add(ctx, "Chair", "", nil, nil, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sy.SyncNow(ctx) }()

	// wait for the first pass to be mid-flight inside CreateStory
	require.Eventually(t, func() bool { return api.calls() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, sy.Busy())

	require.NoError(t, sy.SyncNow(ctx), "second trigger must be a silent no-op")
	assert.Equal(t, 1, api.calls(), "no duplicate network calls")

	close(api.createGate)
	require.NoError(t, <-done)
	assert.False(t, sy.Busy())
}

func TestSyncNow_UnknownQueueTypeIsMarkedProcessed(t *testing.T) {
	api := newFakeAPI()
	sy, store := newSyncer(t, api)
	ctx := context.Background()

	_, err := store.Queue().Enqueue(ctx, models.QueueOp("REPAINT"), map[string]string{"id": "x"})
	require.NoError(t, err)

	require.NoError(t, sy.SyncNow(ctx))

	pending, err := store.Queue().Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	items, err := store.Queue().All(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Processed)
	assert.Zero(t, items[0].Attempts)
}

func TestSyncNow_EmitsCompletedEvent(t *testing.T) {
	api := newFakeAPI()
	sy, store := newSyncer(t, api)
	ctx := context.Background()

	_, err := store.Products().Add(ctx, "Chair", "", nil, nil, nil)
	require.NoError(t, err)

	var got []Summary
	sy.Events().Subscribe(events.SyncCompleted, func(p any) {
		if s, ok := p.(Summary); ok {
			got = append(got, s)
		}
	})

	require.NoError(t, sy.SyncNow(ctx))
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Pushed)
}

func TestSyncNow_StorageFailureEmitsSyncFailed(t *testing.T) {
	api := newFakeAPI()
	sy, store := newSyncer(t, api)
	ctx := context.Background()

	var failure any
	sy.Events().Subscribe(events.SyncFailed, func(p any) { failure = p })

	require.NoError(t, store.DB().Close())

	err := sy.SyncNow(ctx)
	require.Error(t, err)
	assert.NotNil(t, failure, "sync_failed must fire on a phase-1 abort")
	assert.False(t, sy.Busy(), "terminal idle state must be reached")
}

func TestGetProducts_OnlineCachesUnknownServerRecords(t *testing.T) {
	api := newFakeAPI()
	api.list = []models.StoryRecord{
		{ID: "srv-a", Name: "Lamp", CreatedAt: time.Now().UTC()},
		{ID: "srv-b", Name: "Rug", CreatedAt: time.Now().UTC()},
	}
	sy, store := newSyncer(t, api)
	ctx := context.Background()

	res := sy.GetProducts(ctx)
	assert.False(t, res.Offline)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "Lamp", res.Items[0].Name)

	// both server records are now cached locally as synced
	all, err := store.Products().GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, p := range all {
		assert.True(t, p.Synced)
		assert.False(t, p.Local)
	}

	// second fetch does not duplicate them
	_ = sy.GetProducts(ctx)
	all, err = store.Products().GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetProducts_OfflineServesOnlySyncedRecords(t *testing.T) {
	api := newFakeAPI()
	sy, store := newSyncer(t, api)
	ctx := context.Background()

	confirmed, err := store.Products().Add(ctx, "Lamp", "", nil, nil, nil)
	require.NoError(t, err)
	_, err = store.Products().MarkSynced(ctx, confirmed.ID, "srv-lamp")
	require.NoError(t, err)

	_, err = store.Products().Add(ctx, "Draft chair", "", nil, nil, nil)
	require.NoError(t, err)

	api.SetOnline(false)
	res := sy.GetProducts(ctx)

	assert.True(t, res.Offline)
	require.Len(t, res.Items, 1, "unsynced drafts are excluded from the offline read path")
	assert.Equal(t, "Lamp", res.Items[0].Name)
	assert.Equal(t, "srv-lamp", res.Items[0].ID)
}

func TestGetProducts_LiveFailureFallsBackToLocal(t *testing.T) {
	api := newFakeAPI()
	api.listErr = errors.New("boom")
	sy, store := newSyncer(t, api)
	ctx := context.Background()

	p, err := store.Products().Add(ctx, "Lamp", "", nil, nil, nil)
	require.NoError(t, err)
	_, err = store.Products().MarkSynced(ctx, p.ID, "srv-lamp")
	require.NoError(t, err)

	res := sy.GetProducts(ctx)
	assert.True(t, res.Offline)
	require.Len(t, res.Items, 1)
}

func TestDeleteProduct_QueuesRemoteDelete(t *testing.T) {
	api := newFakeAPI()
	api.SetOnline(false)
	sy, store := newSyncer(t, api)
	ctx := context.Background()

	p, err := store.Products().Add(ctx, "Lamp", "", nil, nil, nil)
	require.NoError(t, err)
	_, err = store.Products().MarkSynced(ctx, p.ID, "srv-lamp")
	require.NoError(t, err)

	removed, err := sy.DeleteProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	api.SetOnline(true)
	require.NoError(t, sy.SyncNow(ctx))

	api.mu.Lock()
	deleted := append([]string(nil), api.deleted...)
	api.mu.Unlock()
	assert.Equal(t, []string{"srv-lamp"}, deleted)
}
