// Package syncer is the reconciliation engine: the single coordinator that
// moves data between the local store and the remote API. It drains the
// write-behind queue, pushes locally created records, and records outcomes.
// At most one sync pass runs at a time.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/client/events"
	"github.com/dmitrijs2005/shopkeeper/internal/client/models"
	"github.com/dmitrijs2005/shopkeeper/internal/client/storage"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
)

// SettingLastSyncTime is the user_data key stamped after every sync pass.
const SettingLastSyncTime = "last_sync_time"

// API is the slice of the gateway the syncer needs.
type API interface {
	Online() bool
	SetOnline(v bool)
	Ping(ctx context.Context) error
	ListStories(ctx context.Context) (*models.Envelope, error)
	CreateStory(ctx context.Context, name, description string, photo []byte, lat, lon *float64) (string, error)
	UpdateStory(ctx context.Context, serverID string, patch models.ProductPatch) error
	DeleteStory(ctx context.Context, serverID string) error
}

// Summary is the payload of the sync_completed event.
type Summary struct {
	Drained   int       `json:"drained"`
	Failed    int       `json:"failed"`
	Abandoned int       `json:"abandoned"`
	Pushed    int       `json:"pushed"`
	At        time.Time `json:"at"`
}

// Syncer owns the busy flag and the sync pass algorithm. Construct with New;
// one instance per process, owned by the composition root.
type Syncer struct {
	store      *storage.Store
	api        API
	events     *events.Registry
	log        logging.Logger
	busy       atomic.Bool
	interval   time.Duration
	pingEvery  time.Duration
	cleanupAge time.Duration
}

// Option tweaks Syncer timing knobs.
type Option func(*Syncer)

func WithInterval(d time.Duration) Option   { return func(s *Syncer) { s.interval = d } }
func WithPingEvery(d time.Duration) Option  { return func(s *Syncer) { s.pingEvery = d } }
func WithCleanupAge(d time.Duration) Option { return func(s *Syncer) { s.cleanupAge = d } }

func New(store *storage.Store, api API, reg *events.Registry, log logging.Logger, opts ...Option) *Syncer {
	s := &Syncer{
		store:      store,
		api:        api,
		events:     reg,
		log:        log.With("component", "syncer"),
		interval:   2 * time.Minute,
		pingEvery:  15 * time.Second,
		cleanupAge: 7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events exposes the subscriber registry (sync_completed, sync_failed,
// network_online, network_offline).
func (s *Syncer) Events() *events.Registry { return s.events }

// SyncNow runs one sync pass. If a pass is already running the call is a
// silent no-op. The pass always reaches idle again; individual item
// failures never abort it.
func (s *Syncer) SyncNow(ctx context.Context) error {
	if !s.busy.CompareAndSwap(false, true) {
		s.log.Debug(ctx, "sync already in progress, skipping")
		return nil
	}
	defer s.busy.Store(false)

	summary := Summary{At: time.Now().UTC()}

	if err := s.drainQueue(ctx, &summary); err != nil {
		s.log.Error(ctx, "sync pass failed", "error", err)
		s.events.Emit(events.SyncFailed, err.Error())
		return err
	}

	s.pushUnsynced(ctx, &summary)

	if err := s.store.SetSetting(ctx, SettingLastSyncTime, summary.At.Format(time.RFC3339)); err != nil {
		s.log.Warn(ctx, "failed to stamp last sync time", "error", err)
	}
	if removed, err := s.store.Queue().CleanupProcessed(ctx, s.cleanupAge); err != nil {
		s.log.Warn(ctx, "queue cleanup failed", "error", err)
	} else if removed > 0 {
		s.log.Debug(ctx, "cleaned up processed queue items", "removed", removed)
	}

	s.log.Info(ctx, "sync pass finished",
		"drained", summary.Drained, "failed", summary.Failed,
		"abandoned", summary.Abandoned, "pushed", summary.Pushed)
	s.events.Emit(events.SyncCompleted, summary)
	return nil
}

// Busy reports whether a pass is currently running.
func (s *Syncer) Busy() bool { return s.busy.Load() }

// drainQueue replays pending queue items in insertion order. A failing item
// gets its attempt counter bumped and is abandoned (force-processed) after
// MaxQueueAttempts. Only storage-level failures abort the phase.
func (s *Syncer) drainQueue(ctx context.Context, summary *Summary) error {
	items, err := s.store.Queue().Pending(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending queue: %w", err)
	}

	for _, item := range items {
		if err := s.dispatch(ctx, item); err != nil {
			summary.Failed++
			attempts, aerr := s.store.Queue().IncrementAttempts(ctx, item.ID)
			if aerr != nil {
				s.log.Error(ctx, "failed to record queue attempt", "item", item.ID, "error", aerr)
				continue
			}
			s.log.Warn(ctx, "queue item failed", "item", item.ID, "type", item.Type,
				"attempts", attempts, "error", err)
			if attempts >= models.MaxQueueAttempts {
				// Bounded retry: abandon the item, keep the row for inspection.
				s.log.Error(ctx, "giving up on queue item", "item", item.ID,
					"error", common.ErrSyncItemExhausted)
				summary.Abandoned++
				if perr := s.store.Queue().MarkProcessed(ctx, item.ID); perr != nil {
					s.log.Error(ctx, "failed to abandon queue item", "item", item.ID, "error", perr)
				}
			}
			continue
		}
		summary.Drained++
		if err := s.store.Queue().MarkProcessed(ctx, item.ID); err != nil {
			s.log.Error(ctx, "failed to mark queue item processed", "item", item.ID, "error", err)
		}
	}
	return nil
}

// dispatch replays one queue item against the remote API.
func (s *Syncer) dispatch(ctx context.Context, item models.QueueItem) error {
	switch item.Type {
	case models.OpAdd:
		var p addPayload
		if err := json.Unmarshal(item.Data, &p); err != nil {
			return fmt.Errorf("bad ADD payload: %w", err)
		}
		return s.replayAdd(ctx, p)
	case models.OpUpdate:
		var p updatePayload
		if err := json.Unmarshal(item.Data, &p); err != nil {
			return fmt.Errorf("bad UPDATE payload: %w", err)
		}
		if p.ServerID == "" {
			// Never confirmed by the server; the local row already carries
			// the new values and the ADD replay will push them.
			return nil
		}
		return s.api.UpdateStory(ctx, p.ServerID, p.Patch)
	case models.OpDelete:
		var p deletePayload
		if err := json.Unmarshal(item.Data, &p); err != nil {
			return fmt.Errorf("bad DELETE payload: %w", err)
		}
		if p.ServerID == "" {
			return nil
		}
		return s.api.DeleteStory(ctx, p.ServerID)
	default:
		// Unknown operations are logged and dropped, not retried.
		s.log.Warn(ctx, "unknown queue item type, marking processed",
			"item", item.ID, "type", item.Type)
		return nil
	}
}

func (s *Syncer) replayAdd(ctx context.Context, p addPayload) error {
	product, err := s.store.Products().GetByID(ctx, p.LocalID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// Deleted locally before it ever reached the server.
			s.log.Debug(ctx, "queued product no longer exists, skipping", "id", p.LocalID)
			return nil
		}
		return err
	}
	if product.Synced {
		return nil
	}

	serverID, err := s.api.CreateStory(ctx, product.Name, product.Description,
		product.Photo, product.Lat, product.Lon)
	if err != nil {
		return err
	}
	_, err = s.store.Products().MarkSynced(ctx, product.ID, serverID)
	return err
}

// pushUnsynced sweeps records with synced=false and pushes each one.
// Best-effort: failures are logged and the sweep continues.
func (s *Syncer) pushUnsynced(ctx context.Context, summary *Summary) {
	unsynced, err := s.store.Products().GetUnsynced(ctx)
	if err != nil {
		s.log.Error(ctx, "failed to load unsynced products", "error", err)
		return
	}

	for _, p := range unsynced {
		serverID, err := s.api.CreateStory(ctx, p.Name, p.Description, p.Photo, p.Lat, p.Lon)
		if err != nil {
			s.log.Warn(ctx, "failed to push unsynced product", "id", p.ID, "error", err)
			continue
		}
		if _, err := s.store.Products().MarkSynced(ctx, p.ID, serverID); err != nil {
			s.log.Error(ctx, "failed to mark product synced", "id", p.ID, "error", err)
			continue
		}
		summary.Pushed++
	}
}

type addPayload struct {
	LocalID string `json:"localId"`
}

type updatePayload struct {
	LocalID  string              `json:"localId"`
	ServerID string              `json:"serverId,omitempty"`
	Patch    models.ProductPatch `json:"patch"`
}

type deletePayload struct {
	LocalID  string `json:"localId"`
	ServerID string `json:"serverId,omitempty"`
}
