package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/client/models"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
)

// ProductView is a product formatted for display, independent of whether it
// came from the live API or the local store.
type ProductView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PhotoURL    string    `json:"photoUrl,omitempty"`
	Lat         *float64  `json:"lat"`
	Lon         *float64  `json:"lon"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ListResult wraps a product listing; Offline marks data served from the
// local store instead of the live API.
type ListResult struct {
	Items   []ProductView `json:"items"`
	Offline bool          `json:"offline"`
}

// GetProducts is the read path. Online: live fetch, opportunistically cache
// server records we have not seen, return the live list. On any failure
// (including being offline) it degrades to the locally-synced records with
// Offline set. It never returns an error; total failure yields an empty
// offline result.
func (s *Syncer) GetProducts(ctx context.Context) ListResult {
	if s.api.Online() {
		env, err := s.api.ListStories(ctx)
		if err == nil && !env.Offline {
			s.cacheServerRecords(ctx, env.Data.ListStory)
			views := make([]ProductView, 0, len(env.Data.ListStory))
			for _, rec := range env.Data.ListStory {
				views = append(views, ProductView{
					ID:          rec.ID,
					Name:        rec.Name,
					Description: rec.Description,
					PhotoURL:    rec.PhotoURL,
					Lat:         rec.Lat,
					Lon:         rec.Lon,
					CreatedAt:   rec.CreatedAt,
				})
			}
			return ListResult{Items: views}
		}
		if err != nil {
			s.log.Warn(ctx, "live fetch failed, serving local data", "error", err)
		}
	}

	return s.localProducts(ctx)
}

// localProducts serves the offline read path: only records previously
// confirmed by the server. Unsynced local drafts are excluded here.
func (s *Syncer) localProducts(ctx context.Context) ListResult {
	all, err := s.store.Products().GetAll(ctx)
	if err != nil {
		s.log.Error(ctx, "local read failed", "error", err)
		return ListResult{Items: []ProductView{}, Offline: true}
	}

	views := make([]ProductView, 0, len(all))
	for _, p := range all {
		if !p.Synced {
			continue
		}
		id := p.ID
		if p.ServerID != nil {
			id = *p.ServerID
		}
		views = append(views, ProductView{
			ID:          id,
			Name:        p.Name,
			Description: p.Description,
			Lat:         p.Lat,
			Lon:         p.Lon,
			CreatedAt:   p.CreatedAt,
		})
	}
	return ListResult{Items: views, Offline: true}
}

// cacheServerRecords inserts server records that have no local counterpart
// (matched by serverId). Best-effort.
func (s *Syncer) cacheServerRecords(ctx context.Context, records []models.StoryRecord) {
	for _, rec := range records {
		_, err := s.store.Products().GetByServerID(ctx, rec.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, common.ErrNotFound) {
			s.log.Warn(ctx, "failed to look up cached record", "serverId", rec.ID, "error", err)
			continue
		}

		serverID := rec.ID
		p := models.Product{
			ID:          rec.ID,
			ServerID:    &serverID,
			Name:        rec.Name,
			Description: rec.Description,
			Lat:         rec.Lat,
			Lon:         rec.Lon,
			CreatedAt:   rec.CreatedAt,
			Synced:      true,
			Local:       false,
		}
		now := time.Now().UTC()
		p.SyncedAt = &now
		if err := s.store.Products().Insert(ctx, &p); err != nil {
			s.log.Warn(ctx, "failed to cache server record", "serverId", rec.ID, "error", err)
		}
	}
}

// AddProduct is the optimistic write path: commit locally, enqueue the
// replay task, and, only when online, run one best-effort sync pass whose
// failure is swallowed (the item stays queued for the next pass).
func (s *Syncer) AddProduct(ctx context.Context, name, description string, photo []byte, lat, lon *float64) (*models.Product, error) {
	product, err := s.store.Products().Add(ctx, name, description, photo, lat, lon)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.Queue().Enqueue(ctx, models.OpAdd, addPayload{LocalID: product.ID}); err != nil {
		return nil, err
	}

	if s.api.Online() {
		if err := s.SyncNow(ctx); err != nil {
			s.log.Warn(ctx, "immediate sync after add failed", "error", err)
		}
		// The row may have been confirmed by the immediate pass.
		if fresh, err := s.store.Products().GetByID(ctx, product.ID); err == nil {
			product = fresh
		}
	}
	return product, nil
}

// UpdateProduct patches the local record and queues the remote update.
func (s *Syncer) UpdateProduct(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error) {
	updated, err := s.store.Products().Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	payload := updatePayload{LocalID: id, Patch: patch}
	if updated.ServerID != nil {
		payload.ServerID = *updated.ServerID
	}
	if _, err := s.store.Queue().Enqueue(ctx, models.OpUpdate, payload); err != nil {
		return nil, err
	}

	if s.api.Online() {
		if err := s.SyncNow(ctx); err != nil {
			s.log.Warn(ctx, "immediate sync after update failed", "error", err)
		}
	}
	return updated, nil
}

// DeleteProduct removes the local record and queues the remote delete.
func (s *Syncer) DeleteProduct(ctx context.Context, id string) (bool, error) {
	product, err := s.store.Products().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	removed, err := s.store.Products().Delete(ctx, id)
	if err != nil {
		return false, err
	}

	payload := deletePayload{LocalID: id}
	if product.ServerID != nil {
		payload.ServerID = *product.ServerID
	}
	if _, err := s.store.Queue().Enqueue(ctx, models.OpDelete, payload); err != nil {
		return removed, err
	}

	if s.api.Online() {
		if err := s.SyncNow(ctx); err != nil {
			s.log.Warn(ctx, "immediate sync after delete failed", "error", err)
		}
	}
	return removed, nil
}
