// Package products stores catalog records in the local SQLite database.
package products

import (
	"context"

	"github.com/dmitrijs2005/shopkeeper/internal/client/models"
)

// Repository is the product collection of the local store.
//
// Contract:
//   - Add assigns a local uuid, stamps CreatedAt and the draft flags
//     (synced=false, local=true, serverId=nil).
//   - Update/MarkSynced return common.ErrNotFound when the id is absent.
//   - Delete reports whether a row was actually removed.
//   - MarkSynced flips the record to confirmed state exactly once: sets
//     Synced, ServerID and SyncedAt.
type Repository interface {
	Add(ctx context.Context, name, description string, photo []byte, lat, lon *float64) (*models.Product, error)
	Insert(ctx context.Context, p *models.Product) error
	GetAll(ctx context.Context) ([]models.Product, error)
	GetUnsynced(ctx context.Context) ([]models.Product, error)
	GetByID(ctx context.Context, id string) (*models.Product, error)
	GetByServerID(ctx context.Context, serverID string) (*models.Product, error)
	Update(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error)
	Delete(ctx context.Context, id string) (bool, error)
	MarkSynced(ctx context.Context, localID, serverID string) (*models.Product, error)
}
