// Package queue stores the write-behind queue that the reconciliation
// engine drains in insertion order.
package queue

import (
	"context"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/client/models"
)

// Repository is the sync_queue collection of the local store.
//
// Contract:
//   - Enqueue serializes data to JSON and stamps the insertion time.
//   - Pending returns unprocessed items in insertion order (FIFO).
//   - IncrementAttempts returns the new attempt count; attempts only grow
//     while the item is unprocessed.
//   - CleanupProcessed removes processed items older than the given age.
type Repository interface {
	Enqueue(ctx context.Context, op models.QueueOp, data any) (int64, error)
	Pending(ctx context.Context) ([]models.QueueItem, error)
	All(ctx context.Context) ([]models.QueueItem, error)
	MarkProcessed(ctx context.Context, id int64) error
	IncrementAttempts(ctx context.Context, id int64) (int, error)
	CleanupProcessed(ctx context.Context, olderThan time.Duration) (int64, error)
}
