package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/client/models"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, op models.QueueOp, data any) (int64, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize queue payload: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_queue (type, data, timestamp, processed, attempts) VALUES (?, ?, ?, 0, 0)`,
		string(op), payload, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: failed to enqueue %s: %v", common.ErrStorage, op, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return id, nil
}

// Insert writes a queue row preserving its processed/attempts state but not
// its id. Used by snapshot import.
func (r *SQLiteRepository) Insert(ctx context.Context, item *models.QueueItem) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_queue (type, data, timestamp, processed, attempts) VALUES (?, ?, ?, ?, ?)`,
		string(item.Type), []byte(item.Data), item.Timestamp, item.Processed, item.Attempts)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to insert queue item: %v", common.ErrStorage, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return id, nil
}

func (r *SQLiteRepository) Pending(ctx context.Context) ([]models.QueueItem, error) {
	return r.query(ctx, `SELECT id, type, data, timestamp, processed, attempts
		FROM sync_queue WHERE processed = 0 ORDER BY id`)
}

func (r *SQLiteRepository) All(ctx context.Context) ([]models.QueueItem, error) {
	return r.query(ctx, `SELECT id, type, data, timestamp, processed, attempts
		FROM sync_queue ORDER BY id`)
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]models.QueueItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to select queue items: %v", common.ErrStorage, err)
	}
	defer rows.Close()

	var result []models.QueueItem
	for rows.Next() {
		var item models.QueueItem
		var op string
		var data []byte
		if err := rows.Scan(&item.ID, &op, &data, &item.Timestamp, &item.Processed, &item.Attempts); err != nil {
			return nil, fmt.Errorf("%w: failed to scan queue item: %v", common.ErrStorage, err)
		}
		item.Type = models.QueueOp(op)
		item.Data = json.RawMessage(data)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return result, nil
}

func (r *SQLiteRepository) MarkProcessed(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sync_queue SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: failed to mark queue item %d processed: %v", common.ErrStorage, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	if n == 0 {
		return fmt.Errorf("queue item %d: %w", id, common.ErrNotFound)
	}
	return nil
}

// IncrementAttempts bumps the attempt counter of an unprocessed item and
// returns the new value.
func (r *SQLiteRepository) IncrementAttempts(ctx context.Context, id int64) (int, error) {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue SET attempts = attempts + 1 WHERE id = ? AND processed = 0`, id)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to increment attempts for %d: %v", common.ErrStorage, id, err)
	}

	var attempts int
	err = r.db.QueryRowContext(ctx, `SELECT attempts FROM sync_queue WHERE id = ?`, id).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("queue item %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return attempts, nil
}

func (r *SQLiteRepository) CleanupProcessed(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM sync_queue WHERE processed = 1 AND timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to clean up queue: %v", common.ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return n, nil
}
