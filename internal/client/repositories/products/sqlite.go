package products

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/client/models"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/dbx"
	"github.com/google/uuid"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const productColumns = `id, server_id, name, description, photo, lat, lon, created_at, synced_at, synced, local`

func (r *SQLiteRepository) Add(ctx context.Context, name, description string, photo []byte, lat, lon *float64) (*models.Product, error) {
	p := &models.Product{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Photo:       photo,
		Lat:         lat,
		Lon:         lon,
		CreatedAt:   time.Now().UTC(),
		Synced:      false,
		Local:       true,
	}
	if err := r.Insert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Insert writes a fully-formed product row as-is. Used by Add and by
// snapshot import, which must preserve ids and sync flags.
func (r *SQLiteRepository) Insert(ctx context.Context, p *models.Product) error {
	query := `INSERT INTO products (id, server_id, name, description, photo, lat, lon, created_at, synced_at, synced, local)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.ServerID, p.Name, p.Description, p.Photo, p.Lat, p.Lon,
		p.CreatedAt, p.SyncedAt, p.Synced, p.Local)
	if err != nil {
		return fmt.Errorf("%w: failed to insert product: %v", common.ErrStorage, err)
	}
	return nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.Product, error) {
	return r.query(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at`)
}

func (r *SQLiteRepository) GetUnsynced(ctx context.Context) ([]models.Product, error) {
	return r.query(ctx, `SELECT `+productColumns+` FROM products WHERE synced = 0 ORDER BY created_at`)
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]models.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to select products: %v", common.ErrStorage, err)
	}
	defer rows.Close()

	var result []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return result, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	return scanProductRow(row)
}

func (r *SQLiteRepository) GetByServerID(ctx context.Context, serverID string) (*models.Product, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE server_id = ?`, serverID)
	return scanProductRow(row)
}

func (r *SQLiteRepository) Update(ctx context.Context, id string, patch models.ProductPatch) (*models.Product, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		current.Name = *patch.Name
	}
	if patch.Description != nil {
		current.Description = *patch.Description
	}
	if patch.Photo != nil {
		current.Photo = patch.Photo
	}
	if patch.Lat != nil {
		current.Lat = patch.Lat
	}
	if patch.Lon != nil {
		current.Lon = patch.Lon
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE products SET name = ?, description = ?, photo = ?, lat = ?, lon = ? WHERE id = ?`,
		current.Name, current.Description, current.Photo, current.Lat, current.Lon, id)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to update product %s: %v", common.ErrStorage, id, err)
	}
	return current, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("%w: failed to delete product %s: %v", common.ErrStorage, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, localID, serverID string) (*models.Product, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE products SET synced = 1, local = 0, server_id = ?, synced_at = ? WHERE id = ?`,
		serverID, now, localID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to mark product %s synced: %v", common.ErrStorage, localID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("product %s: %w", localID, common.ErrNotFound)
	}
	return r.GetByID(ctx, localID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProductRow(row *sql.Row) (*models.Product, error) {
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return p, err
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	var serverID sql.NullString
	var lat, lon sql.NullFloat64
	var syncedAt sql.NullTime

	err := row.Scan(&p.ID, &serverID, &p.Name, &p.Description, &p.Photo,
		&lat, &lon, &p.CreatedAt, &syncedAt, &p.Synced, &p.Local)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: failed to scan product: %v", common.ErrStorage, err)
	}

	if serverID.Valid {
		p.ServerID = &serverID.String
	}
	if lat.Valid {
		p.Lat = &lat.Float64
	}
	if lon.Valid {
		p.Lon = &lon.Float64
	}
	if syncedAt.Valid {
		t := syncedAt.Time
		p.SyncedAt = &t
	}
	return &p, nil
}
