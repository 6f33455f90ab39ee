// Package storage owns the local SQLite database: connection lifecycle,
// schema migrations, the three record collections (products, sync_queue,
// user_data), and whole-store operations (clear, snapshot export/import).
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/shopkeeper/internal/client/models"
	"github.com/dmitrijs2005/shopkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/shopkeeper/internal/client/repositories/products"
	"github.com/dmitrijs2005/shopkeeper/internal/client/repositories/queue"
	"github.com/dmitrijs2005/shopkeeper/internal/client/storage/migrations"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/dbx"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// Store is the local persistent store. Obtain one via Open; concurrent
// Open calls with the same DSN share a single handle.
type Store struct {
	db  *sql.DB
	dsn string

	products *products.SQLiteRepository
	queue    *queue.SQLiteRepository
	metadata *metadata.SQLiteRepository
}

var (
	openMu sync.Mutex
	opened = make(map[string]*Store)
)

// Open opens (or reuses) the store at dsn and runs pending migrations.
// The first caller per DSN opens the connection; later callers get the
// same handle until Close is called.
func Open(ctx context.Context, dsn string) (*Store, error) {
	openMu.Lock()
	defer openMu.Unlock()

	if s, ok := opened[dsn]; ok {
		return s, nil
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", common.ErrStorage, dsn, err)
	}
	// modernc sqlite misbehaves with concurrent writers on one file.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrations: %v", common.ErrStorage, err)
	}

	s := &Store{
		db:       db,
		dsn:      dsn,
		products: products.NewSQLiteRepository(db),
		queue:    queue.NewSQLiteRepository(db),
		metadata: metadata.NewSQLiteRepository(db),
	}
	opened[dsn] = s
	return s, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// Close tears the shared handle down. The next Open for the same DSN
// reopens the database.
func (s *Store) Close() error {
	openMu.Lock()
	defer openMu.Unlock()
	delete(opened, s.dsn)
	return s.db.Close()
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Products() products.Repository { return s.products }
func (s *Store) Queue() queue.Repository       { return s.queue }
func (s *Store) Metadata() metadata.Repository { return s.metadata }

// GetSetting unmarshals the setting stored under key into dst.
// Returns false when the key is absent.
func (s *Store) GetSetting(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := s.metadata.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode setting %s: %w", key, err)
	}
	return true, nil
}

// SetSetting stores value under key as JSON. Last write wins.
func (s *Store) SetSetting(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode setting %s: %w", key, err)
	}
	return s.metadata.Set(ctx, key, raw)
}

// ClearAll wipes all three collections in one transaction.
func (s *Store) ClearAll(ctx context.Context) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, table := range []string{"products", "sync_queue", "user_data"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("%w: clear %s: %v", common.ErrStorage, table, err)
			}
		}
		return nil
	})
}

// Snapshot is a portable dump of the store contents.
type Snapshot struct {
	Products []models.Product           `json:"products"`
	Queue    []models.QueueItem         `json:"queue"`
	Settings map[string]json.RawMessage `json:"settings"`
}

// ExportSnapshot dumps products, queue items and settings.
func (s *Store) ExportSnapshot(ctx context.Context) (*Snapshot, error) {
	prods, err := s.products.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.queue.All(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := s.metadata.All(ctx)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Products: prods,
		Queue:    items,
		Settings: make(map[string]json.RawMessage, len(settings)),
	}
	for k, v := range settings {
		snap.Settings[k] = json.RawMessage(v)
	}
	return snap, nil
}

// ImportSnapshot clears the store and replays the snapshot's adds inside a
// single transaction. Product ids and sync flags are preserved; queue items
// get fresh store-assigned ids.
func (s *Store) ImportSnapshot(ctx context.Context, snap *Snapshot) error {
	if err := s.ClearAll(ctx); err != nil {
		return err
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		prodRepo := products.NewSQLiteRepository(tx)
		queueRepo := queue.NewSQLiteRepository(tx)
		metaRepo := metadata.NewSQLiteRepository(tx)

		for i := range snap.Products {
			if err := prodRepo.Insert(ctx, &snap.Products[i]); err != nil {
				return err
			}
		}
		for i := range snap.Queue {
			if _, err := queueRepo.Insert(ctx, &snap.Queue[i]); err != nil {
				return err
			}
		}
		for k, v := range snap.Settings {
			if err := metaRepo.Set(ctx, k, []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
}
