// Package intercept is the fetch interception layer: a caching proxy that
// sits between the application and the network, runs as an independent
// actor, and applies one of three caching strategies per request class.
package intercept

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// CacheVersion names the current cache generation. Bumping it makes the
// activation step drop every partition of the previous generation.
const CacheVersion = 1

// Partition base names. The versioned partition name is what activation
// recognizes; anything else is deleted.
const (
	partStatic = "static"
	partAPI    = "api"
	partImages = "images"
)

func partitionName(base string) string {
	return fmt.Sprintf("%s-v%d", base, CacheVersion)
}

func recognizedPartitions() []string {
	return []string{partitionName(partStatic), partitionName(partAPI), partitionName(partImages)}
}

// CachedResponse is the stored form of one cached exchange.
type CachedResponse struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"storedAt"`
}

// PartitionStatus is the per-partition part of a GET_CACHE_STATUS reply.
type PartitionStatus struct {
	Name    string   `json:"name"`
	Entries int      `json:"entries"`
	Sample  []string `json:"sample"`
}

const keySep = "\x00"

// CacheStore persists cache partitions in badger. Entries are keyed by
// partition name plus request identity (method + URL, GET only in practice).
type CacheStore struct {
	db *badger.DB
}

// OpenCache opens the badger-backed store at dir; an empty dir means a
// purely in-memory cache (used by tests and as a fallback).
func OpenCache(dir string) (*CacheStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}
	return &CacheStore{db: db}, nil
}

func (c *CacheStore) Close() error { return c.db.Close() }

func cacheKey(partition, requestKey string) []byte {
	return []byte(partition + keySep + requestKey)
}

func (c *CacheStore) Put(partition, requestKey string, resp *CachedResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey(partition, requestKey), raw)
	})
}

// Get returns the entry for the exact request key, or ok=false on a miss.
func (c *CacheStore) Get(partition, requestKey string) (*CachedResponse, bool, error) {
	var resp CachedResponse
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(partition, requestKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &resp)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &resp, true, nil
}

// DropPartition deletes every entry of the named partition.
func (c *CacheStore) DropPartition(name string) error {
	prefix := []byte(name + keySep)
	return c.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Partitions lists the distinct partition names currently present.
func (c *CacheStore) Partitions() ([]string, error) {
	seen := map[string]struct{}{}
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			if idx := strings.Index(key, keySep); idx > 0 {
				seen[key[:idx]] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	return names, nil
}

// Status reports entry count and up to sampleLimit request keys.
func (c *CacheStore) Status(partition string, sampleLimit int) (PartitionStatus, error) {
	st := PartitionStatus{Name: partition}
	prefix := []byte(partition + keySep)
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			st.Entries++
			if len(st.Sample) < sampleLimit {
				st.Sample = append(st.Sample, strings.TrimPrefix(string(it.Item().Key()), partition+keySep))
			}
		}
		return nil
	})
	return st, err
}
