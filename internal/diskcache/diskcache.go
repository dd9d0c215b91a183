// Package diskcache provides a small BadgerDB-backed cache of file content
// digests, keyed by (path, size, mtime). It lets the vfs layer skip
// re-hashing files that have not changed since a previous process run.
//
// This cache holds only digests, never node results; the memoized node
// table itself is in-memory and process-scoped.
package diskcache

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/vk/forgegrid/internal/digest"
)

// Config holds configuration for a digest cache instance.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Useful for tests.
	InMemory bool
}

// Cache is a persistent path→digest cache. Safe for concurrent use.
type Cache struct {
	db *badger.DB
}

// Open opens (or creates) the cache at the configured location.
func Open(cfg Config) (*Cache, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	// Badger's own logging is too chatty for a cache this small.
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening digest cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// cacheKey builds the badger key for one (path, size, mtime) identity. Size
// and mtime are part of the key, not the value, so a touched file simply
// misses instead of requiring explicit invalidation.
func cacheKey(path string, size int64, modTime time.Time) []byte {
	key := make([]byte, 0, len(path)+17)
	key = append(key, path...)
	key = append(key, 0)
	key = binary.BigEndian.AppendUint64(key, uint64(size))
	key = binary.BigEndian.AppendUint64(key, uint64(modTime.UnixNano()))
	return key
}

// Lookup returns the cached digest for the identity, if present.
func (c *Cache) Lookup(path string, size int64, modTime time.Time) (digest.Digest, bool) {
	var d digest.Digest
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(path, size, modTime))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != len(d) {
				return badger.ErrKeyNotFound
			}
			copy(d[:], val)
			return nil
		})
	})
	if err != nil {
		return digest.Digest{}, false
	}
	return d, true
}

// Store records the digest for the identity.
func (c *Cache) Store(path string, size int64, modTime time.Time, d digest.Digest) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey(path, size, modTime), d[:])
	})
}
