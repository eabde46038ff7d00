// Package boltkv implements the kv contract on top of go.etcd.io/bbolt,
// the embedded single-file copy-on-write B+tree store this module binds
// its paged engine to. It owns the root-slot-to-bucket mapping;
// everything above package kv is unaware that bbolt exists.
package boltkv

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.etcd.io/bbolt"

	"github.com/metent/grus-lib/kv"
)

// Slot is a root-slot identifier. bbolt has no native notion of
// numbered root slots; each slot is realized as a fixed top-level
// bucket name.
type Slot int

const (
	SlotCounter Slot = iota
	SlotLinks
	SlotRLinks
	SlotNames
	SlotDueDates
	SlotSessions
	SlotRSessions
	numSlots
)

var bucketNames = [numSlots]string{
	SlotCounter:   "meta",
	SlotLinks:     "links",
	SlotRLinks:    "rlinks",
	SlotNames:     "names",
	SlotDueDates:  "duedates",
	SlotSessions:  "sessions",
	SlotRSessions: "rsessions",
}

// BucketName returns the bbolt top-level bucket backing the given slot.
func BucketName(s Slot) string { return bucketNames[s] }

// AllBucketNames returns the bucket name for every slot, counter slot
// included, in slot order.
func AllBucketNames() []string { return append([]string(nil), bucketNames[:]...) }

const pageSize = 16 * 1024

// Options configures Open beyond path and n_roots.
type Options struct {
	ReadOnly bool
	Timeout  time.Duration
	PageSize int
}

// DB wraps a *bbolt.DB to satisfy kv.RwDB. nRoots is carried only to
// keep this constructor's signature honoring the caller-provided
// root-slot count (must be >= 7); bbolt buckets need no slot count.
type DB struct {
	bdb *bbolt.DB
}

// Open opens (creating if absent) the bbolt file at path with the
// page size and timeout from opts. nRoots must be >= 7.
func Open(path string, nRoots int, opts Options) (*DB, error) {
	if nRoots < int(numSlots) {
		return nil, fmt.Errorf("boltkv: n_roots must be >= %d, got %d", numSlots, nRoots)
	}
	ps := pageSize
	if opts.PageSize > 0 {
		ps = opts.PageSize
	}
	bdb, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout:  opts.Timeout,
		ReadOnly: opts.ReadOnly,
		PageSize: ps,
	})
	if err != nil {
		return nil, err
	}
	return &DB{bdb: bdb}, nil
}

func (db *DB) Close() error { return db.bdb.Close() }

func (db *DB) BeginRo(ctx context.Context) (kv.Tx, error) {
	btx, err := db.bdb.Begin(false)
	if err != nil {
		return nil, err
	}
	return &tx{btx: btx}, nil
}

func (db *DB) BeginRw(ctx context.Context) (kv.RwTx, error) {
	btx, err := db.bdb.Begin(true)
	if err != nil {
		return nil, err
	}
	return &tx{btx: btx}, nil
}

// Stats mirrors the subset of bbolt.Stats the SPEC_FULL.md §3.3
// inspection surface renders.
type Stats struct {
	FreePageN     int
	PendingPageN  int
	TxN           int
	OpenTxN       int
}

func (db *DB) Stats() Stats {
	s := db.bdb.Stats()
	return Stats{
		FreePageN:    s.FreePageN,
		PendingPageN: s.PendingPageN,
		TxN:          s.TxN,
		OpenTxN:      s.OpenTxN,
	}
}

type tx struct {
	btx *bbolt.Tx
}

func (t *tx) Rollback() { _ = t.btx.Rollback() }

func (t *tx) Commit() error { return t.btx.Commit() }

func (t *tx) Bucket(name string) (kv.Bucket, error) {
	b := t.btx.Bucket([]byte(name))
	if b == nil {
		return nil, fmt.Errorf("boltkv: bucket %q: %w", name, os.ErrNotExist)
	}
	return &bucket{b: b}, nil
}

func (t *tx) RwBucket(name string) (kv.RwBucket, error) {
	b, err := t.btx.CreateBucketIfNotExists([]byte(name))
	if err != nil {
		return nil, err
	}
	return &bucket{b: b}, nil
}

type bucket struct {
	b *bbolt.Bucket
}

func (b *bucket) Get(key []byte) ([]byte, error) {
	v := b.b.Get(key)
	if v == nil {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (b *bucket) Put(key, value []byte) error { return b.b.Put(key, value) }

func (b *bucket) Delete(key []byte) error { return b.b.Delete(key) }

func (b *bucket) Cursor() (kv.Cursor, error) {
	return &cursor{c: b.b.Cursor()}, nil
}

func (b *bucket) RwCursor() (kv.RwCursor, error) {
	return &cursor{c: b.b.Cursor()}, nil
}

type cursor struct {
	c *bbolt.Cursor
}

func (c *cursor) First() (k, v []byte) { return c.c.First() }

func (c *cursor) Seek(prefix []byte) (k, v []byte) { return c.c.Seek(prefix) }

func (c *cursor) Next() (k, v []byte) { return c.c.Next() }

func (c *cursor) Delete() error { return c.c.Delete() }

func (c *cursor) Close() {}
