// Package kv declares the paged-store contract package grus is built on:
// an environment bound to a path, read snapshots, a single exclusive
// write transaction, and byte-ordered buckets with cursors. It mirrors
// the shape of github.com/erigontech/erigon-lib/kv (kv.Tx, kv.RwTx,
// kv.Cursor); package grus reads and writes its indices through these
// interfaces, but still imports kv/boltkv directly to open the store
// and to name the root-slot buckets. kv/boltkv is the only
// implementation shipped here.
package kv

import "context"

// Cursor walks a bucket's keys in byte-lexicographic order.
type Cursor interface {
	First() (k, v []byte)
	Seek(prefix []byte) (k, v []byte)
	Next() (k, v []byte)
	Close()
}

// RwCursor additionally allows deleting the entry the cursor last
// returned. Package grus does not use it: it drains a node's Sessions
// entries through Bucket lookups and RwBucket.Delete.
type RwCursor interface {
	Cursor
	Delete() error
}

// Bucket is a read-only view of one named table within a transaction.
type Bucket interface {
	Get(key []byte) ([]byte, error)
	Cursor() (Cursor, error)
}

// RwBucket is a Bucket open for mutation within a write transaction.
type RwBucket interface {
	Bucket
	Put(key, value []byte) error
	Delete(key []byte) error
	RwCursor() (RwCursor, error)
}

// Tx is a read snapshot: a consistent view fixed at construction and
// valid until Rollback.
type Tx interface {
	Bucket(name string) (Bucket, error)
	Rollback()
}

// RwTx is the single exclusive write transaction.
type RwTx interface {
	Tx
	RwBucket(name string) (RwBucket, error)
	Commit() error
}

// RoDB opens read (snapshot) transactions. Any number may coexist.
type RoDB interface {
	BeginRo(ctx context.Context) (Tx, error)
	Close() error
}

// RwDB additionally opens the single exclusive write transaction.
type RwDB interface {
	RoDB
	BeginRw(ctx context.Context) (RwTx, error)
}
