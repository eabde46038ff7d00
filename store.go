package grus

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/metent/grus-lib/kv"
	"github.com/metent/grus-lib/kv/boltkv"
)

// rootName is the name of the node with id 0.
const rootName = "/"

type config struct {
	readOnly bool
	timeout  time.Duration
	pageSize int
}

// Option configures Open.
type Option func(*config)

// WithReadOnly opens the store without attempting to create or repair
// its schema; Open fails if the schema is not already fully present.
func WithReadOnly() Option { return func(c *config) { c.readOnly = true } }

// WithTimeout bounds how long Open waits to acquire the file lock bbolt
// takes on the database file.
func WithTimeout(d time.Duration) Option { return func(c *config) { c.timeout = d } }

// WithPageSize overrides the default 16 KiB page size, for tests that
// want a smaller page to exercise page-split paths.
func WithPageSize(n int) Option { return func(c *config) { c.pageSize = n } }

// Store is the environment bound to one database file. It is safe to
// derive any number of concurrent Readers from a Store; at most one
// Writer may be open at a time.
type Store struct {
	db kv.RwDB
}

// Open opens the store at path, bootstrapping the schema if the file
// is freshly created, and verifying it otherwise. nRoots must be >= 7
// (the counter plus the six indices); it is accepted for
// interface-compatibility with the root-slot table described in
// SPEC_FULL.md but is not otherwise consumed by the bbolt binding.
func Open(path string, nRoots int, opts ...Option) (*Store, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	db, err := boltkv.Open(path, nRoots, boltkv.Options{
		ReadOnly: cfg.readOnly,
		Timeout:  cfg.timeout,
		PageSize: cfg.pageSize,
	})
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.bootstrap(context.Background(), cfg.readOnly); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying file and lock.
func (s *Store) Close() error { return s.db.Close() }

// bootstrap: if all seven roots are present, verify and return; if
// all seven are absent, create the schema; any other mix is reported
// as corrupted and never repaired.
func (s *Store) bootstrap(ctx context.Context, readOnly bool) error {
	if readOnly {
		tx, err := s.db.BeginRo(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		present, err := slotsPresent(tx)
		if err != nil {
			return err
		}
		if present != numAllPresent {
			return corruptedf("grus: open: schema not fully present")
		}
		return nil
	}

	tx, err := s.db.BeginRw(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	present, err := slotsPresent(tx)
	if err != nil {
		return err
	}
	switch present {
	case numAllPresent:
		return nil
	case 0:
		return createSchema(tx)
	default:
		return corruptedf("grus: open: partial schema (%d/%d roots present)", present, numAllPresent)
	}
}

const numAllPresent = 7

// slotsPresent counts how many of the seven root slots already exist.
// The counter slot additionally requires its "counter" key to be set,
// since the meta bucket existing without it is itself a partial state.
func slotsPresent(tx kv.Tx) (int, error) {
	n := 0
	for _, slot := range []boltkv.Slot{
		boltkv.SlotCounter, boltkv.SlotLinks, boltkv.SlotRLinks,
		boltkv.SlotNames, boltkv.SlotDueDates, boltkv.SlotSessions, boltkv.SlotRSessions,
	} {
		ok, err := slotPresent(tx, slot)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func slotPresent(tx kv.Tx, slot boltkv.Slot) (bool, error) {
	b, err := tx.Bucket(boltkv.BucketName(slot))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if slot == boltkv.SlotCounter {
		v, err := b.Get(counterKey)
		if err != nil {
			return false, err
		}
		return v != nil, nil
	}
	return true, nil
}

var counterKey = []byte("counter")

// createSchema implements the "all seven absent" branch of bootstrap:
// create each index, seed Names[0]="/", set the counter to 1, and
// commit.
func createSchema(tx kv.RwTx) error {
	for _, slot := range []boltkv.Slot{
		boltkv.SlotLinks, boltkv.SlotRLinks, boltkv.SlotNames,
		boltkv.SlotDueDates, boltkv.SlotSessions, boltkv.SlotRSessions,
	} {
		if _, err := tx.RwBucket(boltkv.BucketName(slot)); err != nil {
			return err
		}
	}
	names, err := tx.RwBucket(boltkv.BucketName(boltkv.SlotNames))
	if err != nil {
		return err
	}
	if err := names.Put(encodeU64(0), []byte(rootName)); err != nil {
		return err
	}
	meta, err := tx.RwBucket(boltkv.BucketName(boltkv.SlotCounter))
	if err != nil {
		return err
	}
	if err := meta.Put(counterKey, encodeU64(1)); err != nil {
		return err
	}
	return tx.Commit()
}

// Reader opens a new snapshot transaction. Any number may coexist with
// each other and with the single Writer; readers constructed before a
// commit continue to observe the pre-commit state.
func (s *Store) Reader(ctx context.Context) (*Reader, error) {
	tx, err := s.db.BeginRo(ctx)
	if err != nil {
		return nil, err
	}
	return newReader(tx)
}

// Writer opens the single exclusive write transaction. The underlying
// engine's policy governs what happens if one is already open.
func (s *Store) Writer(ctx context.Context) (*Writer, error) {
	tx, err := s.db.BeginRw(ctx)
	if err != nil {
		return nil, err
	}
	return newWriter(tx)
}
