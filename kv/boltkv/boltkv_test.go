package boltkv_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/metent/grus-lib/kv/boltkv"
)

func TestOpen_RejectsTooFewRoots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.db")
	_, err := boltkv.Open(path, 1, boltkv.Options{})
	require.Error(t, err)
}

func TestRwBucket_PutGetDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.db")
	db, err := boltkv.Open(path, 7, boltkv.Options{})
	require.NoError(t, err)
	defer db.Close()

	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)

	b, err := tx.RwBucket(boltkv.BucketName(boltkv.SlotNames))
	require.NoError(t, err)
	require.NoError(t, b.Put([]byte("k"), []byte("v")))

	v, err := b.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)

	require.NoError(t, b.Delete([]byte("k")))
	v, err = b.Get([]byte("k"))
	require.NoError(t, err)
	require.Nil(t, v)

	require.NoError(t, tx.Commit())
}

func TestBucket_MissingReturnsNotExist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.db")
	db, err := boltkv.Open(path, 7, boltkv.Options{})
	require.NoError(t, err)
	defer db.Close()

	tx, err := db.BeginRo(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.Bucket("nonexistent")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestCursor_SeekAndNext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.db")
	db, err := boltkv.Open(path, 7, boltkv.Options{})
	require.NoError(t, err)
	defer db.Close()

	tx, err := db.BeginRw(context.Background())
	require.NoError(t, err)
	b, err := tx.RwBucket(boltkv.BucketName(boltkv.SlotNames))
	require.NoError(t, err)
	require.NoError(t, b.Put([]byte("a"), []byte("1")))
	require.NoError(t, b.Put([]byte("b"), []byte("2")))
	require.NoError(t, b.Put([]byte("c"), []byte("3")))
	require.NoError(t, tx.Commit())

	tx, err = db.BeginRo(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	b2, err := tx.Bucket(boltkv.BucketName(boltkv.SlotNames))
	require.NoError(t, err)
	c, err := b2.Cursor()
	require.NoError(t, err)
	defer c.Close()

	k, v := c.Seek([]byte("b"))
	require.Equal(t, []byte("b"), k)
	require.Equal(t, []byte("2"), v)

	k, v = c.Next()
	require.Equal(t, []byte("c"), k)
	require.Equal(t, []byte("3"), v)

	k, _ = c.Next()
	require.Nil(t, k)
}

func TestStats_ReportsNonNegativeCounters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.db")
	db, err := boltkv.Open(path, 7, boltkv.Options{})
	require.NoError(t, err)
	defer db.Close()

	s := db.Stats()
	require.GreaterOrEqual(t, s.TxN, 0)
	require.GreaterOrEqual(t, s.FreePageN, 0)
}
