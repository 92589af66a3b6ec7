package database

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPutGetRoundTrip(t *testing.T) {
	db := openTestDB(t)

	value := []byte(`{"id":"dl-1","progress":0.5}`)
	require.NoError(t, db.Put([]byte("download:dl-1"), value))

	got, err := db.Get([]byte("download:dl-1"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(value, got), "compression must be transparent")
	assert.True(t, db.Has([]byte("download:dl-1")))
}

func TestGetNotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Get([]byte("missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	require.NoError(t, db.Delete([]byte("k")))
	assert.False(t, db.Has([]byte("k")))
	assert.ErrorIs(t, db.Delete([]byte("k")), ErrNotFound)
}

func TestScanPrefix(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Put([]byte("cave:1"), []byte("a")))
	require.NoError(t, db.Put([]byte("cave:2"), []byte("b")))
	require.NoError(t, db.Put([]byte("game:1"), []byte("c")))

	var keys []string
	err := db.Scan([]byte("cave:"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	for _, k := range keys {
		assert.Contains(t, k, "cave:")
	}
}
