package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/larder/internal/apperrors"
	"github.com/mmynk/larder/internal/storage"
	"github.com/mmynk/larder/internal/storage/storagetest"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := New(dbPath, 3)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return newTestStore(t)
	})
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "larder.db")
	ctx := context.Background()

	store, err := New(dbPath, 0)
	require.NoError(t, err)
	assert.Equal(t, storage.DefaultMaxBatchSize, store.MaxBatchSize())
	require.NoError(t, store.Set(ctx, storage.Households, "h1", map[string]any{
		"uid":       "h1",
		"name":      "Flat 3B",
		"ratPoints": map[string]any{"alice": 2},
	}, false))
	require.NoError(t, store.Close())

	reopened, err := New(dbPath, 0)
	require.NoError(t, err)
	defer reopened.Close()

	doc, err := reopened.Get(ctx, storage.Households, "h1")
	require.NoError(t, err)
	assert.Equal(t, "Flat 3B", doc.Fields["name"])
	v, _ := storage.GetPath(doc.Fields, "ratPoints.alice")
	assert.Equal(t, 2.0, v)
}

func TestSQLiteStore_CorruptBody(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.db.Exec(
		"INSERT INTO documents (collection, id, body, updated_at) VALUES (?, ?, ?, ?)",
		storage.Users, "bad", "{not json", 0,
	)
	require.NoError(t, err)

	_, err = store.Get(ctx, storage.Users, "bad")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestSQLiteStore_NonStringFilterFallsBackToScan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, storage.FoodItems("h1"), "f1", map[string]any{"uid": "f1", "count": 2}, false))
	require.NoError(t, store.Set(ctx, storage.FoodItems("h1"), "f2", map[string]any{"uid": "f2", "count": 3}, false))

	docs, err := store.List(ctx, storage.FoodItems("h1"), storage.Filter{Field: "count", Op: storage.OpEqual, Value: 3})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "f2", docs[0].ID)
}

func TestRepeatPlaceholder(t *testing.T) {
	assert.Equal(t, "", repeatPlaceholder(0))
	assert.Equal(t, ", ?, ?", repeatPlaceholder(2))
}
