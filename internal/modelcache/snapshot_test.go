package modelcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"stockcast/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseSnapshotStore(t *testing.T, store SnapshotStore) {
	t.Helper()
	ctx := context.Background()

	m, err := model.NewDecompositionTrainer(0.8, 7).Train("SKU/1", demand(t, 10, 30))
	require.NoError(t, err)

	exists, err := store.Exists(ctx, "SKU/1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Load(ctx, "SKU/1")
	assert.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, store.Save(ctx, "SKU/1", m))
	require.NoError(t, store.Save(ctx, "SKU/1", m)) // upsert

	exists, err = store.Exists(ctx, "SKU/1")
	require.NoError(t, err)
	assert.True(t, exists)

	loaded, err := store.Load(ctx, "SKU/1")
	require.NoError(t, err)
	assert.Equal(t, m.Fingerprint(), loaded.Fingerprint())
	assert.Equal(t, m.Predict(5), loaded.Predict(5))

	require.NoError(t, store.Save(ctx, "SKU-2", m))
	require.NoError(t, store.Delete(ctx, "SKU/1"))
	exists, _ = store.Exists(ctx, "SKU/1")
	assert.False(t, exists)
	exists, _ = store.Exists(ctx, "SKU-2")
	assert.True(t, exists)

	require.NoError(t, store.Clear(ctx))
	exists, _ = store.Exists(ctx, "SKU-2")
	assert.False(t, exists)
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	exerciseSnapshotStore(t, store)

	// Unrelated files survive Clear
	keep := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0o644))
	require.NoError(t, store.Clear(context.Background()))
	_, err = os.Stat(keep)
	assert.NoError(t, err)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLStore(BackendSQLite, filepath.Join(t.TempDir(), "models.db"))
	require.NoError(t, err)
	defer store.Close()
	exerciseSnapshotStore(t, store)
}

func TestNewSnapshotStore(t *testing.T) {
	none, err := NewSnapshotStore(BackendNone, "", "")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = NewSnapshotStore("oracle", "", "")
	assert.Error(t, err)

	fs, err := NewSnapshotStore(BackendFile, "", t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, fs)
}

func TestCorruptSnapshotIsAMiss(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKU_model.json"), []byte("{broken"), 0o644))

	trainer := newCountingTrainer(0)
	cache := New(trainer, Options{Snapshots: store})
	_, err = cache.GetOrTrain(context.Background(), "SKU", demand(t, 10, 30))
	require.NoError(t, err)
	assert.EqualValues(t, 1, trainer.calls.Load())

	// The fresh model replaced the corrupt snapshot
	loaded, err := store.Load(context.Background(), "SKU")
	require.NoError(t, err)
	assert.Equal(t, "SKU", loaded.ProductID())
}
