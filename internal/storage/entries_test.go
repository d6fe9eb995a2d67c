package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/berfenger/virtualdevices/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T) *SQLiteEntryStore {
	db, err := Open(context.Background(), MEMORY_PATH, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteEntryStore(db)
}

func TestEntryLifecycle(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	store := openTestStore(t)

	entry, err := store.CreateEntry(ctx, "Garage", domain.EntryData{Manufacturer: "ACME", Model: "M1"})
	require.NoError(t, err)
	assert.Len(entry.EntryId, 32)
	assert.NotNil(entry.Data.Entities)

	rec := domain.NewEntityRecord("gpio", domain.PLATFORM_SWITCH)
	rec.Data["gpioline"] = "17"
	rec.Data["repeat"] = 2.0
	data := entry.Data
	data.Entities = append(data.Entities, rec)
	require.NoError(t, store.UpdateEntryData(ctx, entry.EntryId, data))

	got, err := store.GetEntry(ctx, entry.EntryId)
	require.NoError(t, err)
	assert.Equal("Garage", got.Title)
	assert.Equal(data, got.Data)
	assert.False(got.UpdatedAt.Before(got.CreatedAt))

	entries, err := store.ListEntries(ctx)
	require.NoError(t, err)
	assert.Len(entries, 1)

	require.NoError(t, store.DeleteEntry(ctx, entry.EntryId))
	_, err = store.GetEntry(ctx, entry.EntryId)
	assert.ErrorIs(err, ErrEntryNotFound)
	assert.ErrorIs(store.DeleteEntry(ctx, entry.EntryId), ErrEntryNotFound)
	assert.ErrorIs(store.UpdateEntryData(ctx, entry.EntryId, data), ErrEntryNotFound)
}

func TestImportReplaces(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	store := openTestStore(t)

	imported, err := store.ImportEntry(ctx, domain.DeviceEntry{EntryId: "fixed", Title: "One"})
	require.NoError(t, err)
	assert.Equal("fixed", imported.EntryId)

	_, err = store.ImportEntry(ctx, domain.DeviceEntry{EntryId: "fixed", Title: "Two"})
	require.NoError(t, err)

	entries, err := store.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal("Two", entries[0].Title)
	assert.Empty(entries[0].Data.Entities)
}

func TestOpenFileMigratesOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "virtdev.db")

	db, err := Open(ctx, path, zap.NewNop())
	require.NoError(t, err)
	store := NewSQLiteEntryStore(db)
	_, err = store.CreateEntry(ctx, "Kept", domain.EntryData{})
	require.NoError(t, err)
	require.NoError(t, db.HealthCheck(ctx))
	db.Close()

	db, err = Open(ctx, path, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()
	applied, err := db.migrate(ctx)
	require.NoError(t, err)
	assert.Zero(t, applied)

	entries, err := NewSQLiteEntryStore(db).ListEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
