package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmathey/finahack/internal/infra/memory"
	"github.com/nmathey/finahack/internal/platform/history"
	"github.com/nmathey/finahack/internal/platform/holdings"
)

func TestCacheStore_StartsEmpty(t *testing.T) {
	cache, err := memory.NewCacheStore().Load(context.Background())
	require.NoError(t, err)
	assert.True(t, cache.Empty())
}

func TestCacheStore_SaveCopies(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCacheStore()

	assets := []holdings.NormalizedAsset{{ID: "1", Name: "Bitcoin"}}
	require.NoError(t, store.Save(ctx, &holdings.Cache{Assets: assets, LastRefresh: time.Now()}))
	assets[0].Name = "changed"

	cache, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bitcoin", cache.Assets[0].Name)

	cache.Assets[0].Name = "changed again"
	again, _ := store.Load(ctx)
	assert.Equal(t, "Bitcoin", again.Assets[0].Name)
}

func TestHistoryStore_ListIsChronological(t *testing.T) {
	ctx := context.Background()
	store := memory.NewHistoryStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	late := history.NewSnapshot(base.Add(time.Hour), nil)
	early := history.NewSnapshot(base, nil)
	require.NoError(t, store.Append(ctx, late))
	require.NoError(t, store.Append(ctx, early))
	require.NoError(t, store.Append(ctx, early))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, early.ID, list[0].ID)
	assert.Equal(t, late.ID, list[1].ID)
}

func TestHistoryStore_DeleteBefore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewHistoryStore()
	cutoff := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, history.NewSnapshot(cutoff.Add(-time.Nanosecond), nil)))
	require.NoError(t, store.Append(ctx, history.NewSnapshot(cutoff, nil)))

	deleted, err := store.DeleteBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	list, _ := store.List(ctx)
	require.Len(t, list, 1)
	assert.True(t, cutoff.Equal(list[0].Timestamp))
}
