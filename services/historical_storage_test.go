package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutBatchMergesByKey(t *testing.T) {
	storage := NewMemoryHistoricalStorage()
	ctx := context.Background()

	require.NoError(t, storage.PutBatch(ctx, 1, "2024-01-01", []StatsRecord{
		{Dimension: "", Visitors: 100, Pageviews: 300, Sessions: 120, BounceRate: 42.5, ImportJobID: "job-1"},
		{Dimension: "page:/pricing", Pageviews: 80, Visitors: 60, ImportJobID: "job-1"},
	}))

	// Same day, same keys, second import run.
	require.NoError(t, storage.PutBatch(ctx, 1, "2024-01-01", []StatsRecord{
		{Dimension: "", Visitors: 50, Pageviews: 100, Sessions: 30, ImportJobID: "job-2"},
	}))

	overview, ok := storage.Get(1, "2024-01-01", "")
	require.True(t, ok)
	assert.Equal(t, int64(150), overview.Visitors)
	assert.Equal(t, int64(400), overview.Pageviews)
	assert.Equal(t, int64(150), overview.Sessions)
	assert.Equal(t, 42.5, overview.BounceRate)
	assert.Equal(t, "job-2", overview.ImportJobID)

	pages, ok := storage.Get(1, "2024-01-01", "page:/pricing")
	require.True(t, ok)
	assert.Equal(t, int64(80), pages.Pageviews)
	assert.Equal(t, "job-1", pages.ImportJobID)
}

func TestPutBatchKeysAreIndependent(t *testing.T) {
	storage := NewMemoryHistoricalStorage()
	ctx := context.Background()

	require.NoError(t, storage.PutBatch(ctx, 1, "2024-01-01", []StatsRecord{{Visitors: 10}}))
	require.NoError(t, storage.PutBatch(ctx, 1, "2024-01-02", []StatsRecord{{Visitors: 20}}))
	require.NoError(t, storage.PutBatch(ctx, 2, "2024-01-01", []StatsRecord{{Visitors: 30}}))

	assert.Equal(t, 3, storage.Len())

	day1, _ := storage.Get(1, "2024-01-01", "")
	assert.Equal(t, int64(10), day1.Visitors)
	otherSite, _ := storage.Get(2, "2024-01-01", "")
	assert.Equal(t, int64(30), otherSite.Visitors)
}

func TestDeleteByJob(t *testing.T) {
	storage := NewMemoryHistoricalStorage()
	ctx := context.Background()

	require.NoError(t, storage.PutBatch(ctx, 1, "2024-01-01", []StatsRecord{
		{Dimension: "page:/a", Pageviews: 1, ImportJobID: "job-1"},
		{Dimension: "page:/b", Pageviews: 1, ImportJobID: "job-1"},
	}))
	require.NoError(t, storage.PutBatch(ctx, 1, "2024-01-02", []StatsRecord{
		{Dimension: "page:/c", Pageviews: 1, ImportJobID: "job-2"},
	}))

	require.NoError(t, storage.DeleteByJob(ctx, "job-1"))

	assert.Equal(t, 1, storage.Len())
	_, ok := storage.Get(1, "2024-01-02", "page:/c")
	assert.True(t, ok)
}
