package pagecache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tankobon/tankobon/pkg/models"
)

func TestCache_CleanupChapters(t *testing.T) {
	t.Parallel()

	t.Run("removes entries and is idempotent", func(t *testing.T) {
		t.Parallel()
		tc := newTestCache(t)
		tc.createTestChapter(t, 1, "001.jpg")
		tc.createTestChapter(t, 2, "001.jpg")

		one, err := tc.Ensure(context.Background(), 1)
		require.NoError(t, err)
		two, err := tc.Ensure(context.Background(), 2)
		require.NoError(t, err)

		tc.CleanupChapters(context.Background(), []int{1, 99})
		assert.NoDirExists(t, one.Dir)
		assert.DirExists(t, two.Dir)

		tc.CleanupChapters(context.Background(), []int{1, 99})
		tc.CleanupChapters(context.Background(), nil)
		assert.NoDirExists(t, one.Dir)
		assert.DirExists(t, two.Dir)

		assert.Equal(t, float64(1), testutil.ToFloat64(tc.metrics.evictionsTotal.WithLabelValues(areaChapters)))
		assert.Equal(t, float64(1), testutil.ToFloat64(tc.metrics.entries.WithLabelValues(areaChapters)))
	})

	t.Run("the next ensure extracts again", func(t *testing.T) {
		t.Parallel()
		tc := newTestCache(t)
		tc.createTestChapter(t, 1, "001.jpg", "002.jpg")

		first, err := tc.Ensure(context.Background(), 1)
		require.NoError(t, err)

		tc.CleanupChapters(context.Background(), []int{1})

		second, err := tc.Ensure(context.Background(), 1)
		require.NoError(t, err)
		assert.NotSame(t, first, second)
		assert.Equal(t, 2, second.PageCount)
		assert.DirExists(t, second.Dir)
		assert.Equal(t, float64(2), tc.extractions())
	})
}

func TestCache_ClearAll(t *testing.T) {
	t.Parallel()

	tc := newTestCache(t)
	tc.createTestChapter(t, 1, "001.jpg")
	tc.createTestChapter(t, 2, "001.jpg")
	writeBookmarkImage(t, tc, "1/001.jpg")
	tc.bookmarks.add(&models.Bookmark{ID: 1, UserID: 1, SeriesID: 5, ChapterID: 1, Page: 0, FileName: "1/001.jpg"})

	_, err := tc.Ensure(context.Background(), 1)
	require.NoError(t, err)
	_, err = tc.Ensure(context.Background(), 2)
	require.NoError(t, err)
	_, err = tc.CacheBookmarkForSeries(context.Background(), 1, 5)
	require.NoError(t, err)

	require.NoError(t, tc.ClearAll(context.Background()))

	for _, sub := range []string{"chapters", "bookmarks", "staging"} {
		children, err := os.ReadDir(filepath.Join(tc.Dir(), sub))
		require.NoError(t, err)
		assert.Empty(t, children, sub)
	}

	stats, err := tc.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.ChapterEntries)
	assert.Zero(t, stats.BookmarkEntries)
	assert.Zero(t, stats.Files)

	entry, err := tc.Ensure(context.Background(), 1)
	require.NoError(t, err)
	assert.DirExists(t, entry.Dir)
}

func TestCache_SweepStaging(t *testing.T) {
	t.Parallel()

	tc := newTestCache(t)
	old := filepath.Join(tc.Dir(), "staging", "1-old")
	fresh := filepath.Join(tc.Dir(), "staging", "2-fresh")
	require.NoError(t, os.MkdirAll(old, 0755))
	require.NoError(t, os.MkdirAll(fresh, 0755))
	past := time.Now().Add(-2 * DefaultExtractTimeout)
	require.NoError(t, os.Chtimes(old, past, past))

	removed, err := tc.SweepStaging(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoDirExists(t, old)
	assert.DirExists(t, fresh)
}

func TestCache_Stats(t *testing.T) {
	t.Parallel()

	tc := newTestCache(t)
	tc.createTestChapter(t, 1, "001.jpg", "002.jpg")

	_, err := tc.Ensure(context.Background(), 1)
	require.NoError(t, err)

	stats, err := tc.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ChapterEntries)
	assert.Equal(t, 1, stats.ChapterDirs)
	// Two pages plus the metadata sidecar.
	assert.Equal(t, 3, stats.Files)
	assert.Positive(t, stats.ChapterBytes)
	assert.Zero(t, stats.StagingBytes)
}
