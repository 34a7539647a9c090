package pagecache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tankobon/tankobon/pkg/models"
)

func writeBookmarkImage(t *testing.T, tc *testCache, name string) {
	t.Helper()
	p := filepath.Join(tc.root, "bookmark-images", filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(name), 0644))
}

func TestCache_CacheBookmarkForSeries(t *testing.T) {
	t.Parallel()

	t.Run("stages bookmarks in chapter and page order", func(t *testing.T) {
		t.Parallel()
		tc := newTestCache(t)
		for _, name := range []string{"c2/p3.jpg", "c1/p10.png", "c1/p2.jpg"} {
			writeBookmarkImage(t, tc, name)
		}
		tc.bookmarks.add(&models.Bookmark{ID: 1, UserID: 1, SeriesID: 5, ChapterID: 2, Page: 3, FileName: "c2/p3.jpg"})
		tc.bookmarks.add(&models.Bookmark{ID: 2, UserID: 1, SeriesID: 5, ChapterID: 1, Page: 10, FileName: "c1/p10.png"})
		tc.bookmarks.add(&models.Bookmark{ID: 3, UserID: 1, SeriesID: 5, ChapterID: 1, Page: 2, FileName: "c1/p2.jpg"})
		tc.bookmarks.add(&models.Bookmark{ID: 4, UserID: 2, SeriesID: 5, ChapterID: 1, Page: 2, FileName: "c1/p2.jpg"})

		count, err := tc.CacheBookmarkForSeries(context.Background(), 1, 5)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		expected := []string{"0000_c1_p2.jpg", "0001_c1_p10.png", "0002_c2_p3.jpg"}
		for i, name := range expected {
			p, err := tc.GetCachedBookmarkPagePath(1, 5, i)
			require.NoError(t, err)
			assert.Equal(t, name, filepath.Base(p))
		}

		p, err := tc.GetCachedBookmarkPagePath(1, 5, 50)
		require.NoError(t, err)
		assert.Equal(t, "0002_c2_p3.jpg", filepath.Base(p))

		p, err = tc.GetCachedBookmarkPagePath(1, 5, -1)
		require.NoError(t, err)
		assert.Equal(t, "0000_c1_p2.jpg", filepath.Base(p))
	})

	t.Run("unchanged bookmarks are a no-op", func(t *testing.T) {
		t.Parallel()
		tc := newTestCache(t)
		writeBookmarkImage(t, tc, "a.jpg")
		tc.bookmarks.add(&models.Bookmark{ID: 1, UserID: 1, SeriesID: 5, ChapterID: 1, Page: 0, FileName: "a.jpg"})

		_, err := tc.CacheBookmarkForSeries(context.Background(), 1, 5)
		require.NoError(t, err)
		tc.mu.Lock()
		first := tc.bookmarkEntries[bookmarkKey{seriesID: 5, userID: 1}]
		tc.mu.Unlock()

		count, err := tc.CacheBookmarkForSeries(context.Background(), 1, 5)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		tc.mu.Lock()
		second := tc.bookmarkEntries[bookmarkKey{seriesID: 5, userID: 1}]
		tc.mu.Unlock()
		assert.Same(t, first, second)
	})

	t.Run("new bookmarks restage the set", func(t *testing.T) {
		t.Parallel()
		tc := newTestCache(t)
		writeBookmarkImage(t, tc, "a.jpg")
		writeBookmarkImage(t, tc, "b.jpg")
		tc.bookmarks.add(&models.Bookmark{ID: 1, UserID: 1, SeriesID: 5, ChapterID: 1, Page: 0, FileName: "a.jpg"})

		count, err := tc.CacheBookmarkForSeries(context.Background(), 1, 5)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		tc.bookmarks.add(&models.Bookmark{ID: 2, UserID: 1, SeriesID: 5, ChapterID: 1, Page: 1, FileName: "b.jpg"})
		count, err = tc.CacheBookmarkForSeries(context.Background(), 1, 5)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("missing images are skipped", func(t *testing.T) {
		t.Parallel()
		tc := newTestCache(t)
		writeBookmarkImage(t, tc, "a.jpg")
		tc.bookmarks.add(&models.Bookmark{ID: 1, UserID: 1, SeriesID: 5, ChapterID: 1, Page: 0, FileName: "a.jpg"})
		tc.bookmarks.add(&models.Bookmark{ID: 2, UserID: 1, SeriesID: 5, ChapterID: 1, Page: 1, FileName: "gone.jpg"})

		count, err := tc.CacheBookmarkForSeries(context.Background(), 1, 5)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("no bookmarks means no readable pages", func(t *testing.T) {
		t.Parallel()
		tc := newTestCache(t)

		count, err := tc.CacheBookmarkForSeries(context.Background(), 1, 5)
		require.NoError(t, err)
		assert.Zero(t, count)

		_, err = tc.GetCachedBookmarkPagePath(1, 5, 0)
		assert.True(t, errors.Is(err, ErrNoReadablePages))
	})

	t.Run("sets that were never staged have no pages", func(t *testing.T) {
		t.Parallel()
		tc := newTestCache(t)

		_, err := tc.GetCachedBookmarkPagePath(1, 5, 0)
		assert.True(t, errors.Is(err, ErrNoReadablePages))
	})
}

func TestCache_BookmarkIsolation(t *testing.T) {
	t.Parallel()

	tc := newTestCache(t)
	tc.createTestChapter(t, 1, "001.jpg")
	writeBookmarkImage(t, tc, "a.jpg")
	tc.bookmarks.add(&models.Bookmark{ID: 1, UserID: 1, SeriesID: 5, ChapterID: 1, Page: 0, FileName: "a.jpg"})

	entry, err := tc.Ensure(context.Background(), 1)
	require.NoError(t, err)
	_, err = tc.CacheBookmarkForSeries(context.Background(), 1, 5)
	require.NoError(t, err)

	tc.CleanupChapters(context.Background(), []int{1})
	p, err := tc.GetCachedBookmarkPagePath(1, 5, 0)
	require.NoError(t, err)
	assert.FileExists(t, p)

	entry, err = tc.Ensure(context.Background(), 1)
	require.NoError(t, err)

	tc.CleanupBookmarks(context.Background(), []int{5, 6})
	assert.DirExists(t, entry.Dir)
	_, _, err = tc.GetCachedPagePath(entry, 0)
	require.NoError(t, err)

	_, err = tc.GetCachedBookmarkPagePath(1, 5, 0)
	assert.True(t, errors.Is(err, ErrNoReadablePages))

	// Cleanup is idempotent.
	tc.CleanupBookmarkCache(context.Background(), 5)
}
