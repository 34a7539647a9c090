package pagecache

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/tankobon/tankobon/pkg/archive"
	"github.com/tankobon/tankobon/pkg/models"
)

type fakeChapters struct {
	mu    sync.Mutex
	files map[int][]archive.Source
}

func (f *fakeChapters) ChapterSources(_ context.Context, chapterID int) ([]archive.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sources, ok := f.files[chapterID]
	if !ok {
		return nil, errors.WithStack(ErrChapterNotFound)
	}
	return sources, nil
}

func (f *fakeChapters) set(chapterID int, paths ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sources := make([]archive.Source, 0, len(paths))
	for _, p := range paths {
		sources = append(sources, archive.Source{Path: p, Format: archive.FormatArchive})
	}
	f.files[chapterID] = sources
}

type fakeBookmarks struct {
	mu        sync.Mutex
	bookmarks []*models.Bookmark
}

func (f *fakeBookmarks) SeriesBookmarks(_ context.Context, userID, seriesID int) ([]*models.Bookmark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Bookmark
	for _, b := range f.bookmarks {
		if b.UserID == userID && b.SeriesID == seriesID {
			copied := *b
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeBookmarks) add(b *models.Bookmark) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookmarks = append(f.bookmarks, b)
}

type testCache struct {
	*Cache
	root      string
	chapters  *fakeChapters
	bookmarks *fakeBookmarks
	metrics   *Metrics
}

func newTestCache(t *testing.T) *testCache {
	t.Helper()
	root := t.TempDir()
	return newTestCacheAt(t, root, &fakeChapters{files: map[int][]archive.Source{}}, &fakeBookmarks{})
}

func newTestCacheAt(t *testing.T, root string, chapters *fakeChapters, bookmarks *fakeBookmarks) *testCache {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	cache, err := New(Options{
		Dir:          filepath.Join(root, "cache"),
		BookmarksDir: filepath.Join(root, "bookmark-images"),
		Chapters:     chapters,
		Bookmarks:    bookmarks,
		Metrics:      metrics,
	})
	require.NoError(t, err)
	return &testCache{Cache: cache, root: root, chapters: chapters, bookmarks: bookmarks, metrics: metrics}
}

type zipEntry struct {
	name    string
	content []byte
}

func createTestZip(t *testing.T, path string, entries ...zipEntry) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write(e.content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

// createTestChapter writes a cbz with the given page names and registers it
// as chapterID.
func (tc *testCache) createTestChapter(t *testing.T, chapterID int, pages ...string) string {
	t.Helper()
	entries := make([]zipEntry, 0, len(pages))
	for _, p := range pages {
		entries = append(entries, zipEntry{name: p, content: []byte(p)})
	}
	path := filepath.Join(tc.root, "library", filepath.Base(t.Name())+"-"+strconv.Itoa(chapterID)+".cbz")
	createTestZip(t, path, entries...)
	tc.chapters.set(chapterID, path)
	return path
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
