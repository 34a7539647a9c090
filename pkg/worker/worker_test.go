package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tankobon/tankobon/pkg/chapters"
	"github.com/tankobon/tankobon/pkg/config"
	"github.com/tankobon/tankobon/pkg/pagecache"
	"github.com/tankobon/tankobon/pkg/testutils"
)

type fixture struct {
	worker *Worker
	cache  *pagecache.Cache
	ids    []int
}

func newFixture(t *testing.T, chapterCount int) *fixture {
	t.Helper()
	root := t.TempDir()
	db := testutils.NewDB(t)

	cfg := config.NewForTest()
	cfg.CacheDir = filepath.Join(root, "cache")
	cfg.BookmarksDir = filepath.Join(root, "bookmarks")
	cfg.Hostname = "test"

	cache, err := pagecache.New(pagecache.Options{
		Dir:          cfg.CacheDir,
		BookmarksDir: cfg.BookmarksDir,
		Chapters:     chapters.NewService(db, cfg.BookmarksDir, nil),
		Metrics:      pagecache.NewMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)

	series := testutils.CreateSeries(t, db, "Aria")
	f := &fixture{worker: New(cfg, cache), cache: cache}
	for i := 0; i < chapterCount; i++ {
		path := filepath.Join(root, "library", "chapter"+string(rune('a'+i))+".cbz")
		testutils.WriteZip(t, path, testutils.ZipEntry{Name: "001.png", Content: testutils.PNG(t, 2, 2)})
		chapter := testutils.CreateChapter(t, db, series.ID, path)
		f.ids = append(f.ids, chapter.ID)
	}
	return f
}

func (f *fixture) ensureAll(t *testing.T) []*pagecache.Entry {
	t.Helper()
	var entries []*pagecache.Entry
	for _, id := range f.ids {
		entry, err := f.cache.Ensure(context.Background(), id)
		require.NoError(t, err)
		entries = append(entries, entry)
	}
	return entries
}

func TestWorker_CleanupChapters(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 2)
	entries := f.ensureAll(t)

	f.worker.Start()
	f.worker.EnqueueChapterCleanup(context.Background(), f.ids[:1])
	f.worker.Shutdown()

	assert.NoDirExists(t, entries[0].Dir)
	assert.DirExists(t, entries[1].Dir)
}

func TestWorker_ClearAll(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 2)
	entries := f.ensureAll(t)

	f.worker.Start()
	f.worker.EnqueueClearAll(context.Background())
	f.worker.Shutdown()

	for _, e := range entries {
		assert.NoDirExists(t, e.Dir)
	}
	stats, err := f.cache.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.ChapterEntries)
}

func TestWorker_DrainsOnShutdown(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 3)
	entries := f.ensureAll(t)

	// Jobs queued before Start still run because shutdown drains the queue.
	for _, id := range f.ids {
		require.True(t, f.worker.Enqueue(&Job{Type: JobTypeCleanupChapters, IDs: []int{id}}))
	}
	f.worker.Start()
	f.worker.Shutdown()

	for _, e := range entries {
		assert.NoDirExists(t, e.Dir)
	}
}

func TestWorker_EnqueueAfterShutdown(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0)

	f.worker.Start()
	f.worker.Shutdown()

	assert.False(t, f.worker.Enqueue(&Job{Type: JobTypeClearAll}))
}

func TestWorker_UnknownJobType(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1)
	entries := f.ensureAll(t)

	f.worker.Start()
	f.worker.Enqueue(&Job{Type: "nope"})
	f.worker.Shutdown()

	assert.DirExists(t, entries[0].Dir)
}

func TestWorker_PeriodicSweep(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0)
	f.worker.sweepInterval = 10 * time.Millisecond

	f.worker.Start()
	time.Sleep(50 * time.Millisecond)
	f.worker.Shutdown()

	stats, err := f.cache.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.StagingBytes)
}
