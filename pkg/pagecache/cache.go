package pagecache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/tankobon/tankobon/pkg/archive"
	"github.com/tankobon/tankobon/pkg/fileutils"
	"github.com/tankobon/tankobon/pkg/models"
	"github.com/tankobon/tankobon/pkg/pageindex"
	"golang.org/x/sync/singleflight"
)

const (
	chaptersDir  = "chapters"
	bookmarksDir = "bookmarks"
	stagingDir   = "staging"

	areaChapters  = "chapters"
	areaBookmarks = "bookmarks"

	DefaultExtractTimeout     = 5 * time.Minute
	DefaultCleanupConcurrency = 4
)

// ChapterSource resolves a chapter to the files backing it, in reading order.
// It returns an error matching ErrChapterNotFound for unknown chapters.
type ChapterSource interface {
	ChapterSources(ctx context.Context, chapterID int) ([]archive.Source, error)
}

// BookmarkSource lists the bookmarks of a user in a series.
type BookmarkSource interface {
	SeriesBookmarks(ctx context.Context, userID, seriesID int) ([]*models.Bookmark, error)
}

// Entry is a published extraction. Entries are never modified after they are
// published. A changed chapter gets a new entry.
type Entry struct {
	ChapterID   int
	SeriesID    int
	UserID      int
	Dir         string
	PageCount   int
	Pages       []pageindex.Page
	Kind        archive.Kind
	CreatedAt   time.Time
	Fingerprint string
}

// Options configure a Cache.
type Options struct {
	// Dir is the root of the cache. It is created if missing.
	Dir string
	// BookmarksDir holds the bookmarked page images referenced by
	// models.Bookmark.FileName.
	BookmarksDir string
	Chapters     ChapterSource
	Bookmarks    BookmarkSource
	// ExtractTimeout bounds a single extraction.
	ExtractTimeout time.Duration
	// MaxEntryBytes caps the size of a single extracted file.
	MaxEntryBytes int64
	// CleanupConcurrency bounds how many entries are removed at once.
	CleanupConcurrency int
	Metrics            *Metrics
}

type bookmarkKey struct {
	seriesID int
	userID   int
}

// generation identifies the state of an id as seen by a running build. A
// cleanup of the id, or a full clear, makes the build's generation stale and
// keeps it from publishing.
type generation struct {
	epoch uint64
	gen   uint64
}

// Cache extracts chapters on demand and serves their pages from disk.
type Cache struct {
	dir                string
	bookmarksDir       string
	chapters           ChapterSource
	bookmarks          BookmarkSource
	extractor          *archive.Extractor
	extractTimeout     time.Duration
	cleanupConcurrency int
	metrics            *Metrics
	group              singleflight.Group

	mu              sync.Mutex
	epoch           uint64
	entries         map[int]*Entry
	chapterGens     map[int]uint64
	bookmarkEntries map[bookmarkKey]*Entry
	bookmarkGens    map[int]uint64
	inflight        map[string]int
}

// New creates a Cache rooted at opts.Dir.
func New(opts Options) (*Cache, error) {
	if opts.Dir == "" {
		return nil, errors.New("cache dir is required")
	}
	if opts.Chapters == nil {
		return nil, errors.New("chapter source is required")
	}

	for _, sub := range []string{chaptersDir, bookmarksDir, stagingDir} {
		if err := os.MkdirAll(filepath.Join(opts.Dir, sub), 0755); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	timeout := opts.ExtractTimeout
	if timeout <= 0 {
		timeout = DefaultExtractTimeout
	}
	concurrency := opts.CleanupConcurrency
	if concurrency <= 0 {
		concurrency = DefaultCleanupConcurrency
	}

	return &Cache{
		dir:                opts.Dir,
		bookmarksDir:       opts.BookmarksDir,
		chapters:           opts.Chapters,
		bookmarks:          opts.Bookmarks,
		extractor:          archive.New(archive.Options{MaxEntryBytes: opts.MaxEntryBytes}),
		extractTimeout:     timeout,
		cleanupConcurrency: concurrency,
		metrics:            opts.Metrics,
		entries:            map[int]*Entry{},
		chapterGens:        map[int]uint64{},
		bookmarkEntries:    map[bookmarkKey]*Entry{},
		bookmarkGens:       map[int]uint64{},
		inflight:           map[string]int{},
	}, nil
}

// Dir returns the root of the cache.
func (c *Cache) Dir() string {
	return c.dir
}

func (c *Cache) chapterDir(chapterID int) string {
	return filepath.Join(c.dir, chaptersDir, strconv.Itoa(chapterID))
}

func (c *Cache) stagingPath(name string) string {
	return filepath.Join(c.dir, stagingDir, fmt.Sprintf("%s-%s", name, uuid.New().String()))
}

func chapterKey(chapterID int) string {
	return "chapter:" + strconv.Itoa(chapterID)
}

// Ensure makes sure the chapter is extracted and returns its entry. Concurrent
// calls for the same chapter share a single extraction. A failed extraction
// is not remembered, so the next call tries again.
func (c *Cache) Ensure(ctx context.Context, chapterID int) (*Entry, error) {
	sources, err := c.chapters.ChapterSources(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, errors.Wrapf(ErrNoReadablePages, "chapter %d has no files", chapterID)
	}

	fp, err := fingerprintSources(sources)
	if err != nil {
		return nil, wrapFailure(err, fmt.Sprintf("failed to read files of chapter %d", chapterID))
	}

	if entry := c.lookupChapter(chapterID, fp); entry != nil {
		c.metrics.incCacheHits()
		return entry, nil
	}

	entry, err := c.do(ctx, chapterKey(chapterID), func(ctx context.Context) (*Entry, error) {
		return c.loadChapter(ctx, chapterID, sources, fp)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// do runs fn once per key across concurrent callers. fn runs detached from
// the caller's cancellation so that one caller giving up does not fail the
// others, while each caller still returns as soon as its own ctx is done.
func (c *Cache) do(ctx context.Context, key string, fn func(ctx context.Context) (*Entry, error)) (*Entry, error) {
	ch := c.group.DoChan(key, func() (interface{}, error) {
		c.mu.Lock()
		c.inflight[key]++
		c.mu.Unlock()
		defer func() {
			c.mu.Lock()
			if c.inflight[key]--; c.inflight[key] <= 0 {
				delete(c.inflight, key)
			}
			c.mu.Unlock()
		}()

		return fn(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, errors.WithStack(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Entry), nil
	}
}

// lookupChapter returns the registered entry for the chapter if it still
// matches fp and its directory is still there.
func (c *Cache) lookupChapter(chapterID int, fp string) *Entry {
	c.mu.Lock()
	entry, ok := c.entries[chapterID]
	c.mu.Unlock()

	if !ok || entry.Fingerprint != fp || !fileutils.DirExists(entry.Dir) {
		return nil
	}
	return entry
}

func (c *Cache) chapterGenerationLocked(chapterID int) generation {
	return generation{epoch: c.epoch, gen: c.chapterGens[chapterID]}
}

func (c *Cache) loadChapter(ctx context.Context, chapterID int, sources []archive.Source, fp string) (*Entry, error) {
	log := logger.FromContext(ctx)

	if entry := c.lookupChapter(chapterID, fp); entry != nil {
		return entry, nil
	}

	c.mu.Lock()
	gen := c.chapterGenerationLocked(chapterID)
	c.mu.Unlock()

	stale := func() bool { return c.chapterGenerationLocked(chapterID) != gen }
	register := func(entry *Entry) {
		c.entries[chapterID] = entry
		c.metrics.setEntries(areaChapters, len(c.entries))
	}

	final := c.chapterDir(chapterID)
	if entry := adopt(ctx, final, fp); entry != nil {
		if err := c.publish(ctx, "", final, entry, stale, register); err != nil {
			return nil, err
		}
		log.Debug("adopted cached chapter", logger.Data{"chapter_id": chapterID, "pages": entry.PageCount})
		return entry, nil
	}

	if err := fileutils.RemoveAll(ctx, final); err != nil {
		return nil, wrapFailure(err, "failed to remove stale chapter cache")
	}

	start := time.Now()
	staging := c.stagingPath(strconv.Itoa(chapterID))

	extractCtx, cancel := context.WithTimeout(ctx, c.extractTimeout)
	defer cancel()

	result, err := c.extractor.Extract(extractCtx, sources, staging)
	if err != nil {
		c.metrics.incExtractionFailures()
		log.Err(err).Warn("failed to extract chapter", logger.Data{"chapter_id": chapterID})
		return nil, err
	}

	pages, err := pageindex.Build(staging, pageindex.Options{
		Content: result.Kind == archive.KindEpub,
		Order:   result.ContentOrder,
	})
	if err != nil {
		c.metrics.incExtractionFailures()
		_ = fileutils.RemoveAll(ctx, staging)
		return nil, wrapFailure(err, "failed to index chapter")
	}

	entry := newEntry(final, pages)
	entry.ChapterID = chapterID
	entry.Kind = result.Kind
	entry.Fingerprint = fp

	if err := writeMetadata(staging, newMetadata(entry)); err != nil {
		c.metrics.incExtractionFailures()
		_ = fileutils.RemoveAll(ctx, staging)
		return nil, wrapFailure(err, "failed to write chapter metadata")
	}

	if err := c.publish(ctx, staging, final, entry, stale, register); err != nil {
		c.metrics.incExtractionFailures()
		return nil, err
	}

	c.metrics.observeExtraction(string(result.Kind), time.Since(start))
	log.Info("extracted chapter", logger.Data{
		"chapter_id": chapterID,
		"kind":       result.Kind,
		"pages":      entry.PageCount,
		"duration":   time.Since(start).String(),
	})

	return entry, nil
}

// newEntry builds an entry for pages indexed in a staging directory that will
// be published at final.
func newEntry(final string, pages []pageindex.Page) *Entry {
	published := make([]pageindex.Page, len(pages))
	for i, p := range pages {
		published[i] = pageindex.Page{Path: filepath.Join(final, filepath.FromSlash(p.Rel)), Rel: p.Rel}
	}
	return &Entry{
		Dir:       final,
		PageCount: len(published),
		Pages:     published,
		CreatedAt: time.Now().UTC(),
	}
}

// adopt returns the entry already published at dir if its sidecar matches fp.
func adopt(ctx context.Context, dir, fp string) *Entry {
	meta, err := readMetadata(dir)
	if err != nil {
		logger.FromContext(ctx).Err(err).Warn("ignoring unreadable cache metadata", logger.Data{"dir": dir})
		return nil
	}
	if meta == nil || meta.FingerprintHash != fp {
		return nil
	}
	return meta.entry(dir)
}

// publish makes entry visible. If staging is set it is renamed to final
// first. Nothing is published if stale reports that the id was cleaned up
// while the entry was built; the staging directory is discarded instead.
func (c *Cache) publish(ctx context.Context, staging, final string, entry *Entry, stale func() bool, register func(*Entry)) error {
	c.mu.Lock()
	if stale() {
		c.mu.Unlock()
		if staging != "" {
			_ = fileutils.RemoveAll(ctx, staging)
		}
		return errors.Wrapf(ErrExtractionFailed, "%s was cleaned up while it was being built", filepath.Base(final))
	}

	var err error
	if staging != "" {
		err = os.Rename(staging, final)
	}
	if err == nil {
		register(entry)
	}
	c.mu.Unlock()

	if err != nil {
		_ = fileutils.RemoveAll(ctx, staging)
		return wrapFailure(errors.WithStack(err), "failed to publish entry")
	}
	return nil
}

// forgetLocked drops in-flight builds whose key starts with prefix, so that
// later callers start a fresh build instead of joining a stale one.
func (c *Cache) forgetLocked(prefix string) {
	for key := range c.inflight {
		if strings.HasPrefix(key, prefix) {
			c.group.Forget(key)
		}
	}
}

// detachLocked moves dir out of the published tree so it can be removed
// without holding the lock. It returns the new location, or "" if dir did not
// exist.
func (c *Cache) detachLocked(dir string) (string, error) {
	trash := c.stagingPath("deleted")
	if err := os.Rename(dir, trash); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.WithStack(err)
	}
	return trash, nil
}
