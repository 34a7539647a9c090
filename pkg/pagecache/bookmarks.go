package pagecache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/sourcegraph/conc/pool"
	"github.com/tankobon/tankobon/pkg/archive"
	"github.com/tankobon/tankobon/pkg/fileutils"
	"github.com/tankobon/tankobon/pkg/models"
	"github.com/tankobon/tankobon/pkg/pageindex"
)

func (c *Cache) bookmarkSeriesDir(seriesID int) string {
	return filepath.Join(c.dir, bookmarksDir, strconv.Itoa(seriesID))
}

func (c *Cache) bookmarkDir(userID, seriesID int) string {
	return filepath.Join(c.bookmarkSeriesDir(seriesID), strconv.Itoa(userID))
}

func bookmarkSeriesKey(seriesID int) string {
	return "bookmark:" + strconv.Itoa(seriesID) + ":"
}

func bookmarkKeyString(userID, seriesID int) string {
	return bookmarkSeriesKey(seriesID) + strconv.Itoa(userID)
}

// bookmarkFileName names a staged bookmark so that the index order is the
// bookmark order.
func bookmarkFileName(i int, b *models.Bookmark) string {
	return fmt.Sprintf("%04d_c%d_p%d%s", i, b.ChapterID, b.Page, filepath.Ext(b.FileName))
}

// CacheBookmarkForSeries stages the bookmarked pages of a user in a series
// as one readable set and returns its page count. Bookmark images are copied
// from the bookmarks directory, so no chapter is extracted. Calling it again
// with an unchanged bookmark set is a no-op.
func (c *Cache) CacheBookmarkForSeries(ctx context.Context, userID, seriesID int) (int, error) {
	if c.bookmarks == nil {
		return 0, errors.New("bookmark source is not configured")
	}

	bookmarks, err := c.bookmarks.SeriesBookmarks(ctx, userID, seriesID)
	if err != nil {
		return 0, err
	}
	sortBookmarks(bookmarks)

	fp, err := fingerprintBookmarks(bookmarks)
	if err != nil {
		return 0, err
	}

	key := bookmarkKey{seriesID: seriesID, userID: userID}
	if entry := c.lookupBookmarks(key, fp); entry != nil {
		return entry.PageCount, nil
	}

	entry, err := c.do(ctx, bookmarkKeyString(userID, seriesID), func(ctx context.Context) (*Entry, error) {
		return c.loadBookmarks(ctx, key, bookmarks, fp)
	})
	if err != nil {
		return 0, err
	}
	return entry.PageCount, nil
}

// GetCachedBookmarkPagePath returns the file of a page of a staged bookmark
// set, clamping the page number like GetCachedPagePath. The set must have
// been staged with CacheBookmarkForSeries.
func (c *Cache) GetCachedBookmarkPagePath(userID, seriesID, page int) (string, error) {
	key := bookmarkKey{seriesID: seriesID, userID: userID}

	c.mu.Lock()
	entry := c.bookmarkEntries[key]
	c.mu.Unlock()

	if entry == nil {
		meta, err := readMetadata(c.bookmarkDir(userID, seriesID))
		if err != nil {
			return "", err
		}
		if meta == nil {
			return "", errors.WithStack(ErrNoReadablePages)
		}
		entry = meta.entry(c.bookmarkDir(userID, seriesID))
	}

	p, _, err := c.GetCachedPagePath(entry, page)
	return p, err
}

func sortBookmarks(bookmarks []*models.Bookmark) {
	sort.SliceStable(bookmarks, func(i, j int) bool {
		a, b := bookmarks[i], bookmarks[j]
		if a.ChapterID != b.ChapterID {
			return a.ChapterID < b.ChapterID
		}
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		return a.ID < b.ID
	})
}

func (c *Cache) lookupBookmarks(key bookmarkKey, fp string) *Entry {
	c.mu.Lock()
	entry, ok := c.bookmarkEntries[key]
	c.mu.Unlock()

	if !ok || entry.Fingerprint != fp || !fileutils.DirExists(entry.Dir) {
		return nil
	}
	return entry
}

func (c *Cache) bookmarkGenerationLocked(seriesID int) generation {
	return generation{epoch: c.epoch, gen: c.bookmarkGens[seriesID]}
}

func (c *Cache) loadBookmarks(ctx context.Context, key bookmarkKey, bookmarks []*models.Bookmark, fp string) (*Entry, error) {
	log := logger.FromContext(ctx)

	if entry := c.lookupBookmarks(key, fp); entry != nil {
		return entry, nil
	}

	c.mu.Lock()
	gen := c.bookmarkGenerationLocked(key.seriesID)
	c.mu.Unlock()

	stale := func() bool { return c.bookmarkGenerationLocked(key.seriesID) != gen }
	register := func(entry *Entry) {
		c.bookmarkEntries[key] = entry
		c.metrics.setEntries(areaBookmarks, len(c.bookmarkEntries))
	}

	final := c.bookmarkDir(key.userID, key.seriesID)
	if entry := adopt(ctx, final, fp); entry != nil {
		if err := c.publish(ctx, "", final, entry, stale, register); err != nil {
			return nil, err
		}
		return entry, nil
	}

	if err := fileutils.RemoveAll(ctx, final); err != nil {
		return nil, wrapFailure(err, "failed to remove stale bookmark cache")
	}
	if err := os.MkdirAll(filepath.Dir(final), 0755); err != nil {
		return nil, wrapFailure(errors.WithStack(err), "failed to create bookmark cache")
	}

	staging := c.stagingPath(fmt.Sprintf("bookmarks-%d-%d", key.seriesID, key.userID))
	if err := os.MkdirAll(staging, 0755); err != nil {
		return nil, wrapFailure(errors.WithStack(err), "failed to create staging directory")
	}

	copied := 0
	for i, b := range bookmarks {
		src := filepath.Join(c.bookmarksDir, filepath.FromSlash(b.FileName))
		dst := filepath.Join(staging, bookmarkFileName(i, b))
		if err := fileutils.CopyFile(src, dst); err != nil {
			log.Err(err).Warn("skipping unreadable bookmark", logger.Data{
				"bookmark_id": b.ID,
				"file_name":   b.FileName,
			})
			continue
		}
		copied++
	}

	pages, err := pageindex.Build(staging, pageindex.Options{})
	if err != nil {
		_ = fileutils.RemoveAll(ctx, staging)
		return nil, wrapFailure(err, "failed to index bookmarks")
	}

	entry := newEntry(final, pages)
	entry.SeriesID = key.seriesID
	entry.UserID = key.userID
	entry.Kind = archive.KindImage
	entry.Fingerprint = fp

	if err := writeMetadata(staging, newMetadata(entry)); err != nil {
		_ = fileutils.RemoveAll(ctx, staging)
		return nil, wrapFailure(err, "failed to write bookmark metadata")
	}

	if err := c.publish(ctx, staging, final, entry, stale, register); err != nil {
		return nil, err
	}

	log.Info("cached bookmarks", logger.Data{
		"series_id": key.seriesID,
		"user_id":   key.userID,
		"bookmarks": len(bookmarks),
		"copied":    copied,
	})

	return entry, nil
}

// CleanupBookmarkCache removes the staged bookmarks of every user in a
// series. Chapter entries are never touched.
func (c *Cache) CleanupBookmarkCache(ctx context.Context, seriesID int) {
	if err := c.cleanupBookmarkSeries(ctx, seriesID); err != nil {
		logger.FromContext(ctx).Err(err).Warn("failed to clean up bookmark cache", logger.Data{"series_id": seriesID})
	}
}

// CleanupBookmarks runs CleanupBookmarkCache for every series in seriesIDs.
func (c *Cache) CleanupBookmarks(ctx context.Context, seriesIDs []int) {
	log := logger.FromContext(ctx)

	p := pool.New().WithErrors().WithMaxGoroutines(c.cleanupConcurrency)
	for _, id := range seriesIDs {
		p.Go(func() error {
			return errors.Wrapf(c.cleanupBookmarkSeries(ctx, id), "series %d", id)
		})
	}
	if err := p.Wait(); err != nil {
		log.Err(err).Warn("failed to clean up bookmark cache")
	}
}

func (c *Cache) cleanupBookmarkSeries(ctx context.Context, seriesID int) error {
	c.mu.Lock()
	for key := range c.bookmarkEntries {
		if key.seriesID == seriesID {
			delete(c.bookmarkEntries, key)
		}
	}
	c.bookmarkGens[seriesID]++
	c.forgetLocked(bookmarkSeriesKey(seriesID))
	trash, err := c.detachLocked(c.bookmarkSeriesDir(seriesID))
	c.metrics.setEntries(areaBookmarks, len(c.bookmarkEntries))
	c.mu.Unlock()

	if err != nil || trash == "" {
		return err
	}

	c.metrics.incEvictions(areaBookmarks)
	return fileutils.RemoveAll(ctx, trash)
}
