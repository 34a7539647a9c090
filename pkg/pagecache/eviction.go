package pagecache

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/sourcegraph/conc/pool"
	"github.com/tankobon/tankobon/pkg/fileutils"
)

// CleanupChapters removes the cached extraction of every chapter in
// chapterIDs. It is idempotent and never fails: removal errors are logged.
// Extractions of these chapters that are still running will not publish.
func (c *Cache) CleanupChapters(ctx context.Context, chapterIDs []int) {
	log := logger.FromContext(ctx)

	p := pool.New().WithErrors().WithMaxGoroutines(c.cleanupConcurrency)
	for _, id := range chapterIDs {
		p.Go(func() error {
			return errors.Wrapf(c.cleanupChapter(ctx, id), "chapter %d", id)
		})
	}
	if err := p.Wait(); err != nil {
		log.Err(err).Warn("failed to clean up chapter cache")
	}
}

func (c *Cache) cleanupChapter(ctx context.Context, chapterID int) error {
	c.mu.Lock()
	delete(c.entries, chapterID)
	c.chapterGens[chapterID]++
	c.group.Forget(chapterKey(chapterID))
	trash, err := c.detachLocked(c.chapterDir(chapterID))
	c.metrics.setEntries(areaChapters, len(c.entries))
	c.mu.Unlock()

	if err != nil || trash == "" {
		return err
	}

	c.metrics.incEvictions(areaChapters)
	return fileutils.RemoveAll(ctx, trash)
}

// ClearAll removes every chapter and bookmark entry and everything staged.
func (c *Cache) ClearAll(ctx context.Context) error {
	log := logger.FromContext(ctx)

	c.mu.Lock()
	c.epoch++
	c.entries = map[int]*Entry{}
	c.bookmarkEntries = map[bookmarkKey]*Entry{}
	c.forgetLocked("")
	var trash []string
	var detachErr error
	for _, sub := range []string{chaptersDir, bookmarksDir} {
		dir := filepath.Join(c.dir, sub)
		t, err := c.detachLocked(dir)
		if err != nil {
			detachErr = err
			continue
		}
		if t != "" {
			trash = append(trash, t)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			detachErr = errors.WithStack(err)
		}
	}
	c.metrics.setEntries(areaChapters, 0)
	c.metrics.setEntries(areaBookmarks, 0)
	c.mu.Unlock()

	if detachErr != nil {
		return detachErr
	}

	removed, err := c.sweepStaging(ctx, 0)
	if err != nil {
		return err
	}

	log.Info("cleared cache", logger.Data{"removed": removed, "detached": len(trash)})
	return nil
}

// SweepStaging removes staged directories older than the extract timeout.
// They are left behind by extractions interrupted by a crash or restart.
func (c *Cache) SweepStaging(ctx context.Context) (int, error) {
	return c.sweepStaging(ctx, c.extractTimeout)
}

func (c *Cache) sweepStaging(ctx context.Context, olderThan time.Duration) (int, error) {
	log := logger.FromContext(ctx)

	root := filepath.Join(c.dir, stagingDir)
	children, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.WithStack(err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, child := range children {
		if olderThan > 0 {
			info, err := child.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
		}
		if err := fileutils.RemoveAll(ctx, filepath.Join(root, child.Name())); err != nil {
			log.Err(err).Warn("failed to remove staged directory", logger.Data{"name": child.Name()})
			continue
		}
		removed++
	}
	return removed, nil
}

// Stats describes the cache contents.
type Stats struct {
	ChapterEntries  int   `json:"chapter_entries"`
	BookmarkEntries int   `json:"bookmark_entries"`
	ChapterDirs     int   `json:"chapter_dirs"`
	ChapterBytes    int64 `json:"chapter_bytes"`
	BookmarkBytes   int64 `json:"bookmark_bytes"`
	StagingBytes    int64 `json:"staging_bytes"`
	Files           int   `json:"files"`
}

// Stats reports the number of registered entries and the disk usage of each
// area of the cache. Directories published by an earlier process count
// towards ChapterDirs even before they are adopted.
func (c *Cache) Stats() (*Stats, error) {
	c.mu.Lock()
	stats := &Stats{
		ChapterEntries:  len(c.entries),
		BookmarkEntries: len(c.bookmarkEntries),
	}
	c.mu.Unlock()

	dirs, err := os.ReadDir(filepath.Join(c.dir, chaptersDir))
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.WithStack(err)
	}
	for _, d := range dirs {
		if _, err := strconv.Atoi(d.Name()); err == nil && d.IsDir() {
			stats.ChapterDirs++
		}
	}

	for _, area := range []struct {
		sub   string
		bytes *int64
	}{
		{chaptersDir, &stats.ChapterBytes},
		{bookmarksDir, &stats.BookmarkBytes},
		{stagingDir, &stats.StagingBytes},
	} {
		size, count, err := fileutils.DirSize(filepath.Join(c.dir, area.sub))
		if err != nil {
			return nil, err
		}
		*area.bytes = size
		stats.Files += count
	}

	return stats, nil
}
