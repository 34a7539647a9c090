package reader

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/tankobon/tankobon/pkg/bookmarks"
	"github.com/tankobon/tankobon/pkg/chapters"
	"github.com/tankobon/tankobon/pkg/errcodes"
	"github.com/tankobon/tankobon/pkg/models"
	"github.com/tankobon/tankobon/pkg/pagecache"
)

type handler struct {
	cache           *pagecache.Cache
	chapterService  *chapters.Service
	bookmarkService *bookmarks.Service
	jobs            Jobs
}

func (h *handler) chapterInfo(c echo.Context) error {
	ctx := c.Request().Context()

	params := chapterParams{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	info, err := h.cache.ChapterInfo(ctx, params.ChapterID)
	if err != nil {
		return cacheError(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, info))
}

func (h *handler) chapterPage(c echo.Context) error {
	ctx := c.Request().Context()

	params := pageParams{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	entry, err := h.cache.Ensure(ctx, params.ChapterID)
	if err != nil {
		return cacheError(err)
	}

	p, last, err := h.cache.GetCachedPagePath(entry, params.Page)
	if errors.Is(err, pagecache.ErrPageMissing) {
		return h.pageMissing(ctx, params.ChapterID, err)
	}
	if err != nil {
		return cacheError(err)
	}

	c.Response().Header().Set("X-Page-Count", strconv.Itoa(entry.PageCount))
	c.Response().Header().Set("X-Last-Page", strconv.FormatBool(last))
	return h.serveChapterPage(c, params.ChapterID, p)
}

// serveChapterPage writes a cached chapter page. A page that vanished after
// it was looked up is handled like any other missing page.
func (h *handler) serveChapterPage(c echo.Context, chapterID int, p string) error {
	err := servePage(c, p)
	if errors.Is(err, echo.ErrNotFound) {
		return h.pageMissing(c.Request().Context(), chapterID, errors.Wrap(pagecache.ErrPageMissing, p))
	}
	return err
}

// pageMissing drops the chapter's cache entry so the next request
// re-extracts it.
func (h *handler) pageMissing(ctx context.Context, chapterID int, err error) error {
	logger.FromContext(ctx).Err(err).Warn("cached page is gone", logger.Data{"chapter_id": chapterID})
	h.cache.CleanupChapters(ctx, []int{chapterID})
	return cacheError(err)
}

func (h *handler) createBookmark(c echo.Context) error {
	ctx := c.Request().Context()

	params := bookmarkPageParams{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	chapter, err := h.chapterService.RetrieveChapter(ctx, params.ChapterID)
	if err != nil {
		return errors.WithStack(err)
	}

	entry, err := h.cache.Ensure(ctx, params.ChapterID)
	if err != nil {
		return cacheError(err)
	}
	p, _, err := h.cache.GetCachedPagePath(entry, params.Page)
	if err != nil {
		return cacheError(err)
	}
	// Reads clamp, bookmarks don't.
	if params.Page >= entry.PageCount {
		return errcodes.BadRequest("Page out of range")
	}

	bookmark := &models.Bookmark{
		UserID:    params.UserID,
		SeriesID:  chapter.SeriesID,
		ChapterID: chapter.ID,
		Page:      params.Page,
	}
	if err := h.bookmarkService.CreateBookmark(ctx, bookmark, p); err != nil {
		return errors.WithStack(err)
	}
	h.jobs.EnqueueBookmarkCleanup(ctx, []int{bookmark.SeriesID})

	return errors.WithStack(c.JSON(http.StatusCreated, bookmark))
}

func (h *handler) deleteBookmark(c echo.Context) error {
	ctx := c.Request().Context()

	params := bookmarkParams{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	bookmark, err := h.bookmarkService.DeleteBookmark(ctx, params.BookmarkID)
	if err != nil {
		return errors.WithStack(err)
	}
	h.jobs.EnqueueBookmarkCleanup(ctx, []int{bookmark.SeriesID})

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

func (h *handler) cleanupChapter(c echo.Context) error {
	params := chapterParams{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	h.jobs.EnqueueChapterCleanup(c.Request().Context(), []int{params.ChapterID})

	return errors.WithStack(c.NoContent(http.StatusAccepted))
}

func (h *handler) cacheBookmarks(c echo.Context) error {
	ctx := c.Request().Context()

	params := seriesUserParams{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	count, err := h.cache.CacheBookmarkForSeries(ctx, params.UserID, params.SeriesID)
	if err != nil {
		return cacheError(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, map[string]any{
		"series_id":  params.SeriesID,
		"page_count": count,
	}))
}

func (h *handler) bookmarkPage(c echo.Context) error {
	params := seriesPageParams{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	p, err := h.cache.GetCachedBookmarkPagePath(params.UserID, params.SeriesID, params.Page)
	if err != nil {
		return cacheError(err)
	}

	return servePage(c, p)
}

func (h *handler) cleanupBookmarks(c echo.Context) error {
	params := seriesParams{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	h.jobs.EnqueueBookmarkCleanup(c.Request().Context(), []int{params.SeriesID})

	return errors.WithStack(c.NoContent(http.StatusAccepted))
}

func (h *handler) clearCache(c echo.Context) error {
	h.jobs.EnqueueClearAll(c.Request().Context())
	return errors.WithStack(c.NoContent(http.StatusAccepted))
}

func (h *handler) stats(c echo.Context) error {
	stats, err := h.cache.Stats()
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(c.JSON(http.StatusOK, stats))
}

// servePage writes a cached page file.
func servePage(c echo.Context, p string) error {
	c.Response().Header().Set(echo.HeaderContentType, pagecache.ContentType(p))
	c.Response().Header().Set("Cache-Control", "private, max-age=86400")
	return errors.WithStack(c.File(p))
}
