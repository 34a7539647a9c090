package reader

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/tankobon/tankobon/pkg/bookmarks"
	"github.com/tankobon/tankobon/pkg/chapters"
	"github.com/tankobon/tankobon/pkg/pagecache"
)

// Jobs queues cache maintenance in the background.
type Jobs interface {
	EnqueueChapterCleanup(ctx context.Context, chapterIDs []int)
	EnqueueBookmarkCleanup(ctx context.Context, seriesIDs []int)
	EnqueueClearAll(ctx context.Context)
}

func RegisterRoutes(e *echo.Echo, cache *pagecache.Cache, chapterService *chapters.Service, bookmarkService *bookmarks.Service, jobs Jobs) {
	h := &handler{
		cache:           cache,
		chapterService:  chapterService,
		bookmarkService: bookmarkService,
		jobs:            jobs,
	}

	chapterGroup := e.Group("/chapters")
	chapterGroup.GET("/:id/info", h.chapterInfo)
	chapterGroup.GET("/:id/pages/:page", h.chapterPage)
	chapterGroup.POST("/:id/pages/:page/bookmark", h.createBookmark, allowEmptyBody)
	chapterGroup.DELETE("/:id/cache", h.cleanupChapter)

	e.DELETE("/bookmarks/:id", h.deleteBookmark)

	seriesGroup := e.Group("/series")
	seriesGroup.POST("/:seriesId/bookmarks/cache", h.cacheBookmarks, allowEmptyBody)
	seriesGroup.GET("/:seriesId/bookmarks/pages/:page", h.bookmarkPage)
	seriesGroup.DELETE("/:seriesId/bookmarks/cache", h.cleanupBookmarks)

	cacheGroup := e.Group("/cache")
	cacheGroup.DELETE("", h.clearCache)
	cacheGroup.GET("/stats", h.stats)
}

// allowEmptyBody marks routes that take their input from the path and query.
func allowEmptyBody(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Set("allow_empty_body", true)
		return next(c)
	}
}
