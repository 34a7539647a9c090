package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tankobon/tankobon/pkg/bookmarks"
	"github.com/tankobon/tankobon/pkg/chapters"
	"github.com/tankobon/tankobon/pkg/config"
	"github.com/tankobon/tankobon/pkg/pagecache"
	"github.com/tankobon/tankobon/pkg/testutils"
)

type noopJobs struct{}

func (noopJobs) EnqueueChapterCleanup(context.Context, []int)  {}
func (noopJobs) EnqueueBookmarkCleanup(context.Context, []int) {}
func (noopJobs) EnqueueClearAll(context.Context)               {}

func newTestServer(t *testing.T) *http.Server {
	t.Helper()
	root := t.TempDir()
	db := testutils.NewDB(t)

	cfg := config.NewForTest()
	cfg.CacheDir = filepath.Join(root, "cache")
	cfg.BookmarksDir = filepath.Join(root, "bookmarks")

	reg := prometheus.NewRegistry()
	chapterService := chapters.NewService(db, cfg.BookmarksDir, nil)
	bookmarkService := bookmarks.NewService(db, cfg)
	cache, err := pagecache.New(pagecache.Options{
		Dir:          cfg.CacheDir,
		BookmarksDir: cfg.BookmarksDir,
		Chapters:     chapterService,
		Bookmarks:    bookmarkService,
		Metrics:      pagecache.NewMetrics(reg),
	})
	require.NoError(t, err)

	srv, err := New(cfg, Services{
		Cache:     cache,
		Chapters:  chapterService,
		Bookmarks: bookmarkService,
		Jobs:      noopJobs{},
		Gatherer:  reg,
	})
	require.NoError(t, err)
	return srv
}

func TestNew(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	assert.Equal(t, "127.0.0.1:3689", srv.Addr)

	t.Run("metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "tankobon_pagecache_cache_hits_total")
	})

	t.Run("stats", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cache/stats", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown route", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), `"code":"not_found"`)
	})
}
