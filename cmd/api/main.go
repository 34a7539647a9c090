package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/tankobon/tankobon/pkg/bookmarks"
	"github.com/tankobon/tankobon/pkg/chapters"
	"github.com/tankobon/tankobon/pkg/config"
	"github.com/tankobon/tankobon/pkg/database"
	"github.com/tankobon/tankobon/pkg/migrations"
	"github.com/tankobon/tankobon/pkg/pagecache"
	"github.com/tankobon/tankobon/pkg/server"
	"github.com/tankobon/tankobon/pkg/version"
	"github.com/tankobon/tankobon/pkg/worker"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting tankobon", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	for _, dir := range []string{cfg.CacheDir, cfg.BookmarksDir} {
		if err := checkWritable(dir); err != nil {
			log.Err(err).Fatal("directory error")
		}
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// The chapter service and the worker need each other, so the worker is
	// attached once the cache exists.
	cleaner := &deferredCleaner{}
	chapterService := chapters.NewService(db, cfg.BookmarksDir, cleaner)
	bookmarkService := bookmarks.NewService(db, cfg)

	cache, err := pagecache.New(pagecache.Options{
		Dir:                cfg.CacheDir,
		BookmarksDir:       cfg.BookmarksDir,
		Chapters:           chapterService,
		Bookmarks:          bookmarkService,
		ExtractTimeout:     cfg.ExtractTimeout,
		MaxEntryBytes:      cfg.MaxEntryBytes(),
		CleanupConcurrency: cfg.CleanupConcurrency,
		Metrics:            pagecache.NewMetrics(reg),
	})
	if err != nil {
		log.Err(err).Fatal("page cache error")
	}

	removed, err := cache.SweepStaging(log.WithContext(ctx))
	if err != nil {
		log.Err(err).Warn("staging sweep error")
	}
	log.Info("page cache initialized", logger.Data{"path": cache.Dir(), "swept": removed})

	wrkr := worker.New(cfg, cache)
	cleaner.worker = wrkr

	srv, err := server.New(cfg, server.Services{
		Cache:     cache,
		Chapters:  chapterService,
		Bookmarks: bookmarkService,
		Jobs:      wrkr,
		Gatherer:  reg,
	})
	if err != nil {
		log.Err(err).Fatal("server error")
	}

	graceful := signals.Setup()

	go func() {
		lc := net.ListenConfig{}
		listener, err := lc.Listen(ctx, "tcp", srv.Addr)
		if err != nil {
			log.Err(err).Fatal("failed to bind port")
		}
		log.Info("server started", logger.Data{"addr": listener.Addr().String()})

		err = srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	wrkr.Start()
	log.Info("worker started")

	<-graceful
	log.Info("starting graceful shutdown")

	err = srv.Shutdown(ctx)
	if err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")

	wrkr.Shutdown()
	log.Info("worker shutdown")

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}

type deferredCleaner struct {
	worker *worker.Worker
}

func (d *deferredCleaner) EnqueueChapterCleanup(ctx context.Context, chapterIDs []int) {
	if d.worker != nil {
		d.worker.EnqueueChapterCleanup(ctx, chapterIDs)
	}
}

func (d *deferredCleaner) EnqueueBookmarkCleanup(ctx context.Context, seriesIDs []int) {
	if d.worker != nil {
		d.worker.EnqueueBookmarkCleanup(ctx, seriesIDs)
	}
}

// checkWritable creates dir if needed and verifies it can be written to.
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory: %s", dir)
	}

	testFile := filepath.Join(dir, ".write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return errors.Wrapf(err, "directory is not writable: %s", dir)
	}
	f.Close()

	if err := os.Remove(testFile); err != nil {
		return errors.Wrapf(err, "failed to clean up write test file: %s", testFile)
	}

	return nil
}
