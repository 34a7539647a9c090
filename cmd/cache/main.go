package main

import (
	"context"
	"fmt"
	"os"

	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/tankobon/tankobon/pkg/bookmarks"
	"github.com/tankobon/tankobon/pkg/chapters"
	"github.com/tankobon/tankobon/pkg/config"
	"github.com/tankobon/tankobon/pkg/database"
	"github.com/tankobon/tankobon/pkg/pagecache"
	"github.com/urfave/cli/v2"
)

func main() {
	log := logger.New()

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}
	defer db.Close()

	cache, err := pagecache.New(pagecache.Options{
		Dir:                cfg.CacheDir,
		BookmarksDir:       cfg.BookmarksDir,
		Chapters:           chapters.NewService(db, cfg.BookmarksDir, nil),
		Bookmarks:          bookmarks.NewService(db, cfg),
		ExtractTimeout:     cfg.ExtractTimeout,
		MaxEntryBytes:      cfg.MaxEntryBytes(),
		CleanupConcurrency: cfg.CleanupConcurrency,
	})
	if err != nil {
		log.Err(err).Fatal("page cache error")
	}

	app := &cli.App{
		Name:  "cache",
		Usage: "CLI to maintain the page cache",
		Commands: []*cli.Command{
			{
				Name:  "clear",
				Usage: "remove every cached chapter and staged bookmark",
				Action: func(c *cli.Context) error {
					if err := cache.ClearAll(c.Context); err != nil {
						return err
					}
					fmt.Println("Cleared the page cache")
					return nil
				},
			},
			{
				Name:  "cleanup-chapters",
				Usage: "remove the cached pages of chapters",
				Flags: []cli.Flag{
					&cli.IntSliceFlag{Name: "id", Usage: "chapter id, repeatable", Required: true},
				},
				Action: func(c *cli.Context) error {
					ids := c.IntSlice("id")
					cache.CleanupChapters(c.Context, ids)
					fmt.Printf("Cleaned up %d chapter(s)\n", len(ids))
					return nil
				},
			},
			{
				Name:  "cleanup-bookmarks",
				Usage: "remove the staged bookmarks of series",
				Flags: []cli.Flag{
					&cli.IntSliceFlag{Name: "series", Usage: "series id, repeatable", Required: true},
				},
				Action: func(c *cli.Context) error {
					ids := c.IntSlice("series")
					cache.CleanupBookmarks(c.Context, ids)
					fmt.Printf("Cleaned up bookmarks of %d series\n", len(ids))
					return nil
				},
			},
			{
				Name:  "stats",
				Usage: "print cache usage",
				Action: func(c *cli.Context) error {
					stats, err := cache.Stats()
					if err != nil {
						return err
					}
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(stats)
				},
			},
			{
				Name:  "sweep",
				Usage: "remove abandoned staging directories",
				Action: func(c *cli.Context) error {
					removed, err := cache.SweepStaging(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("Removed %d staging director(ies)\n", removed)
					return nil
				},
			},
		},
	}
	if err := app.RunContext(log.WithContext(context.Background()), os.Args); err != nil {
		log.Err(err).Fatal("app run error")
	}
}
