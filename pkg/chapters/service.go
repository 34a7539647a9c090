package chapters

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/tankobon/tankobon/pkg/archive"
	"github.com/tankobon/tankobon/pkg/errcodes"
	"github.com/tankobon/tankobon/pkg/models"
	"github.com/tankobon/tankobon/pkg/pagecache"
	"github.com/uptrace/bun"
)

// CacheCleaner is told about chapters and bookmark sets whose cached pages
// are no longer valid.
type CacheCleaner interface {
	EnqueueChapterCleanup(ctx context.Context, chapterIDs []int)
	EnqueueBookmarkCleanup(ctx context.Context, seriesIDs []int)
}

type Service struct {
	db           *bun.DB
	bookmarksDir string
	cleaner      CacheCleaner
}

// NewService creates a chapter service. Images of bookmarks on deleted
// chapters are removed from bookmarksDir. cleaner may be nil, in which case
// deleted chapters leave their cache entries behind until the cache is
// cleared.
func NewService(db *bun.DB, bookmarksDir string, cleaner CacheCleaner) *Service {
	return &Service{db: db, bookmarksDir: bookmarksDir, cleaner: cleaner}
}

func (svc *Service) CreateChapter(ctx context.Context, chapter *models.Chapter) error {
	now := time.Now()
	if chapter.CreatedAt.IsZero() {
		chapter.CreatedAt = now
	}
	chapter.UpdatedAt = chapter.CreatedAt

	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(chapter).Returning("*").Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		for i, file := range chapter.Files {
			file.ChapterID = chapter.ID
			file.SortOrder = i
			file.CreatedAt = chapter.CreatedAt
			file.UpdatedAt = chapter.CreatedAt
			_, err := tx.NewInsert().Model(file).Returning("*").Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	})
}

func (svc *Service) retrieveChapter(ctx context.Context, id int) (*models.Chapter, error) {
	chapter := &models.Chapter{}
	err := svc.db.NewSelect().
		Model(chapter).
		Relation("Files", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("mf.sort_order ASC", "mf.id ASC")
		}).
		Where("ch.id = ?", id).
		Scan(ctx)
	return chapter, err
}

// RetrieveChapter returns a chapter with its files in reading order.
func (svc *Service) RetrieveChapter(ctx context.Context, id int) (*models.Chapter, error) {
	chapter, err := svc.retrieveChapter(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Chapter")
		}
		return nil, errors.WithStack(err)
	}
	return chapter, nil
}

// ChapterSources resolves a chapter to the files the page cache extracts.
func (svc *Service) ChapterSources(ctx context.Context, chapterID int) ([]archive.Source, error) {
	chapter, err := svc.retrieveChapter(ctx, chapterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(pagecache.ErrChapterNotFound, "chapter %d", chapterID)
		}
		return nil, errors.WithStack(err)
	}

	sources := make([]archive.Source, 0, len(chapter.Files))
	for _, f := range chapter.Files {
		sources = append(sources, archive.Source{Path: f.Filepath, Format: f.Format})
	}
	return sources, nil
}

// ListChapters returns the chapters of a series in reading order.
func (svc *Service) ListChapters(ctx context.Context, seriesID int) ([]*models.Chapter, error) {
	var chapters []*models.Chapter
	err := svc.db.NewSelect().
		Model(&chapters).
		Where("ch.series_id = ?", seriesID).
		Order("ch.sort_order ASC", "ch.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return chapters, nil
}

// DeleteChapters removes chapters with their files and bookmarks. The
// bookmark images are deleted from disk, and the chapter ids and the series
// that lost bookmarks are handed to the cache cleaner.
func (svc *Service) DeleteChapters(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return nil
	}

	var bookmarks []*models.Bookmark
	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().
			Model(&bookmarks).
			Where("bm.chapter_id IN (?)", bun.In(ids)).
			Scan(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = tx.NewDelete().
			Model((*models.MangaFile)(nil)).
			Where("chapter_id IN (?)", bun.In(ids)).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = tx.NewDelete().
			Model((*models.Bookmark)(nil)).
			Where("chapter_id IN (?)", bun.In(ids)).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = tx.NewDelete().
			Model((*models.Chapter)(nil)).
			Where("id IN (?)", bun.In(ids)).
			Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return err
	}

	log := logger.FromContext(ctx)
	var seriesIDs []int
	seen := map[int]bool{}
	for _, b := range bookmarks {
		if !seen[b.SeriesID] {
			seen[b.SeriesID] = true
			seriesIDs = append(seriesIDs, b.SeriesID)
		}
		if svc.bookmarksDir == "" || b.FileName == "" {
			continue
		}
		p := filepath.Join(svc.bookmarksDir, filepath.FromSlash(b.FileName))
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.Err(err).Warn("failed to remove bookmark image", logger.Data{"path": p})
		}
	}

	if svc.cleaner != nil {
		svc.cleaner.EnqueueChapterCleanup(ctx, ids)
		if len(seriesIDs) > 0 {
			svc.cleaner.EnqueueBookmarkCleanup(ctx, seriesIDs)
		}
	}
	return nil
}
