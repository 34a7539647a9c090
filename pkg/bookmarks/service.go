package bookmarks

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/tankobon/tankobon/pkg/config"
	"github.com/tankobon/tankobon/pkg/database"
	"github.com/tankobon/tankobon/pkg/errcodes"
	"github.com/tankobon/tankobon/pkg/fileutils"
	"github.com/tankobon/tankobon/pkg/models"
	"github.com/uptrace/bun"
)

type ListBookmarksOptions struct {
	UserID   *int
	SeriesID *int
	Limit    *int
	Offset   *int
}

type Service struct {
	db         *bun.DB
	dir        string
	maxRetries int
}

func NewService(db *bun.DB, cfg *config.Config) *Service {
	return &Service{db: db, dir: cfg.BookmarksDir, maxRetries: cfg.DatabaseMaxRetries}
}

// Dir is the directory bookmark images are stored in.
func (svc *Service) Dir() string {
	return svc.dir
}

// fileName is the location of a bookmark image relative to the bookmarks
// directory.
func fileName(b *models.Bookmark, ext string) string {
	return path.Join(
		strconv.Itoa(b.UserID),
		strconv.Itoa(b.SeriesID),
		strconv.Itoa(b.ChapterID),
		fmt.Sprintf("%04d%s", b.Page, ext),
	)
}

// CreateBookmark saves a bookmark and copies the page image at src into the
// bookmarks directory. Bookmarking a page twice returns the existing
// bookmark.
func (svc *Service) CreateBookmark(ctx context.Context, bookmark *models.Bookmark, src string) error {
	existing := &models.Bookmark{}
	err := svc.db.NewSelect().
		Model(existing).
		Where("bm.user_id = ?", bookmark.UserID).
		Where("bm.chapter_id = ?", bookmark.ChapterID).
		Where("bm.page = ?", bookmark.Page).
		Scan(ctx)
	if err == nil {
		*bookmark = *existing
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return errors.WithStack(err)
	}

	if bookmark.CreatedAt.IsZero() {
		bookmark.CreatedAt = time.Now()
	}
	bookmark.FileName = fileName(bookmark, filepath.Ext(src))

	dst := filepath.Join(svc.dir, filepath.FromSlash(bookmark.FileName))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.WithStack(err)
	}
	if err := fileutils.CopyFile(src, dst); err != nil {
		return errors.Wrap(err, "failed to copy bookmarked page")
	}

	err = database.WithRetry(ctx, svc.maxRetries, func() error {
		_, err := svc.db.NewInsert().Model(bookmark).Returning("*").Exec(ctx)
		return err
	})
	if err != nil {
		_ = os.Remove(dst)
		return errors.WithStack(err)
	}
	return nil
}

func (svc *Service) RetrieveBookmark(ctx context.Context, id int) (*models.Bookmark, error) {
	bookmark := &models.Bookmark{}
	err := svc.db.NewSelect().
		Model(bookmark).
		Where("bm.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Bookmark")
		}
		return nil, errors.WithStack(err)
	}
	return bookmark, nil
}

// ListBookmarks returns bookmarks ordered by chapter and page.
func (svc *Service) ListBookmarks(ctx context.Context, opts ListBookmarksOptions) ([]*models.Bookmark, error) {
	var bookmarks []*models.Bookmark
	q := svc.db.NewSelect().
		Model(&bookmarks).
		Order("bm.chapter_id ASC", "bm.page ASC", "bm.id ASC")
	if opts.UserID != nil {
		q = q.Where("bm.user_id = ?", *opts.UserID)
	}
	if opts.SeriesID != nil {
		q = q.Where("bm.series_id = ?", *opts.SeriesID)
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	return bookmarks, nil
}

// SeriesBookmarks lists the bookmarks a user made in a series.
func (svc *Service) SeriesBookmarks(ctx context.Context, userID, seriesID int) ([]*models.Bookmark, error) {
	return svc.ListBookmarks(ctx, ListBookmarksOptions{UserID: &userID, SeriesID: &seriesID})
}

// DeleteBookmark removes a bookmark and its image.
func (svc *Service) DeleteBookmark(ctx context.Context, id int) (*models.Bookmark, error) {
	bookmark, err := svc.RetrieveBookmark(ctx, id)
	if err != nil {
		return nil, err
	}

	err = database.WithRetry(ctx, svc.maxRetries, func() error {
		_, err := svc.db.NewDelete().Model(bookmark).WherePK().Exec(ctx)
		return err
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	err = os.Remove(filepath.Join(svc.dir, filepath.FromSlash(bookmark.FileName)))
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.WithStack(err)
	}
	return bookmark, nil
}
