// Package testutils holds fixtures shared by package tests: a migrated
// in-memory database and builders for series, chapters and archives.
package testutils

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
	"github.com/tankobon/tankobon/pkg/config"
	"github.com/tankobon/tankobon/pkg/database"
	"github.com/tankobon/tankobon/pkg/migrations"
	"github.com/tankobon/tankobon/pkg/models"
	"github.com/uptrace/bun"
)

// NewDB returns a migrated in-memory database that is closed when the test
// ends.
func NewDB(t *testing.T) *bun.DB {
	t.Helper()

	cfg := config.NewForTest()
	cfg.DatabaseConnectRetryCount = 1

	db, err := database.New(cfg)
	require.NoError(t, err)

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// CreateSeries inserts a series.
func CreateSeries(t *testing.T, db *bun.DB, name string) *models.Series {
	t.Helper()
	now := time.Now()
	series := &models.Series{CreatedAt: now, UpdatedAt: now, Name: name}
	_, err := db.NewInsert().Model(series).Returning("*").Exec(context.Background())
	require.NoError(t, err)
	return series
}

// CreateChapter inserts a chapter backed by the given archive files, in
// order.
func CreateChapter(t *testing.T, db *bun.DB, seriesID int, paths ...string) *models.Chapter {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	chapter := &models.Chapter{CreatedAt: now, UpdatedAt: now, SeriesID: seriesID, Title: filepath.Base(t.Name())}
	_, err := db.NewInsert().Model(chapter).Returning("*").Exec(ctx)
	require.NoError(t, err)

	for i, p := range paths {
		file := &models.MangaFile{
			CreatedAt: now,
			UpdatedAt: now,
			ChapterID: chapter.ID,
			Filepath:  p,
			Format:    models.MangaFormatArchive,
			SortOrder: i,
		}
		if info, err := os.Stat(p); err == nil {
			file.FilesizeBytes = info.Size()
		}
		_, err := db.NewInsert().Model(file).Returning("*").Exec(ctx)
		require.NoError(t, err)
		chapter.Files = append(chapter.Files, file)
	}

	return chapter
}

// ZipEntry is one file written by WriteZip.
type ZipEntry struct {
	Name    string
	Content []byte
}

// WriteZip writes a zip archive with the given entries to path.
func WriteZip(t *testing.T, path string, entries ...ZipEntry) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		require.NoError(t, err)
		_, err = w.Write(e.Content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

// PNG encodes a blank w by h image.
func PNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
