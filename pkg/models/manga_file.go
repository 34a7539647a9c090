package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	MangaFormatArchive = "archive"
	MangaFormatEpub    = "epub"
	MangaFormatPDF     = "pdf"
	MangaFormatImage   = "image"
)

// MangaFile is one file on disk backing a chapter. Chapters split across
// several files are read in SortOrder.
type MangaFile struct {
	bun.BaseModel `bun:"table:manga_files,alias:mf"`

	ID            int       `bun:",pk,nullzero" json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	ChapterID     int       `bun:",nullzero" json:"chapter_id"`
	Filepath      string    `bun:",nullzero" json:"filepath"`
	Format        string    `bun:",nullzero" json:"format"`
	SortOrder     int       `bun:",notnull" json:"sort_order"`
	FilesizeBytes int64     `json:"filesize_bytes"`
}
