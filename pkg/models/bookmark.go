package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Bookmark is a page a user saved. The image of the page is copied into the
// bookmarks directory when the bookmark is made, so FileName stays readable
// after the chapter cache is cleared.
type Bookmark struct {
	bun.BaseModel `bun:"table:bookmarks,alias:bm"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UserID    int       `bun:",nullzero" json:"user_id"`
	SeriesID  int       `bun:",nullzero" json:"series_id"`
	ChapterID int       `bun:",nullzero" json:"chapter_id"`
	Page      int       `bun:",notnull" json:"page"`
	FileName  string    `bun:",nullzero" json:"file_name"`
}
