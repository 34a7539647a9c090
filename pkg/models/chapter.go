package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Chapter struct {
	bun.BaseModel `bun:"table:chapters,alias:ch"`

	ID        int          `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	SeriesID  int          `bun:",nullzero" json:"series_id"`
	Series    *Series      `bun:"rel:belongs-to" json:"series,omitempty"`
	Number    string       `bun:",nullzero" json:"number"`
	Title     string       `json:"title"`
	SortOrder int          `bun:",notnull" json:"sort_order"`
	Files     []*MangaFile `bun:"rel:has-many,join:id=chapter_id" json:"files,omitempty"`
}
