package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE bookmarks (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				user_id INTEGER NOT NULL,
				series_id INTEGER NOT NULL REFERENCES series(id) ON DELETE CASCADE,
				chapter_id INTEGER NOT NULL REFERENCES chapters(id) ON DELETE CASCADE,
				page INTEGER NOT NULL,
				file_name TEXT NOT NULL
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		// One bookmark per page per user
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_bookmarks_user_chapter_page ON bookmarks(user_id, chapter_id, page)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`CREATE INDEX ix_bookmarks_user_series ON bookmarks(user_id, series_id)`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec("DROP TABLE IF EXISTS bookmarks")
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
