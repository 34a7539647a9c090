package reader

type chapterParams struct {
	ChapterID int `param:"id" validate:"min=1"`
}

type pageParams struct {
	ChapterID int `param:"id" validate:"min=1"`
	Page      int `param:"page"`
}

type bookmarkPageParams struct {
	ChapterID int `param:"id" validate:"min=1"`
	Page      int `param:"page" validate:"min=0"`
	UserID    int `query:"user_id" validate:"required,min=1"`
}

type bookmarkParams struct {
	BookmarkID int `param:"id" validate:"min=1"`
}

type seriesParams struct {
	SeriesID int `param:"seriesId" validate:"min=1"`
}

type seriesUserParams struct {
	SeriesID int `param:"seriesId" validate:"min=1"`
	UserID   int `query:"user_id" validate:"required,min=1"`
}

type seriesPageParams struct {
	SeriesID int `param:"seriesId" validate:"min=1"`
	Page     int `param:"page"`
	UserID   int `query:"user_id" validate:"required,min=1"`
}
