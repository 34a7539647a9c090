package reader

import (
	"github.com/pkg/errors"
	"github.com/tankobon/tankobon/pkg/errcodes"
	"github.com/tankobon/tankobon/pkg/pagecache"
)

// cacheError converts page cache errors into HTTP errors.
func cacheError(err error) error {
	switch {
	case errors.Is(err, pagecache.ErrChapterNotFound):
		return errcodes.NotFound("Chapter")
	case errors.Is(err, pagecache.ErrUnsupportedFormat):
		return errcodes.UnsupportedMediaType()
	case errors.Is(err, pagecache.ErrNoReadablePages):
		return errcodes.NoReadablePages()
	case errors.Is(err, pagecache.ErrPageMissing):
		return errcodes.PageMissing()
	case errors.Is(err, pagecache.ErrExtractionFailed):
		return errcodes.ExtractionFailed()
	}
	return errors.WithStack(err)
}
