package pagecache

import (
	"github.com/pkg/errors"
	"github.com/tankobon/tankobon/pkg/archive"
)

var (
	// ErrUnsupportedFormat is returned when a chapter file cannot be read.
	ErrUnsupportedFormat = archive.ErrUnsupportedFormat
	// ErrExtractionFailed is returned when a chapter could not be extracted,
	// or when it was cleaned up while the extraction was running.
	ErrExtractionFailed = archive.ErrExtractionFailed
	// ErrNoReadablePages is returned when an entry holds no pages.
	ErrNoReadablePages = errors.New("no readable pages")
	// ErrPageOutOfRange is returned by strict page lookups. The public page
	// accessors clamp instead.
	ErrPageOutOfRange = errors.New("page out of range")
	// ErrPageMissing is returned when a cached page was removed from disk.
	// Callers should clean up the chapter so the next read re-extracts it.
	ErrPageMissing = errors.New("cached page is missing")
	// ErrChapterNotFound is returned when the chapter does not exist.
	ErrChapterNotFound = errors.New("chapter not found")
)

// failure reports an error that should be treated as a failed extraction. It
// matches both ErrExtractionFailed and the underlying cause.
type failure struct {
	msg string
	err error
}

func wrapFailure(err error, msg string) error {
	return &failure{msg: msg, err: err}
}

func (f *failure) Error() string {
	return f.msg + ": " + f.err.Error()
}

func (f *failure) Unwrap() []error {
	return []error{ErrExtractionFailed, f.err}
}
