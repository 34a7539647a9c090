package archive

import (
	"github.com/pkg/errors"
)

var (
	// ErrUnsupportedFormat is returned when a file is not a kind that can be
	// extracted.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrExtractionFailed is returned when a file could not be read or
	// written.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrNoSources is returned when there is nothing to extract.
	ErrNoSources = errors.New("no files to extract")

	errUnsafePath    = errors.New("entry escapes the destination")
	errEntryTooLarge = errors.New("entry exceeds the maximum size")
)

// extractError reports a failed extraction. It matches both
// ErrExtractionFailed and the underlying cause.
type extractError struct {
	path string
	err  error
}

func (e *extractError) Error() string {
	return "failed to extract " + e.path + ": " + e.err.Error()
}

func (e *extractError) Unwrap() []error {
	return []error{ErrExtractionFailed, e.err}
}
