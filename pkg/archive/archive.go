package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// DefaultMaxEntryBytes caps the uncompressed size of a single entry.
const DefaultMaxEntryBytes int64 = 256 * 1024 * 1024

// Source is one file backing a chapter.
type Source struct {
	// Path is the absolute path of the file in the library.
	Path string
	// Format is the format recorded for the file by the library, such as
	// "archive", "epub", "pdf" or "image". It may be empty.
	Format string
}

// Result describes a finished extraction.
type Result struct {
	// EntryCount is the number of files written to the destination.
	EntryCount int
	// Kind is the kind of the first source.
	Kind Kind
	// ContentOrder is the reading order of EPUB content documents, relative to
	// the destination. It is empty for every other kind.
	ContentOrder []string
}

// Options tune an Extractor.
type Options struct {
	// MaxEntryBytes caps the uncompressed size of each entry. Zero means
	// DefaultMaxEntryBytes.
	MaxEntryBytes int64
}

// Extractor unpacks chapter files into directories.
type Extractor struct {
	maxEntryBytes int64
}

// extractor unpacks a single source of one kind into dest.
type extractor interface {
	extract(ctx context.Context, w *writer, src string) (*partResult, error)
}

type partResult struct {
	contentOrder []string
}

var extractors = map[Kind]extractor{
	KindZip:   zipExtractor{},
	KindRar:   rarExtractor{},
	Kind7z:    sevenZipExtractor{},
	KindEpub:  epubExtractor{},
	KindPDF:   pdfExtractor{},
	KindImage: imageExtractor{},
}

// New returns an Extractor configured with opts.
func New(opts Options) *Extractor {
	maxBytes := opts.MaxEntryBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxEntryBytes
	}
	return &Extractor{maxEntryBytes: maxBytes}
}

// Extract unpacks sources into dest using the default options.
func Extract(ctx context.Context, sources []Source, dest string) (*Result, error) {
	return New(Options{}).Extract(ctx, sources, dest)
}

// Extract unpacks every source into dest. A single source is unpacked directly
// into dest. With several sources, source i is unpacked into a zero-padded
// subdirectory so that natural ordering keeps the parts in sequence. On any
// failure dest is removed entirely.
func (e *Extractor) Extract(ctx context.Context, sources []Source, dest string) (result *Result, err error) {
	log := logger.FromContext(ctx)

	if len(sources) == 0 {
		return nil, errors.WithStack(ErrNoSources)
	}

	kinds := make([]Kind, len(sources))
	for i, src := range sources {
		kinds[i], err = DetectKind(src.Path, src.Format)
		if err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return nil, &extractError{path: dest, err: errors.WithStack(err)}
	}
	defer func() {
		if err != nil {
			if rmErr := os.RemoveAll(dest); rmErr != nil {
				log.Err(rmErr).Warn("failed to remove partial extraction", logger.Data{"dest": dest})
			}
		}
	}()

	start := time.Now()
	result = &Result{Kind: kinds[0]}
	width := len(strconv.Itoa(len(sources) - 1))
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, &extractError{path: src.Path, err: errors.WithStack(err)}
		}

		partDir, prefix := dest, ""
		if len(sources) > 1 {
			prefix = fmt.Sprintf("%0*d", width, i)
			partDir = filepath.Join(dest, prefix)
		}

		w := &writer{dest: partDir, maxEntryBytes: e.maxEntryBytes}
		part, err := extractors[kinds[i]].extract(ctx, w, src.Path)
		if err != nil {
			return nil, &extractError{path: src.Path, err: err}
		}

		result.EntryCount += w.count
		for _, rel := range part.contentOrder {
			if prefix != "" {
				rel = path.Join(prefix, rel)
			}
			result.ContentOrder = append(result.ContentOrder, rel)
		}
	}

	log.Debug("extracted chapter files", logger.Data{
		"dest":     dest,
		"sources":  len(sources),
		"entries":  result.EntryCount,
		"kind":     result.Kind,
		"duration": time.Since(start).String(),
	})

	return result, nil
}
