package pagecache

import (
	"context"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/tankobon/tankobon/pkg/archive"
	"github.com/tankobon/tankobon/pkg/pageindex"
	_ "golang.org/x/image/webp" // register decoder
)

// GetCachedPagePath returns the file of a page of entry. Out of range page
// numbers are clamped to the first or last page. isLastPage reports whether
// the returned page is the last one. If the file has gone missing the error
// matches ErrPageMissing and the caller should clean up the chapter.
func (c *Cache) GetCachedPagePath(entry *Entry, page int) (string, bool, error) {
	if entry == nil || entry.PageCount == 0 {
		return "", false, errors.WithStack(ErrNoReadablePages)
	}

	page = clamp(page, entry.PageCount)
	p, err := entry.page(page)
	if err != nil {
		return "", false, err
	}

	if _, err := os.Stat(p.Path); err != nil {
		if os.IsNotExist(err) {
			return "", false, errors.Wrapf(ErrPageMissing, "page %d (%s)", page, p.Rel)
		}
		return "", false, errors.WithStack(err)
	}

	return p.Path, page == entry.PageCount-1, nil
}

func clamp(page, count int) int {
	if page < 0 {
		return 0
	}
	if page >= count {
		return count - 1
	}
	return page
}

func (e *Entry) page(i int) (pageindex.Page, error) {
	if i < 0 || i >= len(e.Pages) {
		return pageindex.Page{}, errors.Wrapf(ErrPageOutOfRange, "page %d of %d", i, len(e.Pages))
	}
	return e.Pages[i], nil
}

// PageFormat returns the extension of a page file without the dot.
func PageFormat(p string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(p)), ".")
}

// ContentType detects the MIME type of a cached file.
func ContentType(p string) string {
	mtype, err := mimetype.DetectFile(p)
	if err != nil {
		return "application/octet-stream"
	}
	return mtype.String()
}

// ResourcePath resolves a path inside an entry, such as a stylesheet or image
// referenced by an EPUB content document. Paths leaving the entry are
// rejected.
func (c *Cache) ResourcePath(entry *Entry, rel string) (string, error) {
	if entry == nil {
		return "", errors.WithStack(ErrNoReadablePages)
	}

	rel = strings.ReplaceAll(rel, "\\", "/")
	clean := path.Clean("/" + rel)[1:]
	if clean == "" || clean == metadataFilename || pageindex.IsBlacklisted(clean) {
		return "", errors.Wrapf(ErrPageMissing, "resource %q", rel)
	}

	p := filepath.Join(entry.Dir, filepath.FromSlash(clean))
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return "", errors.Wrapf(ErrPageMissing, "resource %q", rel)
	}
	return p, nil
}

// PageDimension is the size of a single page image.
type PageDimension struct {
	PageNumber int    `json:"page_number"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	IsWide     bool   `json:"is_wide"`
	FileName   string `json:"file_name"`
}

// PageDimensions reads the size of every page of entry. Pages in a format
// that cannot be decoded, such as AVIF or EPUB content documents, report zero
// dimensions.
func (c *Cache) PageDimensions(ctx context.Context, entry *Entry) ([]PageDimension, error) {
	log := logger.FromContext(ctx)

	dims := make([]PageDimension, 0, len(entry.Pages))
	for i, p := range entry.Pages {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}

		dim := PageDimension{PageNumber: i, FileName: path.Base(p.Rel)}
		if entry.Kind != archive.KindEpub {
			w, h, err := decodeSize(p.Path)
			if err != nil {
				log.Debug("could not read page size", logger.Data{"path": p.Path, "error": err.Error()})
			}
			dim.Width, dim.Height = w, h
			dim.IsWide = w > h
		}
		dims = append(dims, dim)
	}
	return dims, nil
}

func decodeSize(p string) (int, int, error) {
	f, err := os.Open(p)
	if err != nil {
		return 0, 0, errors.WithStack(err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, errors.WithStack(err)
	}
	return cfg.Width, cfg.Height, nil
}

// Info summarizes an extracted chapter.
type Info struct {
	ChapterID int             `json:"chapter_id"`
	Kind      archive.Kind    `json:"kind"`
	PageCount int             `json:"page_count"`
	Pages     []PageDimension `json:"pages"`
}

// ChapterInfo ensures the chapter is extracted and describes its pages.
func (c *Cache) ChapterInfo(ctx context.Context, chapterID int) (*Info, error) {
	entry, err := c.Ensure(ctx, chapterID)
	if err != nil {
		return nil, err
	}

	dims, err := c.PageDimensions(ctx, entry)
	if err != nil {
		return nil, err
	}

	return &Info{
		ChapterID: chapterID,
		Kind:      entry.Kind,
		PageCount: entry.PageCount,
		Pages:     dims,
	}, nil
}
