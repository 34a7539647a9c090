package pageindex

import (
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ImageExtensions are the extensions recognized as comic pages.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".gif", ".avif"}

// ContentExtensions are the extensions recognized as EPUB content documents.
var ContentExtensions = []string{".xhtml", ".html", ".htm"}

// blacklistedFragments are path fragments written by archivers, NAS snapshot
// tools and other readers that never hold real pages.
var blacklistedFragments = []string{"__MACOSX", ".qpkg", ".yacreaderlibrary", ".caltrash"}

var blacklistedPrefixes = []string{"@Recently-Snapshot", "@recycle", "#recycle", "._"}

// Page is a single entry of a page index.
type Page struct {
	// Path is the absolute path of the page on disk.
	Path string `json:"-"`
	// Rel is the slash-separated path relative to the indexed directory. It is
	// also the natural sort key of the page.
	Rel string `json:"rel"`
}

// Options control which files Build considers pages.
type Options struct {
	// Content indexes EPUB content documents instead of images.
	Content bool
	// Order is an explicit reading order of relative paths (the EPUB spine).
	// Listed files come first in the given order, and anything else that
	// matches the filter is appended in natural order.
	Order []string
}

// IsImage reports whether name has an image extension.
func IsImage(name string) bool {
	return hasExtension(name, ImageExtensions)
}

// IsContent reports whether name has an EPUB content document extension.
func IsContent(name string) bool {
	return hasExtension(name, ContentExtensions)
}

// IsBlacklisted reports whether a relative path points into a folder or file
// that should never be treated as a page.
func IsBlacklisted(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, fragment := range blacklistedFragments {
		if strings.Contains(rel, fragment) {
			return true
		}
	}
	for _, prefix := range blacklistedPrefixes {
		if strings.HasPrefix(rel, prefix) || strings.HasPrefix(path.Base(rel), prefix) {
			return true
		}
	}
	return false
}

// Sort orders pages by their natural key. Pages with equal keys keep their
// relative order.
func Sort(pages []Page) {
	sort.SliceStable(pages, func(i, j int) bool {
		return Less(pages[i].Rel, pages[j].Rel)
	})
}

// Build walks dir and returns its pages in reading order. The page number of
// a file is its position in the returned slice. An empty slice is returned
// when no file matches, which callers treat as a chapter with no readable
// pages.
func Build(dir string, opts Options) ([]Page, error) {
	match := IsImage
	if opts.Content {
		match = IsContent
	}

	var pages []Page
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if IsBlacklisted(rel) || !match(rel) {
			return nil
		}
		pages = append(pages, Page{Path: p, Rel: rel})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to index %s", dir)
	}

	Sort(pages)

	if len(opts.Order) > 0 {
		pages = applyOrder(pages, opts.Order)
	}

	return pages, nil
}

// applyOrder moves the pages named in order to the front, in that order.
func applyOrder(pages []Page, order []string) []Page {
	byRel := make(map[string]int, len(pages))
	for i, p := range pages {
		byRel[p.Rel] = i
	}

	ordered := make([]Page, 0, len(pages))
	used := make(map[int]bool, len(order))
	for _, rel := range order {
		i, ok := byRel[path.Clean(rel)]
		if !ok || used[i] {
			continue
		}
		used[i] = true
		ordered = append(ordered, pages[i])
	}
	for i, p := range pages {
		if !used[i] {
			ordered = append(ordered, p)
		}
	}
	return ordered
}

func hasExtension(name string, exts []string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
