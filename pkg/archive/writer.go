package archive

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/tankobon/tankobon/pkg/pageindex"
)

// writer places archive entries inside dest.
type writer struct {
	dest          string
	maxEntryBytes int64
	count         int
}

// cleanName normalizes an entry name to a slash-separated relative path. It
// returns an error for names that would land outside the destination.
func cleanName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if path.IsAbs(name) || hasDriveLetter(name) {
		return "", errors.Wrapf(errUnsafePath, "%q", name)
	}
	clean := path.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.Wrapf(errUnsafePath, "%q", name)
	}
	return clean, nil
}

func hasDriveLetter(name string) bool {
	return len(name) >= 2 && name[1] == ':' &&
		(name[0] >= 'a' && name[0] <= 'z' || name[0] >= 'A' && name[0] <= 'Z')
}

// skip reports whether an entry should be left out of the extraction.
func skip(name string) bool {
	return name == "." || pageindex.IsBlacklisted(name)
}

// write copies r to the entry name below dest. Blacklisted entries are
// drained and dropped.
func (w *writer) write(ctx context.Context, name string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}

	rel, err := cleanName(name)
	if err != nil {
		return err
	}
	if skip(rel) {
		return nil
	}

	target := filepath.Join(w.dest, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.WithStack(err)
	}

	f, err := os.Create(target)
	if err != nil {
		return errors.WithStack(err)
	}

	n, err := io.Copy(f, io.LimitReader(r, w.maxEntryBytes+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrapf(err, "failed to write %s", rel)
	}
	if n > w.maxEntryBytes {
		return errors.Wrapf(errEntryTooLarge, "%s", rel)
	}

	w.count++
	return nil
}

// writeFile copies a file from disk to the entry name below dest.
func (w *writer) writeFile(ctx context.Context, name, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	return w.write(ctx, name, f)
}
