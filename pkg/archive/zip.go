package archive

import (
	"context"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
)

type zipExtractor struct{}

func (zipExtractor) extract(ctx context.Context, w *writer, src string) (*partResult, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := writeZipFile(ctx, w, f); err != nil {
			return nil, err
		}
	}

	return &partResult{}, nil
}

func writeZipFile(ctx context.Context, w *writer, f *zip.File) error {
	if f.UncompressedSize64 > uint64(w.maxEntryBytes) {
		return errors.Wrapf(errEntryTooLarge, "%s", f.Name)
	}

	rc, err := f.Open()
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", f.Name)
	}
	defer rc.Close()

	return w.write(ctx, f.Name, rc)
}
