package archive

import (
	"context"

	"github.com/javi11/sevenzip"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

type sevenZipExtractor struct{}

func (sevenZipExtractor) extract(ctx context.Context, w *writer, src string) (*partResult, error) {
	r, err := sevenzip.OpenReader(src, afero.NewOsFs())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := writeSevenZipFile(ctx, w, f); err != nil {
			return nil, err
		}
	}

	return &partResult{}, nil
}

func writeSevenZipFile(ctx context.Context, w *writer, f *sevenzip.File) error {
	rc, err := f.Open()
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", f.Name)
	}
	defer rc.Close()

	return w.write(ctx, f.Name, rc)
}
