package archive

import (
	"context"
	"path/filepath"
)

// imageExtractor handles chapters made of loose image files.
type imageExtractor struct{}

func (imageExtractor) extract(ctx context.Context, w *writer, src string) (*partResult, error) {
	if err := w.writeFile(ctx, filepath.Base(src), src); err != nil {
		return nil, err
	}
	return &partResult{}, nil
}
