package archive

import (
	"context"
	"io"

	"github.com/javi11/rardecode/v2"
	"github.com/pkg/errors"
)

type rarExtractor struct{}

// extract walks the entries of a rar archive. Multi-volume archives are
// followed from the first volume.
func (rarExtractor) extract(ctx context.Context, w *writer, src string) (*partResult, error) {
	r, err := rardecode.OpenReader(src)
	if err != nil {
		if errors.Is(err, rardecode.ErrNoSig) {
			return nil, errors.Wrapf(err, "%s is not a rar archive", src)
		}
		return nil, errors.WithStack(err)
	}
	defer r.Close()

	for {
		hdr, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if hdr.IsDir {
			continue
		}
		if err := w.write(ctx, hdr.Name, r); err != nil {
			return nil, err
		}
	}

	return &partResult{}, nil
}
