package archive

import (
	"context"
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pkg/errors"
)

func init() {
	api.DisableConfigDir()
}

// pdfExtractor pulls the embedded images out of a PDF. Pages that are not
// backed by an image produce nothing.
type pdfExtractor struct{}

func (pdfExtractor) extract(ctx context.Context, w *writer, src string) (result *partResult, err error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	// pdfcpu panics on some malformed documents.
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, errors.Errorf("failed to read pdf: %v", r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	err = api.ExtractImages(f, nil, func(img model.Image, _ bool, maxPageDigits int) error {
		name := fmt.Sprintf("%0*d_%d.%s", maxPageDigits, img.PageNr, img.ObjNr, img.FileType)
		return w.write(ctx, name, img)
	}, conf)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &partResult{}, nil
}
