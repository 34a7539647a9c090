package archive

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/tankobon/tankobon/pkg/pageindex"
)

// Kind is the container format of a chapter file.
type Kind string

const (
	KindZip   Kind = "zip"
	KindRar   Kind = "rar"
	Kind7z    Kind = "7z"
	KindEpub  Kind = "epub"
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
)

// Formats recorded for a file by the library.
const (
	FormatArchive = "archive"
	FormatEpub    = "epub"
	FormatPDF     = "pdf"
	FormatImage   = "image"
)

var kindsByExtension = map[string]Kind{
	".zip":  KindZip,
	".cbz":  KindZip,
	".rar":  KindRar,
	".cbr":  KindRar,
	".7z":   Kind7z,
	".cb7":  Kind7z,
	".epub": KindEpub,
	".pdf":  KindPDF,
}

var kindsByMIME = []struct {
	mime string
	kind Kind
}{
	{"application/epub+zip", KindEpub},
	{"application/zip", KindZip},
	{"application/x-rar-compressed", KindRar},
	{"application/vnd.rar", KindRar},
	{"application/x-7z-compressed", Kind7z},
	{"application/pdf", KindPDF},
}

// DetectKind decides how a chapter file is extracted. A declared format of
// epub, pdf or image is trusted. Archives are identified by their magic bytes
// first and their extension second.
func DetectKind(path, declared string) (Kind, error) {
	switch strings.ToLower(declared) {
	case FormatEpub:
		return KindEpub, nil
	case FormatPDF:
		return KindPDF, nil
	case FormatImage:
		if pageindex.IsImage(path) {
			return KindImage, nil
		}
		return "", errors.Wrapf(ErrUnsupportedFormat, "%s is not an image", path)
	}

	if mtype, err := mimetype.DetectFile(path); err == nil {
		for _, m := range kindsByMIME {
			if mtype.Is(m.mime) {
				if declared == FormatArchive && m.kind == KindEpub {
					return KindZip, nil
				}
				return m.kind, nil
			}
		}
	}

	ext := strings.ToLower(filepath.Ext(path))
	if kind, ok := kindsByExtension[ext]; ok {
		return kind, nil
	}
	if pageindex.IsImage(path) {
		return KindImage, nil
	}

	return "", errors.Wrapf(ErrUnsupportedFormat, "%s", path)
}
