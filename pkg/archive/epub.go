package archive

import (
	"context"
	"encoding/xml"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
	"github.com/tankobon/tankobon/pkg/pageindex"
)

const containerPath = "META-INF/container.xml"

type container struct {
	Rootfiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

// opfPackage holds the parts of an OPF document needed to find the reading
// order.
type opfPackage struct {
	XMLName  xml.Name `xml:"package"`
	Manifest struct {
		Item []struct {
			ID        string `xml:"id,attr"`
			Href      string `xml:"href,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Itemref []struct {
			Idref string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// epubExtractor unpacks an EPUB with its internal paths intact and reports the
// spine as the content order.
type epubExtractor struct{}

func (epubExtractor) extract(ctx context.Context, w *writer, src string) (*partResult, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer r.Close()

	files := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		files[path.Clean(strings.ReplaceAll(f.Name, "\\", "/"))] = f
	}

	for _, f := range r.File {
		if f.FileInfo().IsDir() || f.Name == "mimetype" {
			continue
		}
		if err := writeZipFile(ctx, w, f); err != nil {
			return nil, err
		}
	}

	opfPath, err := findOPF(files)
	if err != nil {
		return nil, err
	}
	if opfPath == "" {
		return &partResult{}, nil
	}

	pkg, err := readOPF(files[opfPath])
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", opfPath)
	}

	return &partResult{contentOrder: spineOrder(pkg, path.Dir(opfPath))}, nil
}

// findOPF locates the package document through the container, falling back
// to the first .opf file in the archive.
func findOPF(files map[string]*zip.File) (string, error) {
	if f, ok := files[containerPath]; ok {
		rc, err := f.Open()
		if err != nil {
			return "", errors.WithStack(err)
		}
		defer rc.Close()

		var c container
		if err := xml.NewDecoder(rc).Decode(&c); err != nil {
			return "", errors.Wrap(err, "failed to parse container")
		}
		for _, rf := range c.Rootfiles {
			p := path.Clean(rf.FullPath)
			if _, ok := files[p]; ok {
				return p, nil
			}
		}
	}

	opf := ""
	for name := range files {
		if strings.EqualFold(path.Ext(name), ".opf") && (opf == "" || pageindex.Less(name, opf)) {
			opf = name
		}
	}
	return opf, nil
}

func readOPF(f *zip.File) (*opfPackage, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	pkg := &opfPackage{}
	if err := xml.Unmarshal(b, pkg); err != nil {
		return nil, errors.WithStack(err)
	}
	return pkg, nil
}

// spineOrder resolves the spine to content document paths relative to the
// archive root. Manifest hrefs are relative to the OPF file.
func spineOrder(pkg *opfPackage, base string) []string {
	hrefs := make(map[string]string, len(pkg.Manifest.Item))
	for _, item := range pkg.Manifest.Item {
		hrefs[item.ID] = item.Href
	}

	var order []string
	for _, ref := range pkg.Spine.Itemref {
		href, ok := hrefs[ref.Idref]
		if !ok {
			continue
		}
		if i := strings.IndexByte(href, '#'); i >= 0 {
			href = href[:i]
		}
		if unescaped, err := url.PathUnescape(href); err == nil {
			href = unescaped
		}
		rel := path.Clean(path.Join(base, href))
		if !pageindex.IsContent(rel) {
			continue
		}
		order = append(order, rel)
	}
	return order
}
