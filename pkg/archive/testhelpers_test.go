package archive

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

type zipEntry struct {
	name    string
	content string
}

func createTestZip(t *testing.T, path string, entries ...zipEntry) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func createTestEPUB(t *testing.T, path string) {
	t.Helper()
	createTestZip(t, path,
		zipEntry{"mimetype", "application/epub+zip"},
		zipEntry{containerPath, `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`},
		zipEntry{"OEBPS/content.opf", `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <manifest>
    <item id="cover" href="Text/cover.xhtml" media-type="application/xhtml+xml"/>
    <item id="c10" href="Text/chapter%2010.xhtml" media-type="application/xhtml+xml"/>
    <item id="c2" href="Text/chapter2.xhtml#start" media-type="application/xhtml+xml"/>
    <item id="img" href="Images/a.jpg" media-type="image/jpeg"/>
    <item id="css" href="Styles/main.css" media-type="text/css"/>
  </manifest>
  <spine>
    <itemref idref="cover"/>
    <itemref idref="c10"/>
    <itemref idref="c2"/>
    <itemref idref="img"/>
    <itemref idref="unknown"/>
  </spine>
</package>`},
		zipEntry{"OEBPS/Text/cover.xhtml", "<html/>"},
		zipEntry{"OEBPS/Text/chapter 10.xhtml", "<html/>"},
		zipEntry{"OEBPS/Text/chapter2.xhtml", "<html/>"},
		zipEntry{"OEBPS/Images/a.jpg", "jpg"},
		zipEntry{"OEBPS/Styles/main.css", "body{}"},
	)
}

func readTree(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	require.NoError(t, err)
	return files
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.SetGray(x, 0, color.Gray{Y: uint8(40 * x)})
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func pngWidth(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	return cfg.Width
}
