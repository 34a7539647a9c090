package pagecache

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/tankobon/tankobon/pkg/archive"
	"github.com/tankobon/tankobon/pkg/models"
	"github.com/tankobon/tankobon/pkg/pageindex"
)

// metadataFilename is the sidecar stored inside every published entry.
const metadataFilename = ".entry.json"

// entryMetadata lets a published entry be adopted after a restart without
// extracting it again.
type entryMetadata struct {
	ChapterID       int       `json:"chapter_id,omitempty"`
	SeriesID        int       `json:"series_id,omitempty"`
	UserID          int       `json:"user_id,omitempty"`
	Kind            string    `json:"kind"`
	FingerprintHash string    `json:"fingerprint_hash"`
	CreatedAt       time.Time `json:"created_at"`
	Pages           []string  `json:"pages"`
}

// readMetadata reads the sidecar of the entry in dir. It returns nil if there
// is none.
func readMetadata(dir string) (*entryMetadata, error) {
	path := filepath.Join(dir, metadataFilename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to read cache metadata: %s", path)
	}

	var meta entryMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(err, "failed to parse cache metadata: %s", path)
	}

	return &meta, nil
}

func writeMetadata(dir string, meta *entryMetadata) error {
	path := filepath.Join(dir, metadataFilename)

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal cache metadata")
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.Wrapf(err, "failed to write cache metadata: %s", path)
	}

	return nil
}

func newMetadata(entry *Entry) *entryMetadata {
	rels := make([]string, len(entry.Pages))
	for i, p := range entry.Pages {
		rels[i] = p.Rel
	}
	return &entryMetadata{
		ChapterID:       entry.ChapterID,
		SeriesID:        entry.SeriesID,
		UserID:          entry.UserID,
		Kind:            string(entry.Kind),
		FingerprintHash: entry.Fingerprint,
		CreatedAt:       entry.CreatedAt,
		Pages:           rels,
	}
}

// entry rebuilds the entry published in dir from its sidecar.
func (meta *entryMetadata) entry(dir string) *Entry {
	pages := make([]pageindex.Page, len(meta.Pages))
	for i, rel := range meta.Pages {
		pages[i] = pageindex.Page{Path: filepath.Join(dir, filepath.FromSlash(rel)), Rel: rel}
	}
	return &Entry{
		ChapterID:   meta.ChapterID,
		SeriesID:    meta.SeriesID,
		UserID:      meta.UserID,
		Dir:         dir,
		PageCount:   len(pages),
		Pages:       pages,
		Kind:        archive.Kind(meta.Kind),
		CreatedAt:   meta.CreatedAt,
		Fingerprint: meta.FingerprintHash,
	}
}

// sourceFingerprint is the state of a chapter file that invalidates its
// entry when it changes.
type sourceFingerprint struct {
	Path    string    `json:"path"`
	Format  string    `json:"format"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// fingerprintSources hashes the path, size and modification time of every
// chapter file, in order.
func fingerprintSources(sources []archive.Source) (string, error) {
	fps := make([]sourceFingerprint, 0, len(sources))
	for _, src := range sources {
		info, err := os.Stat(src.Path)
		if err != nil {
			return "", errors.Wrapf(err, "failed to stat %s", src.Path)
		}
		fps = append(fps, sourceFingerprint{
			Path:    src.Path,
			Format:  src.Format,
			Size:    info.Size(),
			ModTime: info.ModTime().UTC(),
		})
	}
	return hashJSON(fps)
}

type bookmarkFingerprint struct {
	ID        int    `json:"id"`
	ChapterID int    `json:"chapter_id"`
	Page      int    `json:"page"`
	FileName  string `json:"file_name"`
}

// fingerprintBookmarks hashes a bookmark set that is already in reading
// order.
func fingerprintBookmarks(bookmarks []*models.Bookmark) (string, error) {
	fps := make([]bookmarkFingerprint, 0, len(bookmarks))
	for _, b := range bookmarks {
		fps = append(fps, bookmarkFingerprint{
			ID:        b.ID,
			ChapterID: b.ChapterID,
			Page:      b.Page,
			FileName:  b.FileName,
		})
	}
	return hashJSON(fps)
}

func hashJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.WithStack(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
