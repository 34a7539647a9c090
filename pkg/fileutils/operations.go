package fileutils

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// CopyFile copies a file from source to destination, keeping its permissions.
func CopyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return errors.WithStack(err)
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return errors.WithStack(err)
	}
	defer destFile.Close()

	_, err = io.Copy(destFile, sourceFile)
	if err != nil {
		return errors.WithStack(err)
	}

	sourceInfo, err := sourceFile.Stat()
	if err != nil {
		return errors.WithStack(err)
	}

	err = destFile.Chmod(sourceInfo.Mode())
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// RemoveAll deletes path and everything below it. A missing path is not an
// error. Removal is retried a few times since readers on some platforms hold
// files open briefly after serving them.
func RemoveAll(ctx context.Context, path string) error {
	log := logger.FromContext(ctx)

	err := retry.Do(
		func() error {
			return os.RemoveAll(path)
		},
		retry.Attempts(3),
		retry.Delay(50*time.Millisecond),
		retry.MaxDelay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("retrying removal", logger.Data{"path": path, "attempt": n + 1, "error": err.Error()})
		}),
	)
	return errors.WithStack(err)
}

// DirExists reports whether path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// DirSize returns the total size in bytes and the number of regular files
// below dir. A missing dir has size zero.
func DirSize(dir string) (int64, int, error) {
	var size int64
	var count int
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		count++
		return nil
	})
	if err != nil {
		return 0, 0, errors.WithStack(err)
	}
	return size, count, nil
}
