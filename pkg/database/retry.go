package database

import (
	"context"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// isBusyError checks if the error is a SQLite BUSY or LOCKED error.
// Works with both mattn/go-sqlite3 and modernc.org/sqlite drivers.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked") ||
		strings.Contains(errStr, "SQLITE_BUSY") ||
		strings.Contains(errStr, "SQLITE_LOCKED") ||
		strings.Contains(errStr, "(5)") || // SQLITE_BUSY error code
		strings.Contains(errStr, "(6)") // SQLITE_LOCKED error code
}

// WithRetry runs fn, retrying it up to maxRetries more times with jittered
// exponential backoff while it fails with SQLITE_BUSY or SQLITE_LOCKED.
// Any other error is returned immediately.
func WithRetry(ctx context.Context, maxRetries int, fn func() error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(uint(maxRetries+1)),
		retry.RetryIf(isBusyError),
		retry.Delay(50*time.Millisecond),
		retry.MaxJitter(25*time.Millisecond),
		retry.MaxDelay(2*time.Second),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
	)
}
