package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/tankobon/tankobon/pkg/config"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// queryLogHook logs every statement with its duration when database debug
// logging is on.
type queryLogHook struct {
	log logger.Logger
}

func (*queryLogHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryLogHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	data := logger.Data{
		"operation": event.Operation(),
		"duration":  time.Since(event.StartTime).String(),
	}
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		h.log.Err(event.Err).Warn(event.Query, data)
		return
	}
	h.log.Debug(event.Query, data)
}

func New(cfg *config.Config) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DatabaseFilePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	// A single connection serializes writers so SQLite never sees two of them
	// at once. It also keeps an in-memory database alive for its whole life.
	sqldb.SetMaxOpenConns(1)
	sqldb.SetConnMaxLifetime(0)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if cfg.DatabaseDebug {
		db.AddQueryHook(&queryLogHook{logger.NewWithLevel("debug")})
	}

	attempts := cfg.DatabaseConnectRetryCount
	if attempts < 1 {
		attempts = 1
	}
	err = retry.Do(
		func() error {
			_, err := db.Exec("SELECT 1")
			return err
		},
		retry.Attempts(uint(attempts)),
		retry.Delay(cfg.DatabaseConnectRetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// WAL mode allows concurrent reads during writes.
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrap(err, "failed to enable WAL mode")
	}

	busyTimeoutMs := cfg.DatabaseBusyTimeout.Milliseconds()
	_, err = db.Exec("PRAGMA busy_timeout=?", busyTimeoutMs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to set busy_timeout")
	}

	_, err = db.Exec("PRAGMA foreign_keys=ON")
	if err != nil {
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}

	return db, nil
}
