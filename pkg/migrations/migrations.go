package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrations holds every schema migration, registered from init functions in
// this package.
var Migrations = migrate.NewMigrations()

func NewMigrator(db *bun.DB) *migrate.Migrator {
	return migrate.NewMigrator(db, Migrations)
}

// BringUpToDate creates the bookkeeping tables when missing and applies all
// pending migrations while holding the migration lock. The returned group is
// empty when nothing had to run.
func BringUpToDate(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	m := NewMigrator(db)
	if err := m.Init(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to create migration tables")
	}

	if err := m.Lock(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to lock migrations")
	}
	defer m.Unlock(ctx) //nolint:errcheck

	group, err := m.Migrate(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to apply migrations")
	}
	return group, nil
}

// Pending returns the registered migrations that have not been applied yet.
func Pending(ctx context.Context, db *bun.DB) (migrate.MigrationSlice, error) {
	m := NewMigrator(db)
	if err := m.Init(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to create migration tables")
	}
	ms, err := m.MigrationsWithStatus(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ms.Unapplied(), nil
}
