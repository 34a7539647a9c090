package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/tankobon/tankobon/pkg/config"
	"github.com/tankobon/tankobon/pkg/database"
	"github.com/tankobon/tankobon/pkg/migrations"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}
	defer db.Close()

	app := &cli.App{
		Name:  "migrations",
		Usage: "manage the tankobon database schema",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "apply all pending migrations",
				Action: func(c *cli.Context) error { return migrateUp(c, db) },
			},
			{
				Name:   "rollback",
				Usage:  "roll back the last migration group",
				Action: func(c *cli.Context) error { return rollback(c, db) },
			},
			{
				Name:   "status",
				Usage:  "list pending migrations",
				Action: func(c *cli.Context) error { return status(c, db) },
			},
			{
				Name:      "create",
				Usage:     "create a Go migration",
				ArgsUsage: "<words of the migration name>",
				Action:    func(c *cli.Context) error { return create(c, db) },
			},
			{
				Name:  "unlock",
				Usage: "release the migration lock left by a crashed run",
				Action: func(c *cli.Context) error {
					return errors.WithStack(migrations.NewMigrator(db).Unlock(c.Context))
				},
			},
		},
	}

	if err := app.RunContext(log.WithContext(ctx), os.Args); err != nil {
		log.Err(err).Fatal("migrations error")
	}
}

func migrateUp(c *cli.Context, db *bun.DB) error {
	log := logger.FromContext(c.Context)

	group, err := migrations.BringUpToDate(c.Context, db)
	if err != nil {
		return err
	}
	if group.IsZero() {
		log.Info("no new migrations to run")
		return nil
	}
	log.Info("migrated", logger.Data{"group": group.String()})
	return nil
}

func rollback(c *cli.Context, db *bun.DB) error {
	log := logger.FromContext(c.Context)
	m := migrations.NewMigrator(db)

	if err := m.Lock(c.Context); err != nil {
		return errors.Wrap(err, "failed to lock migrations")
	}
	defer m.Unlock(c.Context) //nolint:errcheck

	group, err := m.Rollback(c.Context)
	if err != nil {
		return errors.WithStack(err)
	}
	if group.IsZero() {
		log.Info("no groups to roll back")
		return nil
	}
	log.Info("rolled back", logger.Data{"group": group.String()})
	return nil
}

func status(c *cli.Context, db *bun.DB) error {
	pending, err := migrations.Pending(c.Context, db)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("up to date")
		return nil
	}
	for _, m := range pending {
		fmt.Printf("pending %s\n", m.Name)
	}
	return nil
}

func create(c *cli.Context, db *bun.DB) error {
	if c.NArg() == 0 {
		return errors.New("a migration name is required")
	}
	name := strings.Join(c.Args().Slice(), "_")

	mf, err := migrations.NewMigrator(db).CreateGoMigration(c.Context, name, migrate.WithGoTemplate(migrationTemplate))
	if err != nil {
		return errors.WithStack(err)
	}
	fmt.Printf("created %s\n", mf.Path)
	return nil
}

const migrationTemplate = `package %s

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec("")
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec("")
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
`
