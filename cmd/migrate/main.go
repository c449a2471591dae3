package main

import (
	"errors"
	"log"
	"os"

	"reward_engine/internal/pkg/config"
	"reward_engine/pkg/database"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "migrate",
		Usage: "apply database migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Value: "file://migrations"},
		},
		Commands: []*cli.Command{
			{
				Name: "up",
				Action: func(c *cli.Context) error {
					return withMigrate(c, func(m *migrate.Migrate) error { return m.Up() })
				},
			},
			{
				Name:  "down",
				Usage: "roll back one step",
				Action: func(c *cli.Context) error {
					return withMigrate(c, func(m *migrate.Migrate) error { return m.Steps(-1) })
				},
			},
			{
				Name:      "force",
				Usage:     "clear the dirty flag after a failed migration",
				ArgsUsage: "<version>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "version", Required: true},
				},
				Action: func(c *cli.Context) error {
					return withMigrate(c, func(m *migrate.Migrate) error { return m.Force(c.Int("version")) })
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func withMigrate(c *cli.Context, fn func(m *migrate.Migrate) error) error {
	config.LoadConfig()
	m, err := migrate.New(c.String("path"), database.MigrateURL(config.GlobalConfig.Database))
	if err != nil {
		return err
	}
	defer m.Close()

	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		var dirty migrate.ErrDirty
		if errors.As(err, &dirty) {
			log.Printf("database is dirty at version %d, run `migrate force --version N` after fixing it", dirty.Version)
		}
		return err
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	log.Printf("migration done, version=%d dirty=%v", version, dirty)
	return nil
}
