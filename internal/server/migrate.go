package server

import (
	"errors"
	"fmt"

	"github.com/Bhaumik-99/research-agents/config"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// DefaultMigrationsDir is used when Migrate is called without a source.
const DefaultMigrationsDir = "file://migrations"

// Migrate applies the research_runs schema. An empty dsn falls back to pg.
// steps > 0 moves that many versions in direction; otherwise it goes all the way.
func Migrate(dir, dsn, direction string, steps int, pg config.PostgresConfig) error {
	if dir == "" {
		dir = DefaultMigrationsDir
	}
	if dsn == "" {
		if !pg.Enabled() {
			return fmt.Errorf("migrate: no database configured")
		}
		dsn = pg.DSN()
	}
	m, err := migrate.New(dir, dsn)
	if err != nil {
		return fmt.Errorf("migrate: open %s: %w", dir, err)
	}
	defer m.Close()

	switch direction {
	case "", "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	default:
		return fmt.Errorf("migrate: unknown direction %q", direction)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
