package main

import (
	"github.com/Bhaumik-99/research-agents/config"
	srv "github.com/Bhaumik-99/research-agents/internal/server"
	"github.com/spf13/cobra"
)

func migrateCMD(cfgPath *string) *cobra.Command {
	var dir, dsn, direction string
	var steps int
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			return srv.Migrate(dir, dsn, direction, steps, cfg.Storage.Postgres)
		},
	}
	migrate.Flags().StringVar(&dir, "dir", srv.DefaultMigrationsDir, "migrations source")
	migrate.Flags().StringVar(&dsn, "dsn", "", "database url (default from storage.postgres)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	return migrate
}
