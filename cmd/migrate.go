package main

import (
	"errors"
	"fmt"
	"log"

	srv "github.com/ahalansari/deep-search/internal/server"
	"github.com/spf13/cobra"
)

func migrateCMD() *cobra.Command {
	var migDir string
	var direction string
	var steps int

	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run session archive migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Storage.Postgres.Enabled() {
				return fmt.Errorf("postgres not configured (storage.postgres.url or host/dbname)")
			}
			err = srv.Migrate(migDir, cfg.Storage.Postgres.DSN(), direction, steps)
			if errors.Is(err, srv.ErrNoChange) {
				log.Printf("migrations: no change")
				return nil
			}
			return err
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", "", "migrations source URL (default: embedded migrations)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	return migrate
}
