package cmd

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"auctionhouse/internal/config"
	"auctionhouse/internal/logging"
	"auctionhouse/internal/queue"
	pgrepo "auctionhouse/internal/repository/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the Postgres schema; a no-op in embedded mode",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Configure(cfg.LogLevel)

	if cfg.Mode != config.ModeCluster {
		logging.Info("auctionctl migrate: embedded mode has no schema to apply", nil)
		return nil
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PersistenceURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, pgrepo.Schema); err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, queue.Schema); err != nil {
		return err
	}

	logging.Info("auctionctl migrate: schema applied", nil)
	return nil
}
