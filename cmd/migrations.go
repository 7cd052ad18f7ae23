/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/spf13/cobra"

	"github.com/Rifat79/dcb-renewal-service/internal/config"
	"github.com/Rifat79/dcb-renewal-service/internal/constants"
	"github.com/Rifat79/dcb-renewal-service/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   constants.MigrateSubcommand,
	Short: "Run every pending schema migration up to the latest version",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runMigrate(); err != nil {
			slog.Error("migration failed", "error", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate() error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	driver, err := iofs.New(store.MigrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migrations source: %w", err)
	}

	pgCfg := store.PgConfig{
		URL:            cfg.Database.URL,
		ConnectionLimit: int32(cfg.Database.ConnectionLimit),
		PoolTimeout:    cfg.Database.PoolTimeout,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	}

	if err := store.StartMigration(pgCfg, driver); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
