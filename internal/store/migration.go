/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"
)

// toMigrateURL rewrites a postgres:// DSN into the pgx5:// scheme the migrate library's pgx5
// driver expects, adding sslmode=disable when no sslmode is already specified.
func toMigrateURL(url string) string {
	url = strings.Replace(url, "postgres://", "pgx5://", 1)
	if !strings.Contains(url, "sslmode=") {
		if strings.Contains(url, "?") {
			url += "&sslmode=disable"
		} else {
			url += "?sslmode=disable"
		}
	}
	return url
}

// MigrationsTable is the table created by the migration library to track migration state.
const MigrationsTable = "schema_migrations"

// MigrationConfig configures a migration run against the relational store.
type MigrationConfig struct {
	URL             string
	MigrationsTable string
	Source          source.Driver
}

// StartMigration runs every pending migration in Source up to the latest version. It installs a
// SIGINT/SIGTERM handler so a migration in progress stops gracefully rather than leaving the
// schema_migrations "dirty" flag set.
func StartMigration(cfg PgConfig, src source.Driver) error {
	h, err := NewHandler(PGtoMigrateConfig(cfg, src))
	if err != nil {
		return fmt.Errorf("failed to create migrations handler: %w", err)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		slog.Info("received shutdown signal, stopping migration gracefully")
		h.Migrate.GracefulStop <- true
	}()

	if err := h.runMigrationUp(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("migrations completed successfully")
	return nil
}

// PGtoMigrateConfig converts a postgres connection config into a migration connection config.
func PGtoMigrateConfig(cfg PgConfig, src source.Driver) MigrationConfig {
	return MigrationConfig{
		URL:             cfg.URL,
		MigrationsTable: MigrationsTable,
		Source:          src,
	}
}

type MigrationHandler struct {
	Migrate *migrate.Migrate
}

// Printf is the implementation of the migrate library's logger interface.
func (h *MigrationHandler) Printf(format string, v ...interface{}) {
	slog.Debug(fmt.Sprintf(format, v...))
}

// Verbose is the implementation of the migrate library's logger interface.
func (h *MigrationHandler) Verbose() bool {
	return true
}

// NewHandler configures the migration data.
func NewHandler(cfg MigrationConfig) (*MigrationHandler, error) {
	connStr := toMigrateURL(cfg.URL)
	if cfg.MigrationsTable != "" {
		connStr += fmt.Sprintf("&x-migrations-table=%s", cfg.MigrationsTable)
	}

	m, err := migrate.NewWithSourceInstance("iofs", cfg.Source, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	h := &MigrationHandler{Migrate: m}
	m.Log = h

	return h, nil
}

func timer(name string) func() {
	start := time.Now()
	return func() {
		slog.Debug(fmt.Sprintf("%s took %s", name, time.Since(start)))
	}
}

func (h *MigrationHandler) runMigrationUp() error {
	defer timer("Up")()

	if err := h.Migrate.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed up: %w", err)
	}
	return nil
}
