/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
)

// dbConn is the subset of *pgxpool.Pool the relational stores depend on. It exists so tests can
// substitute a pgxmock.PgxPoolIface in place of a real pool without a live database.
type dbConn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PgConfig configures a connection pool to the relational store backing SubscriptionStore (C1)
// and BillingEventStore (C2).
type PgConfig struct {
	URL             string
	ConnectionLimit int32
	PoolTimeout     time.Duration
	ConnectTimeout  time.Duration
}

// NewPgxPool returns a concurrency-safe pool of connections.
func NewPgxPool(ctx context.Context, cfg PgConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Create the tracer with our custom logger
	poolConfig.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   customLogger,
		LogLevel: tracelog.LogLevelDebug,
	}

	if cfg.ConnectionLimit > 0 {
		poolConfig.MaxConns = cfg.ConnectionLimit
	}
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute
	poolConfig.MaxConnLifetimeJitter = 10 * time.Millisecond

	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("database connection pool established")
	return pool, nil
}

var (
	warnQueryThreshold  = 500 * time.Millisecond // Queries slower than this trigger warnings
	errorQueryThreshold = 2 * time.Second        // Queries slower than this trigger errors
	maxLogSQLLength     = 500                    // Maximum number of characters of SQL to log
)

// customLogger implements a pgx query logger that tracks query performance, truncates long SQL
// statements, and includes relevant metadata for debugging.
var customLogger = tracelog.LoggerFunc(func(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]interface{}) {
	var attrs []slog.Attr
	attrs = append(attrs, slog.String("event", msg))

	logLevel := convertLogLevel(level)
	if duration, ok := data["time"].(time.Duration); ok {
		attrs = append(attrs, slog.String("duration", duration.String()))

		switch {
		case duration >= errorQueryThreshold:
			logLevel = slog.LevelError
			attrs = append(attrs, slog.String("performance", "critical"))
		case duration >= warnQueryThreshold:
			logLevel = slog.LevelWarn
			attrs = append(attrs, slog.String("performance", "slow"))
		}
	}

	if sql, ok := data["sql"].(string); ok {
		if len(sql) > maxLogSQLLength {
			attrs = append(attrs,
				slog.String("sql", sql[:maxLogSQLLength]+"..."),
				slog.Int("sql_truncated_length", len(sql)-maxLogSQLLength),
			)
		} else {
			attrs = append(attrs, slog.String("sql", sql))
		}
	}

	if commandTag, ok := data["commandTag"]; ok {
		attrs = append(attrs, slog.Any("command_tag", commandTag))
	}
	if rows, ok := data["rowCount"]; ok {
		attrs = append(attrs, slog.Any("rows_affected", rows))
	}

	if err, ok := data["err"].(error); ok && err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		slog.LogAttrs(ctx, slog.LevelError, fmt.Sprintf("database %s failed", msg), attrs...)
		return
	}

	slog.LogAttrs(ctx, logLevel, fmt.Sprintf("database %s", msg), attrs...)
})

func convertLogLevel(level tracelog.LogLevel) slog.Level {
	switch level {
	case tracelog.LogLevelTrace, tracelog.LogLevelDebug:
		return slog.LevelDebug
	case tracelog.LogLevelInfo:
		return slog.LevelInfo
	case tracelog.LogLevelWarn:
		return slog.LevelWarn
	case tracelog.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
