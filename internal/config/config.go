/*
SPDX-FileCopyrightText: Red Hat

SPDX-License-Identifier: Apache-2.0
*/

// Package config loads and validates the service's environment-variable surface, following the
// same envconfig-based load/validate shape used across the rest of the stack.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// DatabaseConfig configures the Postgres connection pool (C1/C2).
type DatabaseConfig struct {
	URL              string        `envconfig:"DATABASE_URL" required:"true"`
	ConnectionLimit  int           `envconfig:"DB_CONNECTION_LIMIT" default:"10"`
	PoolTimeout      time.Duration `envconfig:"DB_POOL_TIMEOUT" default:"30s"`
	ConnectTimeout   time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"10s"`
}

// RedisConfig configures the Redis-backed job queue and result ledger (C4/C5).
type RedisConfig struct {
	Host       string `envconfig:"REDIS_HOST" required:"true"`
	Port       int    `envconfig:"REDIS_PORT" default:"6379"`
	Password   string `envconfig:"REDIS_PASSWORD"`
	DB         int    `envconfig:"REDIS_DB" default:"0"`
	KeyPrefix  string `envconfig:"REDIS_KEY_PREFIX"`
	CacheTTLMs int    `envconfig:"CACHE_TTL_MS"`
}

// Addr returns the host:port pair go-redis expects.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BrokerConfig configures the AMQP notification broker (C6).
type BrokerConfig struct {
	Host string `envconfig:"RMQ_HOST" required:"true"`
	Port int    `envconfig:"RMQ_PORT" default:"5672"`
	User string `envconfig:"RMQ_USER" required:"true"`
	Pass string `envconfig:"RMQ_PASS" required:"true"`
}

// URL returns the amqp091-go dial URL.
func (c BrokerConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", c.User, c.Pass, c.Host, c.Port)
}

// GPConfig configures the GP carrier gateway client (C3).
type GPConfig struct {
	BaseURL       string        `envconfig:"GP_BASE_URL" required:"true"`
	BasicAuthUser string        `envconfig:"GP_BASIC_AUTH_USER" required:"true"`
	BasicAuthPass string        `envconfig:"GP_BASIC_AUTH_PASS" required:"true"`
	Timeout       time.Duration `envconfig:"GP_TIMEOUT" default:"5s"`
}

// RobiConfig configures the ROBI carrier gateway client (C3).
type RobiConfig struct {
	BaseURL string        `envconfig:"ROBI_BASE_URL" required:"true"`
	Timeout time.Duration `envconfig:"ROBI_TIMEOUT" default:"5s"`
}

// Config is the full environment-variable surface of the renewal service.
type Config struct {
	NodeEnv     string `envconfig:"NODE_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8080"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"dcb-renewal-service"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Database DatabaseConfig
	Redis    RedisConfig
	Broker   BrokerConfig
	GP       GPConfig
	Robi     RobiConfig
}

var validNodeEnvs = map[string]bool{"dev": true, "prod": true, "test": true, "staging": true}

// LoadFromEnv populates the configuration from the process environment.
func LoadFromEnv() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	return &c, nil
}

// Validate checks that every field is semantically correct. Invalid configuration aborts the
// process at startup per the error handling design.
func (c *Config) Validate() error {
	if !validNodeEnvs[c.NodeEnv] {
		return fmt.Errorf("NODE_ENV must be one of dev|prod|test|staging, got %q", c.NodeEnv)
	}
	if c.Port <= 0 {
		return fmt.Errorf("PORT must be > 0, got %d", c.Port)
	}
	if c.ServiceName == "" {
		return fmt.Errorf("SERVICE_NAME is required")
	}
	if !strings.HasPrefix(c.Database.URL, "postgres://") {
		return fmt.Errorf("DATABASE_URL must start with postgres://")
	}
	if c.Database.ConnectionLimit <= 0 {
		return fmt.Errorf("DB_CONNECTION_LIMIT must be > 0")
	}
	if c.Database.PoolTimeout <= 0 {
		return fmt.Errorf("DB_POOL_TIMEOUT must be > 0")
	}
	if c.Database.ConnectTimeout <= 0 {
		return fmt.Errorf("DB_CONNECT_TIMEOUT must be > 0")
	}
	if c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.Broker.Host == "" || c.Broker.User == "" || c.Broker.Pass == "" {
		return fmt.Errorf("RMQ_HOST, RMQ_USER and RMQ_PASS are required")
	}
	if c.GP.BaseURL == "" || c.GP.BasicAuthUser == "" || c.GP.BasicAuthPass == "" {
		return fmt.Errorf("GP_BASE_URL, GP_BASIC_AUTH_USER and GP_BASIC_AUTH_PASS are required")
	}
	if c.Robi.BaseURL == "" {
		return fmt.Errorf("ROBI_BASE_URL is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug|info|warn|error, got %q", c.LogLevel)
	}
	return nil
}
