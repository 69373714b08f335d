// Package database constructs the Postgres connection pool used by every
// repository. sql.DB is already thread-safe and manages its own pool; it is
// passed around directly rather than wrapped.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// Config describes how to reach the backing database.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConfigFromEnv reads EASYGRID_PG_* variables, applying local defaults.
func ConfigFromEnv() Config {
	cfg := Config{
		Host:     os.Getenv("EASYGRID_PG_HOST"),
		Port:     os.Getenv("EASYGRID_PG_PORT"),
		User:     os.Getenv("EASYGRID_PG_USER"),
		Password: os.Getenv("EASYGRID_PG_PASSWORD"),
		Database: os.Getenv("EASYGRID_PG_DATABASE"),
		SSLMode:  os.Getenv("EASYGRID_PG_SSLMODE"),
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "5432"
	}
	if cfg.Database == "" {
		cfg.Database = "easygrid"
	}
	if cfg.SSLMode == "" {
		if cfg.Host == "127.0.0.1" || cfg.Host == "localhost" {
			cfg.SSLMode = "disable"
		} else {
			cfg.SSLMode = "require"
		}
	}
	return cfg
}

// Open creates and verifies a connection pool.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// IMPORTANT: MaxIdleConns matches MaxOpenConns to prevent churn under
	// high concurrency; idle connections being closed and reopened
	// exhausts ephemeral ports.
	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(100)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
