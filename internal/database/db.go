// Package database opens the SQL connection and owns schema migration
// and seeding.
package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Config selects a driver and its connection parameters. DSN, when set,
// bypasses the per-driver builders.
type Config struct {
	Driver   string
	Path     string // sqlite file path
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	Options  map[string]string
}

// Open connects using the configured driver. An empty driver means
// sqlite.
func Open(cfg Config) (*gorm.DB, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		return openSQLite(cfg)
	case "mysql", "mariadb":
		return openMySQL(cfg)
	case "postgres", "postgresql":
		return openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// AutoMigrateAndSeed applies the schema and inserts the reserved
// accounts, default roles, and system settings. Used at start-up.
func AutoMigrateAndSeed(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := SeedData(db); err != nil {
		return fmt.Errorf("seed data: %w", err)
	}
	return nil
}
