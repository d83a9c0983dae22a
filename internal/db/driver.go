// Package db opens the SQLite or PostgreSQL database behind the refresh audit log.
package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jrschumacher/folio/internal/config"
	"github.com/jrschumacher/folio/internal/logger"

	// Database drivers
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DatabaseDriver represents the type of database driver
type DatabaseDriver string

// Database driver constants
const (
	SQLite     DatabaseDriver = "sqlite3"
	PostgreSQL DatabaseDriver = "postgres"
)

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Driver           DatabaseDriver
	ConnectionString string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// DetectDriver determines the database driver from the connection string
func DetectDriver(connectionString string) DatabaseDriver {
	connectionString = strings.ToLower(connectionString)

	switch {
	case strings.HasPrefix(connectionString, "postgres://"),
		strings.HasPrefix(connectionString, "postgresql://"),
		strings.Contains(connectionString, "host="):
		return PostgreSQL
	default:
		// Paths, file: URIs and :memory: are all SQLite.
		return SQLite
	}
}

// OpenDatabase opens a database connection with the appropriate driver and settings
func OpenDatabase(cfg *config.Config) (*sql.DB, DatabaseDriver, error) {
	dbConfig := DatabaseConfig{
		Driver:           DetectDriver(cfg.DatabaseURL),
		ConnectionString: cfg.DatabaseURL,
		MaxOpenConns:     10,
		MaxIdleConns:     2,
		ConnMaxLifetime:  5 * time.Minute,
	}

	switch dbConfig.Driver {
	case SQLite:
		// One connection: the audit log is write-light, and :memory: databases
		// exist per connection.
		dbConfig.MaxOpenConns = 1
		dbConfig.MaxIdleConns = 1
		dbConfig.ConnMaxLifetime = 0

		if !strings.Contains(dbConfig.ConnectionString, "?") {
			dbConfig.ConnectionString += "?_busy_timeout=10000"
		}

	case PostgreSQL:
		if cfg.IsDev() {
			dbConfig.MaxOpenConns = 4
			dbConfig.MaxIdleConns = 1
		}
	}

	logger.Info("Opening database connection",
		"driver", string(dbConfig.Driver),
		"maxOpenConns", dbConfig.MaxOpenConns,
		"maxIdleConns", dbConfig.MaxIdleConns)

	db, err := sql.Open(string(dbConfig.Driver), dbConfig.ConnectionString)
	if err != nil {
		return nil, dbConfig.Driver, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(dbConfig.MaxOpenConns)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, dbConfig.Driver, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initializeDatabase(db, dbConfig.Driver); err != nil {
		_ = db.Close()
		return nil, dbConfig.Driver, fmt.Errorf("failed to initialize database: %w", err)
	}
	
	return db, dbConfig.Driver, nil
}

// initializeDatabase applies driver-specific initialization
func initializeDatabase(db *sql.DB, driver DatabaseDriver) error {
	switch driver {
	case SQLite:
		for _, pragma := range []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
		} {
			if _, err := db.Exec(pragma); err != nil {
				logger.Warn("Failed to set SQLite pragma", "pragma", pragma, "error", err)
			}
		}

	case PostgreSQL:
		if _, err := db.Exec("SET timezone = 'UTC'"); err != nil {
			logger.Warn("Failed to set PostgreSQL timezone", "error", err)
		}
	}

	return nil
}

// GetPlaceholder returns the appropriate SQL placeholder for the driver
func GetPlaceholder(driver DatabaseDriver, position int) string {
	switch driver {
	case PostgreSQL:
		return fmt.Sprintf("$%d", position)
	case SQLite:
		return "?"
	default:
		return "?"
	}
}

// GetLimitOffset returns the LIMIT/OFFSET clause. Both drivers share the syntax.
func GetLimitOffset(_ DatabaseDriver, limit, offset int64) string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
}

// AutoIncrementKey returns the primary key column type for an identity column.
func AutoIncrementKey(driver DatabaseDriver) string {
	if driver == PostgreSQL {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}
