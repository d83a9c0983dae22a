package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jrschumacher/folio/internal/config"
	"github.com/jrschumacher/folio/internal/logger"
)

// Service wraps the database connection and the audit queries.
type Service struct {
	db     *sql.DB
	driver DatabaseDriver
}

// NewService opens the configured database and applies migrations.
func NewService(ctx context.Context, cfg *config.Config) (*Service, error) {
	db, driver, err := OpenDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Service{db: db, driver: driver}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("Database service initialized", "driver", string(driver))
	return s, nil
}

// Close closes the database connection
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying database connection
func (s *Service) DB() *sql.DB {
	return s.db
}

// Driver returns the database driver type
func (s *Service) Driver() DatabaseDriver {
	return s.driver
}

// Ping checks the connection, for health reporting.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx executes fn within a database transaction
func (s *Service) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// Migrate creates the audit schema if it does not exist.
func (s *Service) Migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS refresh_audit (
	id %s,
	subject TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
)`, AutoIncrementKey(s.driver)),
		`CREATE INDEX IF NOT EXISTS idx_refresh_audit_created_at ON refresh_audit(created_at)`,
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
		}
		return nil
	})
}
