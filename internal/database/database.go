// Package database owns the Postgres connection used by every store in the
// pipeline: a GORM handle for the View ledger and Video catalog, and the
// underlying *sql.DB for the raw-SQL generation queue and vector search
// adapter.
package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"jobreel-server/internal/config"
	"jobreel-server/internal/models"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB wraps the GORM connection used by the CRUD-shaped stores (C3, C4) and
// exposes the underlying *sql.DB for packages that issue raw SQL (C2, C5).
type DB struct {
	*gorm.DB
}

// NewConnection opens a Postgres connection and configures GORM's logger,
// UTC clock, and connection pool the way the rest of this codebase does.
func NewConnection(cfg config.DBConfig) (*DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode, cfg.TimeZone)

	gormConfig := &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  true,
			},
		),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &DB{db}, nil
}

// SQL exposes the underlying *sql.DB for the raw-SQL queue and vector
// search layers, which need FOR UPDATE SKIP LOCKED and native vector
// operators an ORM's query builder would only obscure.
func (db *DB) SQL() (*sql.DB, error) {
	return db.DB.DB()
}

// AutoMigrate creates/updates the GORM-owned tables. The job corpus,
// generation queue, and pgvector extension are provisioned separately by
// ApplyCoreSchema (schema.go) since they are raw-SQL owned.
func (db *DB) AutoMigrate() error {
	return db.DB.AutoMigrate(
		&models.Video{},
		&models.View{},
	)
}

// Health pings the underlying connection.
func (db *DB) Health() error {
	sqlDB, err := db.SQL()
	if err != nil {
		return fmt.Errorf("database: health: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database: ping failed: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (db *DB) Close() error {
	sqlDB, err := db.SQL()
	if err != nil {
		return fmt.Errorf("database: close: %w", err)
	}
	return sqlDB.Close()
}
