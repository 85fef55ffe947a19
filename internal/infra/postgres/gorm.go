package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/peppidesu/landmower/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultConnMaxLifetime = 5 * time.Minute

// NewGorm returns a gorm.DB for the row lifecycle of links. Counter updates
// go through the pgx pool instead.
func NewGorm(cfg config.PostgresConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(ConnString(cfg)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		// stored timestamps are UTC, matching the store's snapshots
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
		DisableForeignKeyConstraintWhenMigrating: true,
		// the repository matches duplicate inserts on gorm.ErrDuplicatedKey
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: open gorm connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: retrieve sql db: %w", err)
	}

	if cfg.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(int(cfg.MaxConns))
	}
	lifetime := defaultConnMaxLifetime
	if cfg.MaxConnLifetime != "" {
		parsed, err := time.ParseDuration(cfg.MaxConnLifetime)
		if err != nil {
			return nil, fmt.Errorf("postgres: bad max_conn_lifetime %q: %w", cfg.MaxConnLifetime, err)
		}
		lifetime = parsed
	}
	sqlDB.SetConnMaxLifetime(lifetime)

	return db, nil
}

// AutoMigrate creates or updates the schema for the provided models.
func AutoMigrate(ctx context.Context, db *gorm.DB, models ...interface{}) error {
	if db == nil || len(models) == 0 {
		return nil
	}

	if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("postgres: auto migrate: %w", err)
	}

	return nil
}
