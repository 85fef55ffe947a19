package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/peppidesu/landmower/internal/app/model"
	"gorm.io/gorm"
)

// postgresRepository keeps links in Postgres. GORM owns row lifecycle and the
// startup scan; the pgx pool batches the high-frequency usage updates.
type postgresRepository struct {
	db   *gorm.DB
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a Postgres-backed LinkRepository.
func NewPostgresRepository(db *gorm.DB, pool *pgxpool.Pool) LinkRepository {
	return &postgresRepository{db: db, pool: pool}
}

func (r *postgresRepository) Create(ctx context.Context, link *model.Link) error {
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("postgres: create link: %w", err)
	}
	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, key string) error {
	if err := r.db.WithContext(ctx).Where("key = ?", key).Delete(&model.Link{}).Error; err != nil {
		return fmt.Errorf("postgres: delete link: %w", err)
	}
	return nil
}

func (r *postgresRepository) UpdateUsage(ctx context.Context, updates []UsageUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, u := range updates {
		// GREATEST keeps counters monotonic even if an older snapshot lands late
		batch.Queue(
			`UPDATE links SET used = GREATEST(used, $1), last_used = GREATEST(last_used, $2) WHERE key = $3`,
			u.Used, u.LastUsed, u.Key,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range updates {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: update usage: %w", err)
		}
	}
	return nil
}

func (r *postgresRepository) LoadAll(ctx context.Context) ([]model.Link, error) {
	var links []model.Link
	if err := r.db.WithContext(ctx).Find(&links).Error; err != nil {
		return nil, fmt.Errorf("postgres: load links: %w", err)
	}
	return links, nil
}

// Close is a no-op: the gorm handle and the pool are owned by the caller.
func (r *postgresRepository) Close() error {
	return nil
}
