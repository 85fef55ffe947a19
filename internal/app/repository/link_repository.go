package repository

import (
	"context"
	"errors"
	"time"

	"github.com/peppidesu/landmower/internal/app/model"
)

var (
	// ErrDuplicateKey signals that a link with the same key is already persisted.
	ErrDuplicateKey = errors.New("duplicate key")
)

// UsageUpdate carries the authoritative usage counters for one key.
type UsageUpdate struct {
	Key      string
	Used     int64
	LastUsed time.Time
}

// LinkRepository defines the durable storage contract for links. Lookups are
// served from the in-memory index, so implementations only provide durable
// writes plus a full scan for startup recovery.
//
// Create and Delete must be on stable storage when they return. Delete is
// idempotent: removing an absent key is not an error. UpdateUsage overwrites
// the counters for each key and skips keys it no longer holds.
type LinkRepository interface {
	Create(ctx context.Context, link *model.Link) error
	Delete(ctx context.Context, key string) error
	UpdateUsage(ctx context.Context, updates []UsageUpdate) error
	LoadAll(ctx context.Context) ([]model.Link, error)
	Close() error
}
