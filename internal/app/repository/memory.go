package repository

import (
	"context"
	"sync"

	"github.com/peppidesu/landmower/internal/app/model"
)

// memoryRepository keeps links in a plain map. Nothing survives a restart;
// it backs tests and explicitly ephemeral runs.
type memoryRepository struct {
	mu    sync.Mutex
	links map[string]model.Link
}

// NewMemoryRepository returns a LinkRepository without durability.
func NewMemoryRepository() LinkRepository {
	return &memoryRepository{links: make(map[string]model.Link)}
}

func (r *memoryRepository) Create(ctx context.Context, link *model.Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.links[link.Key]; exists {
		return ErrDuplicateKey
	}
	r.links[link.Key] = *link
	return nil
}

func (r *memoryRepository) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.links, key)
	return nil
}

func (r *memoryRepository) UpdateUsage(ctx context.Context, updates []UsageUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range updates {
		link, ok := r.links[u.Key]
		if !ok {
			continue
		}
		link.Used = u.Used
		link.LastUsed = u.LastUsed
		r.links[u.Key] = link
	}
	return nil
}

func (r *memoryRepository) LoadAll(ctx context.Context) ([]model.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	links := make([]model.Link, 0, len(r.links))
	for _, link := range r.links {
		links = append(links, link)
	}
	return links, nil
}

func (r *memoryRepository) Close() error {
	return nil
}
