package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/peppidesu/landmower/internal/app/model"
	"github.com/peppidesu/landmower/internal/app/store"
	"github.com/peppidesu/landmower/internal/infra/prometheus"
)

// LinkService defines behaviour-level operations on links.
type LinkService interface {
	CreateLink(ctx context.Context, input CreateLinkInput) (*model.Link, error)
	ValidateCreateLink(ctx context.Context, input CreateLinkInput) error
	GetLink(ctx context.Context, key string) (*model.Link, error)
	ListLinks(ctx context.Context) ([]model.Link, error)
	FindLinksByURL(ctx context.Context, url string) ([]model.Link, error)
	DeleteLink(ctx context.Context, key string) error
	Resolve(ctx context.Context, key string) (string, error)
}

type linkService struct {
	store *store.Store
}

// NewLinkService returns a service implementation backed by the given store.
func NewLinkService(st *store.Store) LinkService {
	return &linkService{store: st}
}

// CreateLinkInput captures data required to create a link. An empty Key asks
// for a generated one.
type CreateLinkInput struct {
	Key string
	URL string
}

func (s *linkService) CreateLink(ctx context.Context, input CreateLinkInput) (*model.Link, error) {
	link, err := s.store.Add(ctx, input.Key, input.URL)
	if err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}

	prometheus.LinksCreated.Inc()
	prometheus.LinksLive.Set(float64(s.store.Len()))
	return link, nil
}

func (s *linkService) ValidateCreateLink(ctx context.Context, input CreateLinkInput) error {
	if err := s.store.ValidateAdd(input.Key, input.URL); err != nil {
		return fmt.Errorf("validate link: %w", err)
	}
	return nil
}

func (s *linkService) GetLink(ctx context.Context, key string) (*model.Link, error) {
	link, err := s.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	return link, nil
}

func (s *linkService) ListLinks(ctx context.Context) ([]model.Link, error) {
	return s.store.List(), nil
}

func (s *linkService) FindLinksByURL(ctx context.Context, url string) ([]model.Link, error) {
	return s.store.FindByURL(url), nil
}

func (s *linkService) DeleteLink(ctx context.Context, key string) error {
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete link: %w", err)
	}

	prometheus.LinksDeleted.Inc()
	prometheus.LinksLive.Set(float64(s.store.Len()))
	return nil
}

func (s *linkService) Resolve(ctx context.Context, key string) (string, error) {
	target, err := s.store.Resolve(key)
	if err != nil {
		if errors.Is(err, store.ErrLinkNotFound) {
			prometheus.ResolvesTotal.WithLabelValues("miss").Inc()
		}
		return "", fmt.Errorf("resolve link: %w", err)
	}

	prometheus.ResolvesTotal.WithLabelValues("hit").Inc()
	return target, nil
}
