package service

import (
	"context"
	"errors"
	"testing"

	"github.com/peppidesu/landmower/internal/app/repository"
	"github.com/peppidesu/landmower/internal/app/store"
)

func newTestService(t *testing.T) LinkService {
	t.Helper()
	st := store.New(store.Config{}, repository.NewMemoryRepository(), nil, nil)
	if err := st.Recover(context.Background()); err != nil {
		t.Fatalf("Recover error: %v", err)
	}
	return NewLinkService(st)
}

func TestLinkService_CreateLink(t *testing.T) {
	svc := newTestService(t)

	link, err := svc.CreateLink(context.Background(), CreateLinkInput{URL: "https://example.com"})
	if err != nil {
		t.Fatalf("CreateLink returned error: %v", err)
	}
	if link.Key == "" {
		t.Fatal("expected a generated key")
	}
	if link.URL != "https://example.com" {
		t.Fatalf("unexpected URL %q", link.URL)
	}
}

func TestLinkService_CreateLink_Invalid(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateLink(context.Background(), CreateLinkInput{URL: "not a url"})
	var fe *store.FieldErrors
	if !errors.As(err, &fe) {
		t.Fatalf("expected *store.FieldErrors, got %v", err)
	}
	if fe.Link != "Invalid URL" {
		t.Fatalf("link message = %q", fe.Link)
	}
}

func TestLinkService_ValidateCreateLink(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.ValidateCreateLink(ctx, CreateLinkInput{Key: "my-key", URL: "https://example.com"}); err != nil {
		t.Fatalf("ValidateCreateLink error: %v", err)
	}

	err := svc.ValidateCreateLink(ctx, CreateLinkInput{Key: "ab", URL: "https://example.com"})
	var fe *store.FieldErrors
	if !errors.As(err, &fe) {
		t.Fatalf("expected *store.FieldErrors, got %v", err)
	}

	links, err := svc.ListLinks(ctx)
	if err != nil {
		t.Fatalf("ListLinks error: %v", err)
	}
	if len(links) != 0 {
		t.Fatalf("validation created %d links", len(links))
	}
}

func TestLinkService_GetLink_NotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetLink(context.Background(), "missing")
	if !errors.Is(err, store.ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
}

func TestLinkService_ListLinks(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, key := range []string{"one", "two"} {
		if _, err := svc.CreateLink(ctx, CreateLinkInput{Key: key, URL: "https://example.com/" + key}); err != nil {
			t.Fatalf("CreateLink error: %v", err)
		}
	}

	list, err := svc.ListLinks(ctx)
	if err != nil {
		t.Fatalf("ListLinks error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 links, got %d", len(list))
	}
}

func TestLinkService_FindLinksByURL(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, key := range []string{"one", "two"} {
		if _, err := svc.CreateLink(ctx, CreateLinkInput{Key: key, URL: "https://example.com"}); err != nil {
			t.Fatalf("CreateLink error: %v", err)
		}
	}
	if _, err := svc.CreateLink(ctx, CreateLinkInput{Key: "other", URL: "https://example.org"}); err != nil {
		t.Fatalf("CreateLink error: %v", err)
	}

	matches, err := svc.FindLinksByURL(ctx, "https://example.com")
	if err != nil {
		t.Fatalf("FindLinksByURL error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
}

func TestLinkService_Lifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	link, err := svc.CreateLink(ctx, CreateLinkInput{Key: "my-key", URL: "https://example.com"})
	if err != nil {
		t.Fatalf("CreateLink error: %v", err)
	}

	target, err := svc.Resolve(ctx, link.Key)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if target != "https://example.com" {
		t.Fatalf("Resolve = %q", target)
	}

	got, err := svc.GetLink(ctx, link.Key)
	if err != nil {
		t.Fatalf("GetLink error: %v", err)
	}
	if got.Used != 1 {
		t.Fatalf("used = %d after one resolve", got.Used)
	}

	if err := svc.DeleteLink(ctx, link.Key); err != nil {
		t.Fatalf("DeleteLink error: %v", err)
	}
	if _, err := svc.GetLink(ctx, link.Key); !errors.Is(err, store.ErrLinkNotFound) {
		t.Fatalf("GetLink after delete: %v", err)
	}
	if _, err := svc.Resolve(ctx, link.Key); !errors.Is(err, store.ErrLinkNotFound) {
		t.Fatalf("Resolve after delete: %v", err)
	}
}
