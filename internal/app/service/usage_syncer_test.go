package service

import (
	"context"
	"testing"
	"time"

	"github.com/peppidesu/landmower/internal/app/repository"
	"github.com/peppidesu/landmower/internal/app/store"
	"go.uber.org/zap"
)

func TestUsageSyncer_FlushesCounters(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	st := store.New(store.Config{}, repo, nil, nil)
	if err := st.Recover(ctx); err != nil {
		t.Fatalf("Recover error: %v", err)
	}
	if _, err := st.Add(ctx, "my-key", "https://example.com"); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if _, err := st.Resolve("my-key"); err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	syncer := NewUsageSyncer(zap.NewNop(), st, 10*time.Millisecond)
	syncer.Start()
	defer syncer.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		links, err := repo.LoadAll(ctx)
		if err != nil {
			t.Fatalf("LoadAll error: %v", err)
		}
		if len(links) == 1 && links[0].Used == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("usage never reached the repository: %+v", links)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestUsageSyncer_DefaultInterval(t *testing.T) {
	st := store.New(store.Config{}, repository.NewMemoryRepository(), nil, nil)
	syncer := NewUsageSyncer(zap.NewNop(), st, 0)
	if syncer.interval != defaultSyncInterval {
		t.Fatalf("interval = %v, want %v", syncer.interval, defaultSyncInterval)
	}
}
