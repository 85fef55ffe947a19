package service

import (
	"context"
	"time"

	"github.com/peppidesu/landmower/internal/app/store"
	"go.uber.org/zap"
)

const defaultSyncInterval = 30 * time.Second

// UsageSyncer periodically flushes in-memory usage counters to storage. It
// backstops the event pipeline: counters bumped while the broker was down
// still reach the repository on the next tick.
type UsageSyncer struct {
	logger   *zap.Logger
	store    *store.Store
	interval time.Duration
	stopChan chan struct{}
}

// NewUsageSyncer creates a new usage syncer.
func NewUsageSyncer(logger *zap.Logger, st *store.Store, interval time.Duration) *UsageSyncer {
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	return &UsageSyncer{
		logger:   logger,
		store:    st,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic flushing.
func (s *UsageSyncer) Start() {
	go s.run()
}

// Stop stops the periodic flushing.
func (s *UsageSyncer) Stop() {
	close(s.stopChan)
}

func (s *UsageSyncer) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.stopChan:
			s.logger.Info("usage syncer stopped")
			return
		}
	}
}

func (s *UsageSyncer) flush() {
	ctx := context.Background()
	if err := s.store.SyncAll(ctx); err != nil {
		s.logger.Error("failed to flush usage counters", zap.Error(err))
	}
}
