package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/peppidesu/landmower/internal/app/model"
	"github.com/peppidesu/landmower/internal/app/store"
	"go.uber.org/zap"
)

const (
	consumerFetchBatch = 64
	consumerFetchWait  = 2 * time.Second
)

// AccessConsumer consumes access events from NATS JetStream and folds them
// into the durable usage counters.
type AccessConsumer struct {
	js       nats.JetStreamContext
	logger   *zap.Logger
	store    *store.Store
	stopChan chan struct{}
}

// NewAccessConsumer creates a new access event consumer
func NewAccessConsumer(js nats.JetStreamContext, logger *zap.Logger, st *store.Store) *AccessConsumer {
	return &AccessConsumer{js: js, logger: logger, store: st, stopChan: make(chan struct{})}
}

// Start ensures the stream and durable consumer exist, then begins consuming.
func (c *AccessConsumer) Start() error {
	// Create stream if not exists
	_, err := c.js.StreamInfo(model.AccessStreamName)
	if err != nil {
		_, err = c.js.AddStream(&nats.StreamConfig{
			Name:     model.AccessStreamName,
			Subjects: []string{model.AccessStreamSubject},
			MaxBytes: model.AccessStreamMaxBytes,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
	}

	// Create consumer if not exists
	_, err = c.js.ConsumerInfo(model.AccessStreamName, model.AccessConsumerName)
	if err != nil {
		_, err = c.js.AddConsumer(model.AccessStreamName, &nats.ConsumerConfig{
			Durable:   model.AccessConsumerName,
			AckPolicy: nats.AckExplicitPolicy,
		})
		if err != nil {
			return fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	sub, err := c.js.PullSubscribe(model.AccessStreamSubject, model.AccessConsumerName)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go c.consume(sub)
	return nil
}

// Stop ends the consume loop once the in-flight fetch returns.
func (c *AccessConsumer) Stop() {
	close(c.stopChan)
}

func (c *AccessConsumer) consume(sub *nats.Subscription) {
	ctx := context.Background()
	for {
		select {
		case <-c.stopChan:
			c.logger.Info("access consumer stopped")
			return
		default:
		}

		msgs, err := sub.Fetch(consumerFetchBatch, nats.MaxWait(consumerFetchWait))
		if err != nil && !errors.Is(err, nats.ErrTimeout) {
			c.logger.Error("failed to fetch messages", zap.Error(err))
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		// The store persists current counter values, not deltas, so a batch
		// collapses to the distinct keys it mentions.
		batch := make([]*nats.Msg, 0, len(msgs))
		keys := make([]string, 0, len(msgs))
		seen := make(map[string]struct{}, len(msgs))
		for _, msg := range msgs {
			var event model.AccessEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				c.logger.Error("failed to unmarshal access event", zap.Error(err))
				msg.Term()
				continue
			}
			batch = append(batch, msg)
			if _, dup := seen[event.Key]; dup {
				continue
			}
			seen[event.Key] = struct{}{}
			keys = append(keys, event.Key)
		}
		if len(batch) == 0 {
			continue
		}

		if err := c.store.SyncUsage(ctx, keys); err != nil {
			c.logger.Error("failed to persist usage counters", zap.Error(err))
			for _, msg := range batch {
				msg.Nak()
			}
			continue
		}

		for _, msg := range batch {
			msg.Ack()
		}

		c.logger.Debug("usage counters persisted",
			zap.Int("events", len(batch)),
			zap.Int("keys", len(keys)),
		)
	}
}
