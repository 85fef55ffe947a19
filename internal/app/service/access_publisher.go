package service

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/peppidesu/landmower/internal/app/model"
)

// AccessPublisher publishes link access events to NATS JetStream
type AccessPublisher struct {
	js nats.JetStreamContext
}

// NewAccessPublisher creates a new access event publisher
func NewAccessPublisher(js nats.JetStreamContext) *AccessPublisher {
	return &AccessPublisher{js: js}
}

// Publish publishes an access event for key to the stream
func (p *AccessPublisher) Publish(key string) error {
	event := model.AccessEvent{
		Key: key,
		At:  time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(model.AccessStreamSubject, data)
	return err
}
