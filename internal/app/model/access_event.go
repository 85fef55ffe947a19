package model

import "time"

// AccessEvent records a single resolution of a short link
type AccessEvent struct {
	Key string    `json:"key"`
	At  time.Time `json:"at"`
}

const (
	AccessStreamName     = "ACCESS"
	AccessStreamSubject  = "access.events"
	AccessConsumerName   = "usage-recorder"
	AccessStreamMaxBytes = 1024 * 1024 * 64 // 64MB
)
