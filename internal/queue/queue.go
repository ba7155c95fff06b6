// Package queue carries job ids from the API to the worker over RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Message asks a worker to process one job.
type Message struct {
	JobID      int32     `json:"job_id"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func Decode(body []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return Message{}, fmt.Errorf("decode queue message: %w", err)
	}
	if m.JobID <= 0 {
		return Message{}, fmt.Errorf("decode queue message: invalid job id %d", m.JobID)
	}
	return m, nil
}

// Delivery is a received Message that must be acknowledged exactly once.
type Delivery struct {
	Message
	Ack  func() error
	Nack func(requeue bool) error
}

// Publisher enqueues work.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Consumer streams deliveries until ctx is canceled or the connection drops.
type Consumer interface {
	Consume(ctx context.Context) (<-chan Delivery, error)
}
