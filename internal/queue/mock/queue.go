// Package mock provides in-memory queue implementations for tests.
package mock

import (
	"context"
	"sync"

	"github.com/kiranshivaraju/newsanalyzer/internal/queue"
)

// Publisher records every published message.
type Publisher struct {
	PublishFunc func(ctx context.Context, msg queue.Message) error

	mu       sync.Mutex
	messages []queue.Message
}

var _ queue.Publisher = (*Publisher)(nil)

func (p *Publisher) Publish(ctx context.Context, msg queue.Message) error {
	if p.PublishFunc != nil {
		if err := p.PublishFunc(ctx, msg); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

// Messages returns a copy of the messages published so far.
func (p *Publisher) Messages() []queue.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.Message(nil), p.messages...)
}

// Outcome is how a delivery was settled.
type Outcome struct {
	JobID   int32
	Acked   bool
	Requeue bool
}

// Consumer hands out whatever is pushed with Deliver and records how each delivery
// was settled.
type Consumer struct {
	ConsumeErr error

	ch       chan queue.Delivery
	mu       sync.Mutex
	outcomes []Outcome
	settled  chan Outcome
}

var _ queue.Consumer = (*Consumer)(nil)

func NewConsumer(buffer int) *Consumer {
	return &Consumer{
		ch:      make(chan queue.Delivery, buffer),
		settled: make(chan Outcome, buffer),
	}
}

func (c *Consumer) Consume(ctx context.Context) (<-chan queue.Delivery, error) {
	if c.ConsumeErr != nil {
		return nil, c.ConsumeErr
	}
	out := make(chan queue.Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-c.ch:
				if !ok {
					return
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Deliver queues msg for the next Consume reader.
func (c *Consumer) Deliver(msg queue.Message) {
	c.ch <- queue.Delivery{
		Message: msg,
		Ack: func() error {
			c.record(Outcome{JobID: msg.JobID, Acked: true})
			return nil
		},
		Nack: func(requeue bool) error {
			c.record(Outcome{JobID: msg.JobID, Requeue: requeue})
			return nil
		},
	}
}

// Close ends the delivery stream.
func (c *Consumer) Close() { close(c.ch) }

// Settled yields outcomes as deliveries are acked or nacked.
func (c *Consumer) Settled() <-chan Outcome { return c.settled }

func (c *Consumer) Outcomes() []Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Outcome(nil), c.outcomes...)
}

func (c *Consumer) record(o Outcome) {
	c.mu.Lock()
	c.outcomes = append(c.outcomes, o)
	c.mu.Unlock()
	select {
	case c.settled <- o:
	default:
	}
}
