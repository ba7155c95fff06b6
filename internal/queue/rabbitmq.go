package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kiranshivaraju/newsanalyzer/internal/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrClosed = errors.New("queue connection closed")

// RabbitMQ implements Publisher and Consumer on a durable direct exchange. When the
// broker drops the connection it is redialed in the background; Publish returns
// ErrClosed until the new connection is up and consumers resubscribe on their own.
type RabbitMQ struct {
	cfg      config.QueueConfig
	prefetch int
	stop     context.CancelFunc

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool
}

// NewRabbitMQ dials the broker and declares the exchange, the queue and their binding.
// prefetch bounds unacknowledged deliveries per consumer; zero leaves it unlimited.
func NewRabbitMQ(cfg config.QueueConfig, prefetch int) (*RabbitMQ, error) {
	r := &RabbitMQ{cfg: cfg, prefetch: prefetch}

	conn, ch, lost, err := r.dial()
	if err != nil {
		return nil, err
	}
	r.conn, r.channel = conn, ch

	ctx, cancel := context.WithCancel(context.Background())
	r.stop = cancel
	go r.watch(ctx, lost)

	return r, nil
}

// dial connects and declares the topology. lost receives when the connection closes.
func (r *RabbitMQ) dial() (*amqp.Connection, *amqp.Channel, <-chan *amqp.Error, error) {
	conn, err := amqp.Dial(r.cfg.URL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	lost := conn.NotifyClose(make(chan *amqp.Error, 1))

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("open channel: %w", err)
	}

	fail := func(op string, err error) (*amqp.Connection, *amqp.Channel, <-chan *amqp.Error, error) {
		ch.Close()
		conn.Close()
		return nil, nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := ch.ExchangeDeclare(
		r.cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fail("declare exchange", err)
	}

	if _, err := ch.QueueDeclare(
		r.cfg.Queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fail("declare queue", err)
	}

	if err := ch.QueueBind(
		r.cfg.Queue,
		r.cfg.RoutingKey,
		r.cfg.Exchange,
		false,
		nil,
	); err != nil {
		return fail("bind queue", err)
	}

	if r.prefetch > 0 {
		if err := ch.Qos(r.prefetch, 0, false); err != nil {
			return fail("set qos", err)
		}
	}

	return conn, ch, lost, nil
}

// watch redials every time the connection is lost, until ctx is canceled by Close.
func (r *RabbitMQ) watch(ctx context.Context, lost <-chan *amqp.Error) {
	for {
		var cause *amqp.Error
		select {
		case cause = <-lost:
		case <-ctx.Done():
			return
		}
		if ctx.Err() != nil {
			return
		}
		reason := "connection closed"
		if cause != nil {
			reason = cause.Error()
		}
		slog.Warn("rabbitmq connection lost, redialing", "reason", reason)

		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = 0

		var (
			conn *amqp.Connection
			ch   *amqp.Channel
			next <-chan *amqp.Error
		)
		err := backoff.RetryNotify(func() error {
			var err error
			conn, ch, next, err = r.dial()
			return err
		}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
			slog.Warn("rabbitmq redial failed", "error", err, "next", wait)
		})
		if err != nil {
			return
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			ch.Close()
			conn.Close()
			return
		}
		r.conn, r.channel = conn, ch
		r.mu.Unlock()

		slog.Info("rabbitmq reconnected", "queue", r.cfg.Queue)
		lost = next
	}
}

func (r *RabbitMQ) Publish(ctx context.Context, msg Message) error {
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now().UTC()
	}
	body, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode queue message: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureChannel(); err != nil {
		return err
	}
	err = r.channel.PublishWithContext(ctx,
		r.cfg.Exchange,
		r.cfg.RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    msg.EnqueuedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish job %d: %w", msg.JobID, err)
	}
	return nil
}

// ensureChannel reopens a channel the broker closed on a live connection. The caller
// holds r.mu.
func (r *RabbitMQ) ensureChannel() error {
	if r.closed || r.conn.IsClosed() {
		return ErrClosed
	}
	if !r.channel.IsClosed() {
		return nil
	}
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("%w: reopen channel: %w", ErrClosed, err)
	}
	if r.prefetch > 0 {
		if err := ch.Qos(r.prefetch, 0, false); err != nil {
			ch.Close()
			return fmt.Errorf("%w: set qos: %w", ErrClosed, err)
		}
	}
	r.channel = ch
	return nil
}

// subscribe starts a consumer on the current channel.
func (r *RabbitMQ) subscribe() (<-chan amqp.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureChannel(); err != nil {
		return nil, err
	}
	msgs, err := r.channel.Consume(
		r.cfg.Queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", r.cfg.Queue, err)
	}
	return msgs, nil
}

// resubscribe waits for the connection to come back and consumes again. It gives up when
// ctx ends or the broker is closed.
func (r *RabbitMQ) resubscribe(ctx context.Context) (<-chan amqp.Delivery, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0

	var msgs <-chan amqp.Delivery
	err := backoff.Retry(func() error {
		if r.isClosed() {
			return backoff.Permanent(ErrClosed)
		}
		var err error
		msgs, err = r.subscribe()
		return err
	}, backoff.WithContext(b, ctx))
	return msgs, err
}

// Consume delivers messages with manual acknowledgement. Undecodable bodies are
// rejected without requeue and never reach the returned channel. After a connection
// loss it resubscribes; the returned channel closes only when ctx ends or the broker
// is closed.
func (r *RabbitMQ) Consume(ctx context.Context) (<-chan Delivery, error) {
	msgs, err := r.subscribe()
	if err != nil {
		return nil, err
	}

	out := make(chan Delivery)

	go func() {
		defer close(out)

		for {
			select {
			case d, ok := <-msgs:
				if !ok {
					if ctx.Err() != nil || r.isClosed() {
						return
					}
					slog.Warn("rabbitmq delivery stream ended, resubscribing", "queue", r.cfg.Queue)
					next, err := r.resubscribe(ctx)
					if err != nil {
						return
					}
					msgs = next
					continue
				}
				msg, err := Decode(d.Body)
				if err != nil {
					slog.Error("dropping malformed queue message", "error", err)
					_ = d.Reject(false)
					continue
				}
				delivery := Delivery{
					Message: msg,
					Ack:     func() error { return d.Ack(false) },
					Nack:    func(requeue bool) error { return d.Nack(false, requeue) },
				}
				select {
				case out <- delivery:
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Ping reports whether the broker connection is currently open.
func (r *RabbitMQ) Ping(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.conn.IsClosed() || r.channel.IsClosed() {
		return ErrClosed
	}
	return nil
}

func (r *RabbitMQ) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close stops redialing and closes the connection.
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.stop()

	if err := r.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		_ = r.conn.Close()
		return err
	}
	if err := r.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return nil
}
