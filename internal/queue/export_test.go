package queue

import amqp "github.com/rabbitmq/amqp091-go"

// Conn returns the connection currently in use.
func (r *RabbitMQ) Conn() *amqp.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn
}
