// Package broker implements the RabbitMQ-backed worker transport: a
// reconnecting connection, a "resilient channel" abstraction whose publish
// and ack methods loop internally until they succeed, and the topology
// (exchange/queue) declarations the worker depends on.
package broker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/pannpers/go-logging/logging"
)

// Connection wraps a single AMQP connection with a retry-forever dial loop
// and idempotent reconnection, grounded on the source's
// connect_to_rabbitmq: it returns the existing healthy connection if one is
// open, otherwise it dials a fresh one, satisfying both call-site shapes
// the source shows for init_rabbitmq_connection.
type Connection struct {
	uri        string
	retryDelay time.Duration
	logger     *logging.Logger

	mu   sync.Mutex
	conn *amqp.Connection
}

// NewConnection creates a Connection. It does not dial; call Connect.
func NewConnection(uri string, retryDelay time.Duration, logger *logging.Logger) *Connection {
	return &Connection{uri: uri, retryDelay: retryDelay, logger: logger}
}

// Connect returns the current connection if it is open, otherwise dials a
// new one, retrying forever with c.retryDelay between attempts until it
// succeeds or ctx is cancelled. This is the MB_READY -> CONNECTED
// transition of the worker state machine.
func (c *Connection) Connect(ctx context.Context) (*amqp.Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn, nil
	}

	for {
		conn, err := amqp.Dial(c.uri)
		if err == nil {
			c.conn = conn
			return conn, nil
		}

		c.logger.Error(ctx, "cannot connect to broker, retrying", err,
			slog.Duration("retry_delay", c.retryDelay))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
}

// Close closes the underlying connection if one is open.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}
