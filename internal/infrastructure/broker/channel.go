package broker

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/pannpers/go-logging/logging"
)

// Channel is the "resilient channel" abstraction design note 9 calls for:
// Publish and Ack loop internally, reconnecting through the owning
// Connection until they succeed, so the clustering code above them never
// observes a transport error directly.
type Channel struct {
	connection *Connection
	topo       Topology
	retryDelay time.Duration
	logger     *logging.Logger

	mu         sync.Mutex
	incomingCh *amqp.Channel
	uniqueCh   *amqp.Channel
}

// NewChannel creates a Channel bound to connection and topo.
func NewChannel(connection *Connection, topo Topology, retryDelay time.Duration, logger *logging.Logger) *Channel {
	return &Channel{connection: connection, topo: topo, retryDelay: retryDelay, logger: logger}
}

// Setup opens the incoming consumer channel and the unique producer
// channel, declares the topology, and returns the consumer's delivery
// stream. This is the CONNECTED-setup step of the worker state machine.
func (c *Channel) Setup(ctx context.Context) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connection.Connect(ctx)
	if err != nil {
		return nil, err
	}

	incomingCh, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := declare(incomingCh, c.topo); err != nil {
		incomingCh.Close()
		return nil, err
	}
	if err := incomingCh.Qos(1, 0, false); err != nil {
		incomingCh.Close()
		return nil, err
	}

	uniqueCh, err := conn.Channel()
	if err != nil {
		incomingCh.Close()
		return nil, err
	}

	deliveries, err := incomingCh.Consume(c.topo.IncomingQueue, "", false, false, false, false, nil)
	if err != nil {
		incomingCh.Close()
		uniqueCh.Close()
		return nil, err
	}

	c.incomingCh = incomingCh
	c.uniqueCh = uniqueCh

	return deliveries, nil
}

// reconnect tears down both channels and re-runs Setup, retrying forever
// with c.retryDelay between attempts. This is the RECONNECTING state: the
// underlying connection may itself still be healthy or may need a fresh
// dial, either way Connection.Connect handles that idempotently.
func (c *Channel) reconnect(ctx context.Context) (<-chan amqp.Delivery, error) {
	c.teardown()

	for {
		deliveries, err := c.Setup(ctx)
		if err == nil {
			return deliveries, nil
		}

		c.logger.Error(ctx, "failed to reconnect broker channels, retrying", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *Channel) teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.incomingCh != nil {
		c.incomingCh.Close()
		c.incomingCh = nil
	}
	if c.uniqueCh != nil {
		c.uniqueCh.Close()
		c.uniqueCh = nil
	}
}

// Publish republishes body to UNIQUE_EXCHANGE with a persistent delivery
// mode, reconnecting and retrying until it succeeds. It returns the fresh
// delivery stream whenever a reconnect happened, so the caller's consume
// loop can keep reading from the current channel.
func (c *Channel) Publish(ctx context.Context, body []byte) (<-chan amqp.Delivery, error) {
	var freshDeliveries <-chan amqp.Delivery

	for {
		c.mu.Lock()
		ch := c.uniqueCh
		c.mu.Unlock()

		if ch != nil {
			err := ch.PublishWithContext(ctx, c.topo.UniqueExchange, "", false, false, amqp.Publishing{
				DeliveryMode: amqp.Persistent,
				ContentType:  "application/json",
				Body:         body,
			})
			if err == nil {
				return freshDeliveries, nil
			}
			c.logger.Error(ctx, "publish failed, reconnecting", err)
		}

		deliveries, err := c.reconnect(ctx)
		if err != nil {
			return nil, err
		}
		freshDeliveries = deliveries
	}
}

// Ack acknowledges deliveryTag on the incoming channel, reconnecting and
// retrying until it succeeds. As with Publish, it returns the fresh
// delivery stream whenever a reconnect happened.
func (c *Channel) Ack(ctx context.Context, deliveryTag uint64) (<-chan amqp.Delivery, error) {
	var freshDeliveries <-chan amqp.Delivery

	for {
		c.mu.Lock()
		ch := c.incomingCh
		c.mu.Unlock()

		if ch != nil {
			err := ch.Ack(deliveryTag, false)
			if err == nil {
				return freshDeliveries, nil
			}
			c.logger.Error(ctx, "ack failed, reconnecting", err)
		}

		deliveries, err := c.reconnect(ctx)
		if err != nil {
			return nil, err
		}
		freshDeliveries = deliveries
	}
}

// Close tears down both channels and the underlying connection.
func (c *Channel) Close() error {
	c.teardown()
	return c.connection.Close()
}
