package broker

import (
	"context"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/metabrainz/messybrainz-clusterer/internal/entity"
	"github.com/pannpers/go-logging/logging"
)

// ListenProcessor is the online clusterer's contract from the worker's
// point of view: process one decoded listen and its raw body.
type ListenProcessor interface {
	ProcessListen(ctx context.Context, listen entity.Listen, body []byte) error
}

// resilientChannel is the Worker's contract on top of Channel: republish and
// acknowledge, each retrying through reconnect until it succeeds. Narrowing
// the dependency to this interface (Channel satisfies it) keeps the worker
// loop testable without a live broker connection.
type resilientChannel interface {
	Publish(ctx context.Context, body []byte) (<-chan amqp.Delivery, error)
	Ack(ctx context.Context, deliveryTag uint64) (<-chan amqp.Delivery, error)
	Setup(ctx context.Context) (<-chan amqp.Delivery, error)
	reconnect(ctx context.Context) (<-chan amqp.Delivery, error)
}

// Worker runs the CONSUMING state: for every delivery, it decodes and
// clusters the listen, republishes the original body to UNIQUE_EXCHANGE,
// then acks — retrying publish and ack through reconnect until both
// succeed, per specification §4.F. When Publish had to reconnect, the
// delivery is not acked: it went back to the incoming queue with the old
// channel.
type Worker struct {
	channel   resilientChannel
	processor ListenProcessor
	logger    *logging.Logger
}

// NewWorker creates a Worker.
func NewWorker(channel *Channel, processor ListenProcessor, logger *logging.Logger) *Worker {
	return &Worker{channel: channel, processor: processor, logger: logger}
}

// Run establishes the broker topology and consumes deliveries until ctx is
// cancelled.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.channel.Setup(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				deliveries, err = w.channel.reconnect(ctx)
				if err != nil {
					return err
				}
				continue
			}
			deliveries = w.handleDelivery(ctx, delivery, deliveries)
		}
	}
}

// handleDelivery clusters one delivery and republishes/acks it, returning
// whichever delivery stream is now current (unchanged unless a reconnect
// happened mid-delivery).
func (w *Worker) handleDelivery(ctx context.Context, delivery amqp.Delivery, current <-chan amqp.Delivery) <-chan amqp.Delivery {
	listen, err := entity.ParseListen(delivery.Body)
	if err != nil {
		// Bad input on the online path is swallowed per specification §7:
		// the message is still acked so it does not loop forever.
		w.logger.Warn(ctx, "dropping malformed listen", slog.String("error", err.Error()))
	} else if err := w.processor.ProcessListen(ctx, listen, delivery.Body); err != nil {
		w.logger.Error(ctx, "unexpected error processing listen, publishing and acking anyway", err)
	}

	if fresh, err := w.channel.Publish(ctx, delivery.Body); err != nil {
		w.logger.Error(ctx, "giving up publishing to unique exchange", err)
		return current
	} else if fresh != nil {
		// The connection was lost mid-publish: this delivery is already
		// back on the incoming queue, so there is nothing left to ack.
		return fresh
	}

	if fresh, err := w.channel.Ack(ctx, delivery.DeliveryTag); err != nil {
		w.logger.Error(ctx, "giving up acking delivery", err)
		return current
	} else if fresh != nil {
		return fresh
	}

	return current
}
