// Package main is a minimal ambient helper that publishes one raw JSON
// listen body (read from stdin) onto INCOMING_EXCHANGE. It stands in for
// the HTTP submission surface, which is out of scope (specification §1):
// the surface's only in-scope contract is "publish raw JSON onto the
// ingest exchange", and this CLI exercises exactly that.
package main

import (
	"context"
	"io"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/metabrainz/messybrainz-clusterer/pkg/config"
	"github.com/pannpers/go-logging/logging"
)

func main() {
	if err := run(); err != nil {
		logger, _ := logging.New()
		logger.Error(context.Background(), "submit-listen failed", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	logger, err := logging.New()
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	body, err := io.ReadAll(os.Stdin)
	if err != nil {
		return err
	}

	conn, err := amqp.Dial(cfg.Broker.AMQPURI())
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(cfg.Topology.IncomingExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return err
	}

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = ch.PublishWithContext(publishCtx, cfg.Topology.IncomingExchange, "", false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "listen published")
	return nil
}
