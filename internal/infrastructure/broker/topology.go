package broker

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Topology names the exchanges and queue the worker declares.
type Topology struct {
	IncomingExchange string
	IncomingQueue    string
	UniqueExchange   string
}

// declare sets up INCOMING_EXCHANGE as a fanout with a durable queue bound
// to it, and UNIQUE_EXCHANGE as a fanout with no queue of its own —
// downstream consumers declare and bind their own queues.
func declare(ch *amqp.Channel, topo Topology) error {
	if err := ch.ExchangeDeclare(topo.IncomingExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(topo.UniqueExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return err
	}

	queue, err := ch.QueueDeclare(topo.IncomingQueue, true, false, false, false, nil)
	if err != nil {
		return err
	}

	return ch.QueueBind(queue.Name, "", topo.IncomingExchange, false, nil)
}
