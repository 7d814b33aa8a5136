// Package broker defines the message-broker boundary the three engine
// binaries publish and consume through: topic/queue semantics modeled
// on the RabbitMQ exchanges and queues in spec §6.1, durable and
// manual-ack, even though the concrete implementation underneath is
// Redis Streams (see internal/broker/redisstreams and DESIGN.md).
package broker

import "context"

// Delivery is one consumed message awaiting acknowledgement.
type Delivery struct {
	ID      string
	Payload []byte
}

// Handler processes one delivery. Returning an error negatively
// acknowledges the message with requeue (§7 error taxonomy); returning
// nil acknowledges it.
type Handler func(ctx context.Context, d Delivery) error

// Broker is the publish/consume boundary shared by the Depth Engine,
// Decision Relay, and Lifecycle Engine.
type Broker interface {
	// Publish sends payload to the given topic/routing key, durable and
	// persistent (§6.1).
	Publish(ctx context.Context, topic, routingKey string, payload []byte) error

	// Consume runs handler for every delivery on queue until ctx is
	// canceled, polling at the interval described in §5 ("broker
	// consume uses a 1-second poll").
	Consume(ctx context.Context, queue string, handler Handler) error
}

// Topic names and routing keys from §6.1.
const (
	TopicOrderbook = "orderbook"
	TopicOMS       = "oms"
	TopicExecution = "execution-exchange"

	RoutingKeyOrderbookUpdates = "orderbook.updates"
	RoutingKeyOMSAction        = "oms.action"
	RoutingKeyExecutionUpdate  = "execution.update"
)

// Queue names from §6.1.
const (
	QueuePPO           = "ppo_queue"
	QueuePPOExecution   = "ppo_execution_queue"
	QueueOMSAction      = "oms_action_queue"
)
