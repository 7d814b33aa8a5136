// Package redisstreams implements broker.Broker on top of Redis
// Streams consumer groups, standing in for the RabbitMQ topic
// exchanges spec §6.1 describes (see DESIGN.md for the substitution
// rationale). XADD durability plus XREADGROUP/XACK consumer groups give
// the same durable-queue, manual-ack, at-least-once shape the spec
// calls for.
package redisstreams

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"marketpipeline/internal/broker"
)

// streamMaxLen bounds stream growth the same way alanyoungcy-polymarketbot's
// SignalBus does, via an approximate XADD MAXLEN trim.
const streamMaxLen = 100000

// pollInterval matches spec §5's "broker consume uses a 1-second poll".
const pollInterval = 1 * time.Second

// queueBindings maps each durable queue name from §6.1 to the stream
// key it is bound to.
var queueBindings = map[string]string{
	broker.QueuePPO:          streamKey(broker.TopicOrderbook, broker.RoutingKeyOrderbookUpdates),
	broker.QueuePPOExecution: streamKey(broker.TopicExecution, broker.RoutingKeyExecutionUpdate),
	broker.QueueOMSAction:    streamKey(broker.TopicOMS, broker.RoutingKeyOMSAction),
}

func streamKey(topic, routingKey string) string {
	return topic + ":" + routingKey
}

// Broker implements broker.Broker using a shared *redis.Client.
type Broker struct {
	rdb      *redis.Client
	consumer string
}

// New creates a Broker. consumerName identifies this process within
// each consumer group it joins (one group per queue name).
func New(rdb *redis.Client, consumerName string) *Broker {
	return &Broker{rdb: rdb, consumer: consumerName}
}

// Publish appends payload to the stream bound to topic/routingKey.
func (b *Broker) Publish(ctx context.Context, topic, routingKey string, payload []byte) error {
	stream := streamKey(topic, routingKey)
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": payload},
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redisstreams: publish %s: %w", stream, err)
	}
	return nil
}

// Consume runs handler for every delivery on queue's bound stream,
// using a consumer group named after the queue so multiple processes
// sharing a queue name share the workload and manual acks are
// per-message. Negative-acknowledgement-with-requeue (§7) is the
// absence of an XAck: the message remains in this consumer's pending
// entry list, and the next read goes back to that list (ID "0") so the
// message is delivered again before any new entries (">") are read.
// The first read after start also goes through the pending list, so
// entries left unacked by an earlier run under the same consumer name
// are redelivered.
func (b *Broker) Consume(ctx context.Context, queue string, handler broker.Handler) error {
	stream, ok := queueBindings[queue]
	if !ok {
		return fmt.Errorf("redisstreams: unknown queue %q", queue)
	}
	if err := b.ensureGroup(ctx, stream, queue); err != nil {
		return err
	}

	readID := "0"
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    queue,
			Consumer: b.consumer,
			Streams:  []string{stream, readID},
			Count:    32,
			Block:    pollInterval,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			return fmt.Errorf("redisstreams: read group %s: %w", queue, err)
		}

		delivered, nacked := 0, false
		for _, s := range res {
			for _, msg := range s.Messages {
				delivered++
				payload, _ := msg.Values["payload"]
				data := payloadBytes(payload)
				if err := handler(ctx, broker.Delivery{ID: msg.ID, Payload: data}); err != nil {
					nacked = true
					continue
				}
				b.rdb.XAck(ctx, stream, queue, msg.ID)
			}
		}
		switch {
		case nacked:
			readID = "0"
		case readID == "0" && delivered == 0:
			readID = ">"
		}
	}
}

func (b *Broker) ensureGroup(ctx context.Context, stream, group string) error {
	err := b.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !isBusyGroupErr(err) {
		return fmt.Errorf("redisstreams: create group %s on %s: %w", group, stream, err)
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

func payloadBytes(v interface{}) []byte {
	switch t := v.(type) {
	case string:
		return []byte(t)
	case []byte:
		return t
	default:
		return nil
	}
}
