// Package bus implements the topic-routed message bus on Redis Streams.
//
// Publishing routes a JSON payload by routing key to every bound queue;
// each queue is one stream consumed through a consumer group with a
// read count of 1 and an explicit ack after the handler returns, so a
// failed handler leaves the message pending and it is retried after a
// short pause. Consumers therefore see at-least-once delivery and must
// tolerate duplicates.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// consumer group shared by all workers; one consumer per queue.
const group = "workers"

// maxReconnectDelay caps the consumer backoff between failed attempts.
const maxReconnectDelay = 30 * time.Second

// Publisher is the publish side of the bus. Workers that only emit
// messages depend on this instead of the full Bus.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Bus wraps the Redis connection used for publishing and consuming.
type Bus struct {
	client *redis.Client
	log    *zap.Logger
}

// New connects to Redis and verifies the connection.
func New(host, port, password string, log *zap.Logger) (*Bus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to bus at %s:%s: %w", host, port, err)
	}

	return &Bus{client: client, log: log}, nil
}

// Publish routes a payload to every queue bound to the routing key. The
// payload is marshalled once as UTF-8 JSON.
func (b *Bus) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", routingKey, err)
	}

	queues := QueuesFor(routingKey)
	if len(queues) == 0 {
		return fmt.Errorf("no queue bound to routing key %s", routingKey)
	}

	for _, queue := range queues {
		err := b.client.XAdd(ctx, &redis.XAddArgs{
			Stream: StreamName(queue),
			Values: map[string]any{
				"routing_key": routingKey,
				"body":        body,
			},
		}).Err()
		if err != nil {
			return fmt.Errorf("failed to publish %s to %s: %w", routingKey, queue, err)
		}
	}

	b.log.Debug("published message",
		zap.String("routing_key", routingKey),
		zap.Int("queues", len(queues)))
	return nil
}

// Close closes the Redis connection
func (b *Bus) Close() error {
	return b.client.Close()
}

// Handler processes one message body. Returning nil acks the message;
// returning an error leaves it pending for redelivery.
type Handler func(ctx context.Context, body []byte) error

// Consumer binds one queue to a handler.
type Consumer struct {
	bus     *Bus
	queue   string
	handler Handler
	log     *zap.Logger
}

// NewConsumer creates a consumer for the queue.
func NewConsumer(b *Bus, queue string, handler Handler, log *zap.Logger) *Consumer {
	return &Consumer{bus: b, queue: queue, handler: handler, log: log}
}

// backoff tracks the reconnect delay between consumer sessions. A
// session that handled at least one message starts the progression
// over; consecutive failing sessions double the delay up to the cap.
type backoff struct {
	delay time.Duration
}

func (b *backoff) next(handled bool) time.Duration {
	if handled || b.delay == 0 {
		b.delay = time.Second
	} else {
		b.delay *= 2
		if b.delay > maxReconnectDelay {
			b.delay = maxReconnectDelay
		}
	}
	return b.delay
}

// Run consumes the queue until the context is cancelled, reconnecting
// with exponential backoff capped at 30 seconds. A session that handled
// messages resets the backoff. Messages left pending by a previous run
// are redelivered before new ones are read.
func (c *Consumer) Run(ctx context.Context) error {
	stream := StreamName(c.queue)
	var wait backoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		handled := false
		err := c.ensureGroup(ctx, stream)
		if err == nil {
			handled, err = c.consume(ctx, stream)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := wait.next(handled)
		c.log.Warn("consumer interrupted, reconnecting",
			zap.String("queue", c.queue),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Consumer) ensureGroup(ctx context.Context, stream string) error {
	err := c.bus.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group on %s: %w", stream, err)
	}
	return nil
}

// consume reads one message at a time: first the consumer's own pending
// entries (id "0"), then new messages (id ">"). A handler failure moves
// the cursor back to the pending entries so the unacked message is
// retried rather than stranded until the next restart. Returns only on
// error, reporting whether any message was handled.
func (c *Consumer) consume(ctx context.Context, stream string) (bool, error) {
	handled := false
	id := "0"
	for {
		result, err := c.bus.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: c.queue,
			Streams:  []string{stream, id},
			Count:    1,
			Block:    5 * time.Second,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return handled, err
		}

		if len(result) == 0 || len(result[0].Messages) == 0 {
			// pending entries drained, switch to new messages
			if id == "0" {
				id = ">"
			}
			continue
		}

		for _, message := range result[0].Messages {
			if c.handle(ctx, stream, message) {
				handled = true
				continue
			}

			// re-read the pending message after a pause instead of
			// hot-looping on a persistently failing handler
			id = "0"
			select {
			case <-ctx.Done():
				return handled, ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

// handle dispatches one message and reports whether it was acked.
func (c *Consumer) handle(ctx context.Context, stream string, message redis.XMessage) bool {
	body, ok := message.Values["body"].(string)
	if !ok {
		// not one of ours; ack so it does not wedge the queue
		c.log.Warn("message without body", zap.String("id", message.ID), zap.String("queue", c.queue))
		c.bus.client.XAck(ctx, stream, group, message.ID)
		return true
	}

	if err := c.handler(ctx, []byte(body)); err != nil {
		// leave the message pending so it is read again
		c.log.Error("handler failed, message left for redelivery",
			zap.String("queue", c.queue),
			zap.String("id", message.ID),
			zap.Error(err))
		return false
	}

	if err := c.bus.client.XAck(ctx, stream, group, message.ID).Err(); err != nil {
		c.log.Warn("failed to ack message", zap.String("id", message.ID), zap.Error(err))
	}
	return true
}
