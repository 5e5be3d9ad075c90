package queue

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Consumer attaches the gateway to the broker.  Its Start method is the
// supervisor's OnConnected callback, so topology and consumers are
// re-established after every reconnect.
type Consumer struct {
	gw       *Gateway
	prefetch int
	log      *zap.Logger
}

// NewConsumer builds a consumer handling at most prefetch deliveries of
// each queue at a time.
func NewConsumer(gw *Gateway, prefetch int, log *zap.Logger) *Consumer {
	if prefetch < 1 {
		prefetch = 1
	}
	return &Consumer{gw: gw, prefetch: prefetch, log: log}
}

// Start declares the topology and starts one consume loop per inbound queue.
// The loops end when the channel closes.
func (c *Consumer) Start(ctx context.Context, ch Channel) error {
	if err := DeclareTopology(ch); err != nil {
		return err
	}
	for _, event := range InboundEvents {
		msgs, err := ch.Consume(QueueName(event), "directory-auth."+event, false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", QueueName(event), err)
		}
		go c.consumeLoop(ctx, event, msgs)
	}
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context, event string, msgs <-chan amqp.Delivery) {
	var g errgroup.Group
	g.SetLimit(c.prefetch)
	for d := range msgs {
		d := d
		g.Go(func() error {
			out := c.gw.Handle(ctx, event, d.Body)
			if err := settle(d, out); err != nil {
				// the broker redelivers anything left unacknowledged
				c.log.Warn("settle delivery failed", zap.String("event", event),
					zap.Stringer("outcome", out), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	c.log.Info("consume loop ended", zap.String("queue", QueueName(event)))
}

// settle applies an outcome to a delivery.
func settle(d amqp.Delivery, out Outcome) error {
	switch out {
	case Ack:
		return d.Ack(false)
	case Requeue:
		return d.Nack(false, true)
	default:
		return d.Nack(false, false) // reject, do not requeue to avoid tight loops
	}
}
