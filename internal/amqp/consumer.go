package amqp

import (
	"context"
	"fmt"
	"log/slog"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"go-polyglot-persistence/internal/config"
	"go-polyglot-persistence/internal/metrics"
	"go-polyglot-persistence/internal/store"
)

// Consumer owns the channel declared by the Broker Session and turns
// deliveries into Payload records for the DB Batcher.
type Consumer struct {
	channel *amqp091.Channel
	cfg     config.AMQP
	out     chan<- store.Payload
}

// NewConsumer constructs a Consumer over an already-declared channel.
func NewConsumer(ch *amqp091.Channel, cfg config.AMQP, out chan<- store.Payload) *Consumer {
	return &Consumer{channel: ch, cfg: cfg, out: out}
}

// Run sets prefetch, registers a close observer, and consumes deliveries
// until ctx is cancelled or the channel closes. Any failure sending on the
// bounded output channel or acking a delivery is fatal — there is no
// partial-failure mode worth recovering to in a transient probe.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.channel.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("amqp: set prefetch: %w", err)
	}

	closed := c.channel.NotifyClose(make(chan *amqp091.Error, 1))
	go func() {
		if err, ok := <-closed; ok && err != nil {
			slog.Error("channel error", "component", "payload_consumer", "error", err)
		}
	}()

	slog.Info("consuming", "component", "payload_consumer", "queue", c.cfg.QueueName)
	deliveries, err := c.channel.Consume(c.cfg.QueueName, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp: consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			if err := c.handle(ctx, d); err != nil {
				return err
			}
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp091.Delivery) error {
	p := store.New(d.Body, vhost, d.Exchange, d.RoutingKey)

	metrics.DeliveriesTotal.WithLabelValues(d.Exchange).Inc()
	if p.Content.IsRaw() {
		metrics.PayloadKindTotal.WithLabelValues("raw").Inc()
	} else {
		metrics.PayloadKindTotal.WithLabelValues("json").Inc()
	}

	// Blocking send: when the batcher is behind, this suspends here,
	// prefetch credit drains, and the broker stops pushing — the sole
	// backpressure point in the pipeline. The ctx case only protects
	// against the batcher having already exited during shutdown.
	select {
	case c.out <- p:
	case <-ctx.Done():
		return nil
	}

	if err := d.Ack(true); err != nil {
		return fmt.Errorf("amqp: ack: %w", err)
	}
	return nil
}
