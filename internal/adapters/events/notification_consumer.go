package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/agrobid/agrobid/internal/adapters/ws"
	pkgevents "github.com/agrobid/agrobid/pkg/events"
)

// NotificationConsumer feeds relayed outbox events into the local websocket
// hub. Each API node binds its own auto-delete queue to the topic exchange,
// so every node sees every event and can serve whichever clients happen to
// be connected to it.
type NotificationConsumer struct {
	conn   *amqp.Connection
	hub    *ws.Hub
	logger *slog.Logger
}

func NewNotificationConsumer(conn *amqp.Connection, hub *ws.Hub, logger *slog.Logger) *NotificationConsumer {
	return &NotificationConsumer{
		conn:   conn,
		hub:    hub,
		logger: logger,
	}
}

// Run consumes until the context is cancelled or the channel closes.
func (c *NotificationConsumer) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	queue, err := c.setup(ch)
	if err != nil {
		return fmt.Errorf("failed to set up queue: %w", err)
	}

	msgs, err := ch.Consume(
		queue, // queue
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("notification consumer started", slog.String("queue", queue))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consume channel closed")
			}
			c.dispatch(d)
		}
	}
}

// dispatch pushes one relayed event to its target group. Delivery to the hub
// is best effort, so a malformed or undeliverable message is dropped, never
// requeued.
func (c *NotificationConsumer) dispatch(d amqp.Delivery) {
	var envelope pkgevents.Envelope
	if err := json.Unmarshal(d.Body, &envelope); err != nil {
		c.logger.Error("failed to unmarshal envelope",
			slog.String("routing_key", d.RoutingKey), slog.String("error", err.Error()))
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.logger.Error("failed to nack message", slog.String("error", nackErr.Error()))
		}
		return
	}

	switch {
	case envelope.ProductID != nil:
		c.hub.EmitToProduct(*envelope.ProductID, envelope.Event, envelope.Payload)
	case envelope.UserID != nil:
		c.hub.EmitToUser(*envelope.UserID, envelope.Event, envelope.Payload)
	default:
		c.logger.Warn("envelope has no target", slog.String("event", envelope.Event))
	}

	if err := d.Ack(false); err != nil {
		c.logger.Error("failed to ack message", slog.String("error", err.Error()))
	}
}

// setup declares the exchange and binds a per-node queue to every event.
func (c *NotificationConsumer) setup(ch *amqp.Channel) (string, error) {
	if err := declareExchange(ch); err != nil {
		return "", err
	}

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return "", err
	}

	if err := ch.QueueBind(q.Name, "#", Exchange, false, nil); err != nil {
		return "", err
	}
	return q.Name, nil
}
