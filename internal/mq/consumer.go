package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler — обработчик одного события. Ошибка возвращает событие
// в очередь.
type Handler func(ctx context.Context, ev *Event) error

// Consumer подписывается на поток событий выполнения.
// Используется командой watch.
type Consumer struct {
	conn    *Connection
	logger  *slog.Logger
	handler Handler

	cancel context.CancelFunc
}

// NewConsumer создаёт подписчика на очередь наблюдателя.
func NewConsumer(conn *Connection, handler Handler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{conn: conn, logger: logger, handler: handler}
}

// Start потребляет события до отмены контекста. При разрыве соединения
// дожидается переподключения и продолжает.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		deliveries, err := c.setup()
		if err != nil {
			c.logger.Error("cannot start consuming", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				continue
			}
		}

		c.logger.Info("watching execution events", "queue", QueueWatch)

		if err := c.process(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, reconnecting")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.ReconnectNotify():
				continue
			}
		}
	}
}

// setup объявляет очередь наблюдателя и начинает потребление.
func (c *Consumer) setup() (<-chan amqp.Delivery, error) {
	if err := SetupTopology(c.conn); err != nil {
		return nil, err
	}
	if err := SetupWatchQueue(c.conn); err != nil {
		return nil, err
	}

	ch := c.conn.Channel()
	if ch == nil {
		return nil, fmt.Errorf("no channel available")
	}
	deliveries, err := ch.Consume(
		QueueWatch,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

// process обрабатывает события из канала доставки.
func (c *Consumer) process(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}
			c.handle(ctx, raw)
		}
	}
}

// handle разбирает и обрабатывает одно событие.
func (c *Consumer) handle(ctx context.Context, raw amqp.Delivery) {
	var ev Event
	if err := json.Unmarshal(raw.Body, &ev); err != nil {
		c.logger.Error("malformed event", "error", err, "body", string(raw.Body))
		raw.Nack(false, false)
		return
	}
	if err := c.handler(ctx, &ev); err != nil {
		c.logger.Error("handler failed", "key", ev.Key, "error", err)
		raw.Nack(false, true)
		return
	}
	raw.Ack(false)
}

// Stop останавливает подписчика.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}
