package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeEvents — topic-обменник событий выполнения.
const ExchangeEvents = "conveyor.events"

// QueueWatch — очередь наблюдателя; привязана ко всем ключам обменника.
const QueueWatch = "conveyor.events.watch"

// Ключи маршрутизации событий.
const (
	RoutingKeyRunStarted   = "run.started"
	RoutingKeyItemFinished = "item.finished"
	RoutingKeyRunFinished  = "run.finished"
)

// SetupTopology объявляет обменник событий.
// Идемпотентно: повторное объявление с теми же параметрами безопасно.
func SetupTopology(conn *Connection) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.ExchangeDeclare(
			ExchangeEvents,
			"topic",
			true,  // durable
			false, // auto-deleted
			false, // internal
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ExchangeEvents, err)
		}
		return nil
	})
}

// SetupWatchQueue объявляет очередь наблюдателя и привязывает её
// ко всем событиям обменника.
func SetupWatchQueue(conn *Connection) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		_, err := ch.QueueDeclare(
			QueueWatch,
			false, // durable: наблюдатель эфемерный
			true,  // delete when unused
			false, // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueWatch, err)
		}
		if err := ch.QueueBind(QueueWatch, "#", ExchangeEvents, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", QueueWatch, err)
		}
		return nil
	})
}
