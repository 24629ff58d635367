package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/conveyorhq/conveyor/internal/domain"
)

// Publisher публикует события выполнения в обменник ExchangeEvents.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт публикатора событий.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Event — сериализуемое событие выполнения.
type Event struct {
	// ID — уникальный идентификатор события.
	ID string `json:"id"`

	// Key — ключ маршрутизации (run.started, item.finished, run.finished).
	Key string `json:"key"`

	// Project — имя проекта.
	Project string `json:"project"`

	// RunID — идентификатор выполнения в журнале.
	RunID string `json:"run_id,omitempty"`

	// Item, FilterID, State — для item.finished и run.finished.
	Item     string `json:"item,omitempty"`
	FilterID string `json:"filter_id,omitempty"`
	State    string `json:"state,omitempty"`

	// Items — состав DAG для run.started.
	Items []string `json:"items,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// publish сериализует и отправляет событие.
func (p *Publisher) publish(ctx context.Context, ev *Event) error {
	ev.ID = uuid.NewString()
	ev.Timestamp = time.Now().UTC()

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			ExchangeEvents,
			ev.Key,
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Transient,
				MessageId:    ev.ID,
				Timestamp:    ev.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish %s: %w", ev.Key, err)
		}
		p.logger.Debug("published event", "key", ev.Key, "project", ev.Project)
		return nil
	})
}

// PublishRunStarted публикует начало выполнения DAG.
func (p *Publisher) PublishRunStarted(ctx context.Context, project, runID string, items []string) error {
	return p.publish(ctx, &Event{
		Key:     RoutingKeyRunStarted,
		Project: project,
		RunID:   runID,
		Items:   items,
	})
}

// PublishItemFinished публикует завершение элемента.
func (p *Publisher) PublishItemFinished(ctx context.Context, project, runID, item, filterID string, state domain.ItemState) error {
	return p.publish(ctx, &Event{
		Key:      RoutingKeyItemFinished,
		Project:  project,
		RunID:    runID,
		Item:     item,
		FilterID: filterID,
		State:    string(state),
	})
}

// PublishRunFinished публикует завершение выполнения DAG.
func (p *Publisher) PublishRunFinished(ctx context.Context, project, runID string, state domain.DagState) error {
	return p.publish(ctx, &Event{
		Key:     RoutingKeyRunFinished,
		Project: project,
		RunID:   runID,
		State:   string(state),
	})
}
