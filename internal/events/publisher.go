// Package events публикует события учетных записей в RabbitMQ для
// остальных сервисов экосистемы. Публикация опциональна: nil-паблишер
// молча пропускает все события.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// Exchange имя обменника событий учетных записей.
const Exchange = "identity.events"

const (
	// RoutingKeyAccountCreated событие создания учетной записи
	RoutingKeyAccountCreated = "account.created"
	// RoutingKeyBalanceDebited событие успешного списания баланса
	RoutingKeyBalanceDebited = "balance.debited"
)

// AccountCreated тело события создания учетной записи.
type AccountCreated struct {
	EventID   string    `json:"event_id"`
	UserID    int64     `json:"user_id"`
	RefCode   string    `json:"ref_code"`
	CreatedAt time.Time `json:"created_at"`
}

// BalanceDebited тело события списания баланса.
type BalanceDebited struct {
	EventID        string    `json:"event_id"`
	UserID         int64     `json:"user_id"`
	AmountKopecks  int64     `json:"amount_kopecks"`
	BalanceKopecks int64     `json:"balance_kopecks"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher публикует события в обменник identity.events.
type Publisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// New подключается к RabbitMQ и объявляет обменник.
func New(address string) (*Publisher, error) {
	const op = "events.New"

	conn, err := amqp.Dial(address)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Publisher{conn: conn, ch: ch}, nil
}

// NewEventID возвращает идентификатор события.
func NewEventID() string {
	return uuid.New().String()
}

// Publish публикует сообщение с указанным ключом маршрутизации.
// Безопасен на nil-получателе.
func (p *Publisher) Publish(routingKey string, message any) error {
	const op = "events.Publish"
	if p == nil {
		return nil
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = p.ch.Publish(
		Exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close закрывает канал и соединение.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	_ = p.ch.Close()
	_ = p.conn.Close()
}
