// Package events announces intent lifecycle transitions to the rest of the platform.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"paycore/internal/domain"
	"paycore/internal/models"
)

// IntentEvent is published after every applied transition.
type IntentEvent struct {
	ID             string              `json:"id"`
	Type           string              `json:"type"`
	OrderID        string              `json:"order_id"`
	IntentID       uint                `json:"intent_id"`
	Provider       domain.Provider     `json:"provider"`
	Status         domain.IntentStatus `json:"status"`
	PreviousStatus domain.IntentStatus `json:"previous_status,omitempty"`
	Amount         decimal.Decimal     `json:"amount"`
	Currency       string              `json:"currency"`
	TransactionID  string              `json:"transaction_id,omitempty"`
	OccurredAt     time.Time           `json:"occurred_at"`
}

// NewIntentEvent snapshots p after it moved from prev to its current status.
func NewIntentEvent(p *models.PaymentIntent, prev domain.IntentStatus) IntentEvent {
	return IntentEvent{
		ID:             uuid.NewString(),
		Type:           "payment_intent." + strings.ToLower(string(p.Status)),
		OrderID:        p.OrderID,
		IntentID:       p.ID,
		Provider:       p.Provider,
		Status:         p.Status,
		PreviousStatus: prev,
		Amount:         p.Amount,
		Currency:       p.Currency,
		TransactionID:  p.ExternalID(),
		OccurredAt:     time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e IntentEvent) error
}

// Producer is the subset of *kafka.Writer the publisher needs.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher writes events keyed by order id so one order's events stay ordered.
type KafkaPublisher struct {
	producer Producer
	topic    string
}

func NewKafkaPublisher(producer Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// NewKafkaWriter returns a writer for brokers. The topic is set per message.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e IntentEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.producer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(e.OrderID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(e.ID)},
		},
	})
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, IntentEvent) error { return nil }

// Multi publishes to every target and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e IntentEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
