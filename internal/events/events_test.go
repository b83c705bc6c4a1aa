package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paycore/internal/domain"
	"paycore/internal/models"
)

type fakeProducer struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func completedIntent() *models.PaymentIntent {
	tx := "cs_1"
	return &models.PaymentIntent{
		ID:            9,
		OrderID:       "O1",
		Amount:        decimal.NewFromInt(250),
		Currency:      "SAR",
		Provider:      domain.ProviderCard,
		Status:        domain.StatusCompleted,
		TransactionID: &tx,
	}
}

func TestKafkaPublisherKeysByOrder(t *testing.T) {
	prod := &fakeProducer{}
	pub := NewKafkaPublisher(prod, "payment-intents")

	ev := NewIntentEvent(completedIntent(), domain.StatusPending)
	require.NoError(t, pub.Publish(context.Background(), ev))

	require.Len(t, prod.msgs, 1)
	msg := prod.msgs[0]
	assert.Equal(t, "payment-intents", msg.Topic)
	assert.Equal(t, "O1", string(msg.Key))
	assert.Equal(t, "payment_intent.completed", string(msg.Headers[0].Value))

	var decoded IntentEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, domain.StatusCompleted, decoded.Status)
	assert.Equal(t, domain.StatusPending, decoded.PreviousStatus)
	assert.Equal(t, "cs_1", decoded.TransactionID)
	assert.True(t, decimal.NewFromInt(250).Equal(decoded.Amount))
}

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("broker down")
	ok := &fakeProducer{}
	m := Multi{NewKafkaPublisher(&fakeProducer{err: boom}, "t"), NewKafkaPublisher(ok, "t"), NopPublisher{}}

	err := m.Publish(context.Background(), NewIntentEvent(completedIntent(), domain.StatusPending))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, ok.msgs, 1)
}
