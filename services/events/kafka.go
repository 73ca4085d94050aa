package eventsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/payment"
)

// KafkaPublisher broadcasts recorded settlements for downstream consumers
// (accounting exports, notifications). Publishing is best effort: the
// settlement is already durable in the database by the time we get here.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger core.Logger
}

var _ payment.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(conf *core.Config, logger core.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(conf.Kafka.Brokers...),
			Topic:        conf.Kafka.SettlementTopic,
			Balancer:     &kafka.ReferenceHash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 100 * time.Millisecond,
		},
		logger: logger,
	}
}

type settlementEvent struct {
	EventID       string    `json:"event_id"`
	SettlementID  string    `json:"settlement_id"`
	CheckoutID    string    `json:"checkout_id,omitempty"`
	Amount        int64     `json:"amount"`
	Method        string    `json:"method"`
	TransactionID string    `json:"transaction_id"`
	Kind          string    `json:"kind"`
	RecordedAt    time.Time `json:"recorded_at"`
}

func (p *KafkaPublisher) SettlementRecorded(ctx context.Context, rec payment.SettlementRecord) {
	evt := settlementEvent{
		EventID:       rec.ID,
		SettlementID:  rec.ID,
		CheckoutID:    rec.CheckoutID,
		Amount:        rec.Amount,
		Method:        rec.Method,
		TransactionID: rec.TransactionID,
		Kind:          rec.Kind,
		RecordedAt:    rec.RecordedAt,
	}
	value, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error(fmt.Sprintf("marshalling settlement event %s: %v", rec.ID, err), err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(rec.ID),
		Value: value,
	}
	if err = p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error(fmt.Sprintf("publishing settlement event %s: %v", rec.ID, err), err)
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops events; used in DEV and tests when no broker is around.
type NopPublisher struct{}

var _ payment.EventPublisher = (*NopPublisher)(nil)

func (NopPublisher) SettlementRecorded(context.Context, payment.SettlementRecord) {}
