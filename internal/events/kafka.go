package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"tokopos/backend/internal/domain"
)

// KafkaPublisher writes order events keyed by order id, so every change to
// one order lands on the same partition in commit order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// ParseBrokers splits a comma-separated broker list, dropping blanks.
func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func (p *KafkaPublisher) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error {
	msg, err := toMessage(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func toMessage(event domain.OrderEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	at := event.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return kafka.Message{
		Key:   []byte(event.OrderID),
		Value: data,
		Time:  at,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte("order.status." + strings.ToLower(string(event.To)))},
		},
	}, nil
}
