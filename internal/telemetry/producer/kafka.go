package producer

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"fleet-tracker/internal/telemetry/domain"
)

// HeaderEventType carries the event type so consumers can filter without decoding values.
const HeaderEventType = "event-type"

const writeTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer writes events to one topic, partitioned by driver id.
type KafkaProducer struct {
	writer messageWriter
	topic  string
}

// NewKafkaProducer returns nil when brokers or topic are empty. A nil *KafkaProducer is a
// valid no-op.
func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		topic: topic,
	}
}

// Emit writes event. Position fixes of one driver share a key and therefore a partition,
// so the worker sees them in sequence order.
func (p *KafkaProducer) Emit(ctx context.Context, event *domain.Event) error {
	if p == nil || p.writer == nil || event == nil {
		return nil
	}
	msg, err := Message(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Printf("producer: write %s driver=%s topic=%s: %v", event.EventType, event.DriverID, p.topic, err)
		return err
	}
	return nil
}

// Close flushes and closes the writer. Safe on nil.
func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// Message encodes event as a Kafka message keyed by driver id.
func Message(event *domain.Event) (kafka.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	msg := kafka.Message{
		Value:   payload,
		Headers: []kafka.Header{{Key: HeaderEventType, Value: []byte(event.EventType)}},
	}
	if event.DriverID != "" {
		msg.Key = []byte(event.DriverID)
	}
	if !event.CreatedAt.IsZero() {
		msg.Time = event.CreatedAt
	}
	return msg, nil
}
