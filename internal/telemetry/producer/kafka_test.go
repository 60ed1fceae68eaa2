package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"fleet-tracker/internal/telemetry/domain"
)

type mockWriter struct {
	msgs     []kafka.Message
	err      error
	deadline bool
	closed   bool
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	_, m.deadline = ctx.Deadline()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

func TestKafkaProducer_Emit(t *testing.T) {
	w := &mockWriter{}
	p := &KafkaProducer{writer: w, topic: "fleet.events"}

	if err := p.Emit(context.Background(), &domain.Event{EventType: domain.EventPositionFix, DriverID: "7"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "7" {
		t.Fatalf("msgs = %+v", w.msgs)
	}
	if !w.deadline {
		t.Error("write should carry a timeout")
	}
	if err := p.Emit(context.Background(), nil); err != nil || len(w.msgs) != 1 {
		t.Errorf("nil event: err=%v msgs=%d", err, len(w.msgs))
	}
	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("Close: err=%v closed=%v", err, w.closed)
	}
}

func TestKafkaProducer_EmitError(t *testing.T) {
	want := errors.New("broker unavailable")
	p := &KafkaProducer{writer: &mockWriter{err: want}, topic: "fleet.events"}
	if err := p.Emit(context.Background(), &domain.Event{EventType: domain.EventFixStale}); !errors.Is(err, want) {
		t.Errorf("Emit = %v, want %v", err, want)
	}
}

func TestNewKafkaProducer_Disabled(t *testing.T) {
	if p := NewKafkaProducer(nil, "topic"); p != nil {
		t.Error("NewKafkaProducer with no brokers should return nil")
	}
	if p := NewKafkaProducer([]string{"localhost:9092"}, ""); p != nil {
		t.Error("NewKafkaProducer with no topic should return nil")
	}
}

func TestKafkaProducer_NilIsNoop(t *testing.T) {
	var p *KafkaProducer
	if err := p.Emit(context.Background(), &domain.Event{EventType: "x"}); err != nil {
		t.Errorf("nil Emit: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
}

func TestMessage_KeyedByDriver(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg, err := Message(&domain.Event{
		EventType: domain.EventPositionFix,
		DriverID:  "10",
		Metadata:  json.RawMessage(`{"seq":5}`),
		CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if string(msg.Key) != "10" {
		t.Errorf("key = %q, want %q", msg.Key, "10")
	}
	if !msg.Time.Equal(created) {
		t.Errorf("time = %v, want %v", msg.Time, created)
	}
	if len(msg.Headers) != 1 || msg.Headers[0].Key != HeaderEventType || string(msg.Headers[0].Value) != domain.EventPositionFix {
		t.Errorf("headers = %+v", msg.Headers)
	}
	var decoded domain.Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if decoded.EventType != domain.EventPositionFix || !decoded.CreatedAt.Equal(created) {
		t.Errorf("decoded = %+v", decoded)
	}
	if string(decoded.Metadata) != `{"seq":5}` {
		t.Errorf("metadata = %s", decoded.Metadata)
	}
}

func TestMessage_NoDriverNoKey(t *testing.T) {
	msg, err := Message(&domain.Event{EventType: domain.EventFixDropped})
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if msg.Key != nil {
		t.Errorf("key = %q, want nil", msg.Key)
	}
}
