package telemetry

import (
	"context"
	"errors"
	"testing"

	"fleet-tracker/internal/telemetry/domain"
)

func TestTee_EmitsToAll(t *testing.T) {
	a, b := &mockEventEmitter{}, &mockEventEmitter{}
	ev := &domain.Event{EventType: domain.EventFixStale}

	if err := Tee(a, nil, b).Emit(context.Background(), ev); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(a.getEvents()) != 1 || len(b.getEvents()) != 1 {
		t.Errorf("a=%d b=%d events, want 1 each", len(a.getEvents()), len(b.getEvents()))
	}
}

func TestTee_JoinsErrorsAndContinues(t *testing.T) {
	errA := errors.New("kafka down")
	a := &mockEventEmitter{emitErr: errA}
	b := &mockEventEmitter{}

	err := Tee(a, b).Emit(context.Background(), &domain.Event{EventType: domain.EventFixStale})
	if !errors.Is(err, errA) {
		t.Errorf("err = %v, want %v", err, errA)
	}
	if len(b.getEvents()) != 1 {
		t.Error("second emitter must still receive the event")
	}
}

func TestTee_NoEmitters(t *testing.T) {
	if err := Tee(nil).Emit(context.Background(), &domain.Event{}); err != nil {
		t.Errorf("Emit = %v, want nil", err)
	}
}
