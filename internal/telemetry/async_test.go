package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fleet-tracker/internal/telemetry/domain"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*domain.Event
	emitErr error
	delay   time.Duration
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *domain.Event) error {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.delay):
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.emitErr
}

func (m *mockEventEmitter) getEvents() []*domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

// waitForEvents polls until the emitter has n events or the deadline passes.
func waitForEvents(m *mockEventEmitter, n int) []*domain.Event {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if ev := m.getEvents(); len(ev) >= n {
			return ev
		}
		time.Sleep(5 * time.Millisecond)
	}
	return m.getEvents()
}

func TestEmitAsync_NilEmitter(t *testing.T) {
	// Should not panic
	EmitAsync(nil, context.Background(), &domain.Event{EventType: "test"})
}

func TestEmitAsync_NilEvent(t *testing.T) {
	emitter := &mockEventEmitter{}
	EmitAsync(emitter, context.Background(), nil)

	time.Sleep(10 * time.Millisecond)
	if events := emitter.getEvents(); len(events) != 0 {
		t.Errorf("expected 0 events, got %d", len(events))
	}
}

func TestEmitAsync_SuccessfulEmit(t *testing.T) {
	emitter := &mockEventEmitter{}
	event := &domain.Event{
		EventType: domain.EventPositionFix,
		Source:    "ingest",
		DriverID:  "10",
		VehicleID: "1",
	}

	EmitAsync(emitter, context.Background(), event)

	events := waitForEvents(emitter, 1)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].DriverID != "10" {
		t.Errorf("event driver_id = %q, want %q", events[0].DriverID, "10")
	}
	if events[0].EventType != domain.EventPositionFix {
		t.Errorf("event type = %q, want %q", events[0].EventType, domain.EventPositionFix)
	}
}

func TestEmitAsync_UsesBackgroundContext(t *testing.T) {
	emitter := &mockEventEmitter{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel the request context immediately

	// Should still emit even though request context is cancelled
	EmitAsync(emitter, ctx, &domain.Event{EventType: "test"})

	if events := waitForEvents(emitter, 1); len(events) != 1 {
		t.Errorf("expected 1 event (context.Background used), got %d", len(events))
	}
}

func TestEmitAsync_ErrorHandling(t *testing.T) {
	emitter := &mockEventEmitter{emitErr: context.DeadlineExceeded}

	// Should not panic on error; the error is logged.
	EmitAsync(emitter, context.Background(), &domain.Event{EventType: "test"})
	waitForEvents(emitter, 1)
}

func TestEmitAsync_ConcurrentAccess(t *testing.T) {
	emitter := &mockEventEmitter{}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			EmitAsync(emitter, context.Background(), &domain.Event{EventType: "test"})
		}()
	}
	wg.Wait()

	if events := waitForEvents(emitter, 10); len(events) != 10 {
		t.Errorf("expected 10 events, got %d", len(events))
	}
}

func TestTee_EmitsToAllAndJoinsErrors(t *testing.T) {
	first := &mockEventEmitter{emitErr: errors.New("kafka down")}
	second := &mockEventEmitter{}
	em := Tee(first, nil, second)

	err := em.Emit(context.Background(), &domain.Event{EventType: "test"})
	if err == nil {
		t.Fatal("Tee should return the failing emitter's error")
	}
	if len(first.getEvents()) != 1 || len(second.getEvents()) != 1 {
		t.Error("Tee must emit to every emitter even after a failure")
	}
}

func TestTee_Empty(t *testing.T) {
	if err := Tee().Emit(context.Background(), &domain.Event{}); err != nil {
		t.Errorf("empty Tee Emit: %v", err)
	}
}

func TestEmitAsync_ShedsWhenBacklogFull(t *testing.T) {
	block := make(chan struct{})
	emitter := &blockingEmitter{release: block}
	before := Shed()
	for i := 0; i < maxInFlight; i++ {
		EmitAsync(emitter, context.Background(), &domain.Event{EventType: "test"})
	}
	EmitAsync(emitter, context.Background(), &domain.Event{EventType: "test"})
	if got := Shed() - before; got != 1 {
		t.Errorf("shed = %d, want 1", got)
	}
	close(block)

	// Slots free up once the blocked emits return.
	deadline := time.Now().Add(time.Second)
	for len(inFlight) > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := len(inFlight); n != 0 {
		t.Errorf("in flight after release = %d", n)
	}
}

type blockingEmitter struct {
	release chan struct{}
}

func (b *blockingEmitter) Emit(ctx context.Context, event *domain.Event) error {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}
