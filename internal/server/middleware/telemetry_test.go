package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"fleet-tracker/internal/telemetry/domain"
)

type mockEmitter struct {
	mu     sync.Mutex
	events []*domain.Event
}

func (m *mockEmitter) Emit(ctx context.Context, ev *domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *mockEmitter) waitFor(n int) []*domain.Event {
	deadline := time.Now().Add(time.Second)
	for {
		m.mu.Lock()
		got := append([]*domain.Event(nil), m.events...)
		m.mu.Unlock()
		if len(got) >= n || time.Now().After(deadline) {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRequestTelemetry_EmitsEvent(t *testing.T) {
	em := &mockEmitter{}
	h := RequestTelemetry(em, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusConflict, "duplicate")
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/vehicles/1/assign", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	h.ServeHTTP(httptest.NewRecorder(), req)

	events := em.waitFor(1)
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].EventType != domain.EventHTTPRequest {
		t.Errorf("EventType = %q", events[0].EventType)
	}
	var meta httpRequestMetadata
	if err := json.Unmarshal(events[0].Metadata, &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.StatusCode != http.StatusConflict || meta.Method != http.MethodPost || meta.ClientIP != "10.0.0.1" {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestRequestTelemetry_SkipPath(t *testing.T) {
	em := &mockEmitter{}
	h := RequestTelemetry(em, map[string]bool{"/healthz": true})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	time.Sleep(20 * time.Millisecond)
	if n := len(em.waitFor(0)); n != 0 {
		t.Errorf("events = %d, want 0", n)
	}
}

func TestRequestTelemetry_NilEmitter(t *testing.T) {
	called := false
	h := RequestTelemetry(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("handler not called")
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	if got := ClientIP(req); got != "192.0.2.7" {
		t.Errorf("remote addr: %q", got)
	}
	req.Header.Set("X-Real-IP", "198.51.100.3")
	if got := ClientIP(req); got != "198.51.100.3" {
		t.Errorf("x-real-ip: %q", got)
	}
}
