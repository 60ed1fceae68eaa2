package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"fleet-tracker/internal/audit"
	fleetdomain "fleet-tracker/internal/fleet/domain"
	"fleet-tracker/internal/health"
	"fleet-tracker/internal/ingest"
	lochandler "fleet-tracker/internal/location/handler"
	"fleet-tracker/internal/security"
	teldomain "fleet-tracker/internal/telemetry/domain"
)

type stubIngestor struct{}

func (stubIngestor) Ingest(ctx context.Context, driverID fleetdomain.UserID, raw ingest.RawFix) (ingest.Outcome, error) {
	return ingest.Outcome{}, nil
}

type captureEmitter struct {
	mu     sync.Mutex
	events []*teldomain.Event
}

func (c *captureEmitter) Emit(ctx context.Context, ev *teldomain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captureEmitter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func newTestHandler(t *testing.T, events *captureEmitter, viewers http.Handler) http.Handler {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	deps := HTTPDeps{
		Tokens:    tokens,
		Health:    health.NewChecker(nil, nil),
		Locations: lochandler.NewHandler(stubIngestor{}, nil),
		Viewers:   viewers,
		Feed: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	}
	if events != nil {
		deps.Events = events
	}
	return NewHTTPHandler(deps)
}

func noContent() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
}

func TestHTTPHandler_Routes(t *testing.T) {
	h := newTestHandler(t, nil, noContent())
	adminToken := security.MustTestToken(1, fleetdomain.RoleAdmin)
	driverToken := security.MustTestToken(10, fleetdomain.RoleDriver)
	employeeToken := security.MustTestToken(20, fleetdomain.RoleEmployee)

	tests := []struct {
		name   string
		method string
		target string
		token  string
		body   string
		want   int
	}{
		{"healthz is public", http.MethodGet, "/healthz", "", "", http.StatusOK},
		{"ws needs a token", http.MethodGet, "/ws", "", "", http.StatusUnauthorized},
		{"ws accepts query token", http.MethodGet, "/ws?access_token=" + employeeToken, "", "", http.StatusNoContent},
		{"driver posts location", http.MethodPost, "/api/locations/update", driverToken, `{"coords":{"lat":1,"lon":1}}`, http.StatusOK},
		{"employee cannot post location", http.MethodPost, "/api/locations/update", employeeToken, `{"coords":{"lat":1,"lon":1}}`, http.StatusForbidden},
		{"employee cannot read latest", http.MethodGet, "/api/locations/latest/10", employeeToken, "", http.StatusForbidden},
		{"feed is admin only", http.MethodGet, "/api/feeds/vehicle-positions", driverToken, "", http.StatusForbidden},
		{"admin reads feed", http.MethodGet, "/api/feeds/vehicle-positions", adminToken, "", http.StatusOK},
		{"vehicles not wired", http.MethodGet, "/api/vehicles", adminToken, "", http.StatusNotFound},
		{"garbage token", http.MethodGet, "/api/feeds/vehicle-positions", "not-a-jwt", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestHTTPHandler_ClientIPForAudit(t *testing.T) {
	var got string
	viewers := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = audit.ContextIP(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := newTestHandler(t, nil, viewers)
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+security.MustTestToken(1, fleetdomain.RoleAdmin))
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "203.0.113.9" {
		t.Errorf("audit client IP = %q", got)
	}
}

func TestHTTPHandler_RequestTelemetrySkipsHealthz(t *testing.T) {
	events := &captureEmitter{}
	h := newTestHandler(t, events, noContent())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws", nil))

	deadline := time.Now().Add(time.Second)
	for events.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	if n := events.count(); n != 1 {
		t.Fatalf("events = %d, want 1", n)
	}
	events.mu.Lock()
	ev := events.events[0]
	events.mu.Unlock()
	if ev.EventType != teldomain.EventHTTPRequest || !strings.Contains(string(ev.Metadata), `"status_code":401`) {
		t.Errorf("event = %s %s", ev.EventType, ev.Metadata)
	}
}
