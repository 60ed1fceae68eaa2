package domain

import (
	"encoding/json"
	"time"
)

// Event types emitted by the tracker.
const (
	EventPositionFix    = "position_fix"
	EventFixDropped     = "fix_dropped"
	EventFixStale       = "fix_stale"
	EventDeliveryFailed = "delivery_failed"
	EventHTTPRequest    = "http_request"
)

// Event is one telemetry event. Accepted position fixes travel as EventPositionFix events
// to the position worker; the other types only feed the operational log stream.
type Event struct {
	EventType string          `json:"eventType"`
	Source    string          `json:"source"`
	DriverID  string          `json:"driverId,omitempty"`
	VehicleID string          `json:"vehicleId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
