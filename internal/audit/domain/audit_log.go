package domain

import (
	"time"

	fleetdomain "fleet-tracker/internal/fleet/domain"
)

// Audited actions.
const (
	ActionVehicleCreated   = "vehicle_created"
	ActionVehicleUpdated   = "vehicle_updated"
	ActionVehicleDeleted   = "vehicle_deleted"
	ActionEmployeeAssigned = "employee_assigned"
	ActionPolicyCreated    = "policy_created"
)

// AuditLog represents an audit event. UserID is zero for system actions.
type AuditLog struct {
	ID        string             `json:"id"`
	UserID    fleetdomain.UserID `json:"userId,omitempty"`
	Action    string             `json:"action"`
	Resource  string             `json:"resource"`
	IP        string             `json:"ip"`
	Metadata  string             `json:"metadata,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}
