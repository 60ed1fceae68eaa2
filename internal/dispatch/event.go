package dispatch

import (
	"encoding/json"
	"time"

	fleetdomain "fleet-tracker/internal/fleet/domain"
	locdomain "fleet-tracker/internal/location/domain"
)

// PushEventType is the type tag of a location push frame.
const PushEventType = "location"

// PushEvent is the frame pushed to every entitled viewer session. It carries raw
// coordinates and speed so each viewer derives distance and ETA locally.
type PushEvent struct {
	Type       string                `json:"type"`
	DriverID   fleetdomain.UserID    `json:"driverId"`
	VehicleID  fleetdomain.VehicleID `json:"vehicleId"`
	Coords     locdomain.Coords      `json:"coords"`
	Altitude   *float64              `json:"altitude"`
	Accuracy   *float64              `json:"accuracy"`
	Speed      *float64              `json:"speed"`
	Seq        uint64                `json:"seq"`
	ObservedAt time.Time             `json:"observedAt"`
}

// NewPushEvent builds the push frame for fix.
func NewPushEvent(fix locdomain.PositionFix) PushEvent {
	return PushEvent{
		Type:       PushEventType,
		DriverID:   fix.DriverID,
		VehicleID:  fix.VehicleID,
		Coords:     fix.Coords,
		Altitude:   fix.Altitude,
		Accuracy:   fix.Accuracy,
		Speed:      fix.SpeedMetersPerSecond,
		Seq:        fix.SourceSeq,
		ObservedAt: fix.ObservedAt.UTC(),
	}
}

// EncodePushEvent returns the JSON frame for fix.
func EncodePushEvent(fix locdomain.PositionFix) ([]byte, error) {
	return json.Marshal(NewPushEvent(fix))
}
