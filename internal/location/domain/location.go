package domain

import (
	"time"

	fleetdomain "fleet-tracker/internal/fleet/domain"
)

// Coords is a WGS84 latitude/longitude pair in decimal degrees.
type Coords struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// PositionFix is one accepted position sample of a driver. It lives only for the
// duration of a dispatch.
type PositionFix struct {
	DriverID             fleetdomain.UserID
	VehicleID            fleetdomain.VehicleID // zero until resolved by the dispatcher
	Coords               Coords
	Altitude             *float64
	Accuracy             *float64
	SpeedMetersPerSecond *float64
	SourceSeq            uint64
	ObservedAt           time.Time
}

// LastPosition is the last known position of a driver as kept by the position worker.
type LastPosition struct {
	DriverID             fleetdomain.UserID    `json:"driverId"`
	VehicleID            fleetdomain.VehicleID `json:"vehicleId,omitempty"`
	Coords               Coords                `json:"coords"`
	Altitude             *float64              `json:"altitude"`
	Accuracy             *float64              `json:"accuracy"`
	SpeedMetersPerSecond *float64              `json:"speed"`
	SourceSeq            uint64                `json:"seq"`
	ObservedAt           time.Time             `json:"observedAt"`
	RecordedAt           time.Time             `json:"recordedAt,omitempty"`
}

// LastPositionFromFix copies fix into a LastPosition. RecordedAt is left for the store.
func LastPositionFromFix(fix PositionFix) LastPosition {
	return LastPosition{
		DriverID:             fix.DriverID,
		VehicleID:            fix.VehicleID,
		Coords:               fix.Coords,
		Altitude:             fix.Altitude,
		Accuracy:             fix.Accuracy,
		SpeedMetersPerSecond: fix.SpeedMetersPerSecond,
		SourceSeq:            fix.SourceSeq,
		ObservedAt:           fix.ObservedAt,
	}
}
