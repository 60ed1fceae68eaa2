package repository

import (
	"database/sql"
	"testing"
	"time"

	fleetdomain "fleet-tracker/internal/fleet/domain"
)

type fakeRow []interface{}

func (f fakeRow) Scan(dest ...interface{}) error {
	for i, d := range dest {
		switch p := d.(type) {
		case *fleetdomain.UserID:
			*p = f[i].(fleetdomain.UserID)
		case *sql.NullInt64:
			*p = f[i].(sql.NullInt64)
		case *sql.NullFloat64:
			*p = f[i].(sql.NullFloat64)
		case *float64:
			*p = f[i].(float64)
		case *int64:
			*p = f[i].(int64)
		case *time.Time:
			*p = f[i].(time.Time)
		}
	}
	return nil
}

func TestScanLastPosition(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	p, err := scanLastPosition(fakeRow{
		fleetdomain.UserID(10), sql.NullInt64{Int64: 100, Valid: true}, 9.0105, 38.7652,
		sql.NullFloat64{}, sql.NullFloat64{Float64: 4.5, Valid: true}, sql.NullFloat64{Float64: 10, Valid: true},
		int64(42), now, now,
	})
	if err != nil {
		t.Fatalf("scanLastPosition: %v", err)
	}
	if p.DriverID != 10 || p.VehicleID != 100 || p.SourceSeq != 42 {
		t.Errorf("position = %+v", p)
	}
	if p.Coords.Lat != 9.0105 || p.Coords.Lon != 38.7652 {
		t.Errorf("coords = %+v", p.Coords)
	}
	if p.Altitude != nil {
		t.Error("NULL altitude should scan to nil")
	}
	if p.Accuracy == nil || *p.Accuracy != 4.5 || p.SpeedMetersPerSecond == nil || *p.SpeedMetersPerSecond != 10 {
		t.Error("accuracy and speed should be set")
	}
}

func TestNullVehicleID(t *testing.T) {
	if nullVehicleID(0).Valid {
		t.Error("zero vehicle should be NULL")
	}
	if n := nullVehicleID(5); !n.Valid || n.Int64 != 5 {
		t.Errorf("nullVehicleID(5) = %+v", n)
	}
}
